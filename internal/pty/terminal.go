package pty

import (
	"io"
	"os"
	"os/exec"
	"sync"

	"tesh/internal/procutil"
)

const (
	defaultCols = 120
	defaultRows = 40

	// wideTerminalCols is the column count substituted when WideTerminal is
	// set. Some host PTY implementations wrap long lines at the requested
	// width regardless of what the child program believes its width to be;
	// requesting a very large width avoids that wrap so the Backlog (not the
	// host PTY) owns line-breaking decisions.
	wideTerminalCols = 10000
)

// Config configures a terminal process.
type Config struct {
	Shell   string
	Args    []string
	Dir     string
	Env     []string
	Columns int
	Rows    int

	// WideTerminal clamps Columns to wideTerminalCols. Config-driven rather
	// than a platform fork: the host PTY's line-wrapping behavior is a
	// property of what we tell it our width is, not of the OS itself.
	WideTerminal bool
}

func (cfg Config) effectiveColumns() int {
	if cfg.WideTerminal {
		return wideTerminalCols
	}
	if cfg.Columns <= 0 {
		return defaultCols
	}
	return cfg.Columns
}

// ptyReadWriteCloser abstracts a PTY backend that supports
// Read, Write, Resize, Close, and Pid.
// ConPty on Windows implements this interface.
type ptyReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(width, height int) error
	Close() error
	Pid() int
	Wait() (int, error)
}

// Terminal wraps one PTY process.
type Terminal struct {
	mu       sync.RWMutex
	cmd      *exec.Cmd          // non-nil for Unix/pipe mode, nil for ConPTY mode
	ptmx     *os.File           // Unix PTY master (creack/pty)
	pty      ptyReadWriteCloser // ConPTY on Windows; nil on Unix/pipe
	stdin    io.WriteCloser     // pipe fallback
	stdout   io.ReadCloser      // pipe fallback
	stderr   io.ReadCloser      // pipe fallback
	closed   bool
	closeErr error
}

// startPipeMode starts a process in pipe mode as fallback.
// SECURITY: cfg.Shell and cfg.Args are trusted values from internal Config struct,
// populated by application code (not user input).
func startPipeMode(cfg Config) (*Terminal, error) {
	cmd := exec.Command(cfg.Shell, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = cfg.Env
	}
	procutil.HideWindow(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, err
	}
	return &Terminal{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

package shell

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"tesh/internal/backlog"
	"tesh/internal/builtin"
	"tesh/internal/history"
	"tesh/internal/pty"
	"tesh/internal/shellenv"
)

// ProcessOutput is the sink a pipeline's tail writes into: either a raw
// writer (an attached terminal's own stdout) or a Backlog, whose
// AppendText does the escape-aware scrollback accounting. Exactly one of
// the two fields should be set.
type ProcessOutput struct {
	File    io.Writer
	Backlog *backlog.Backlog
}

func (o ProcessOutput) Write(b []byte) (int, error) {
	if o.Backlog != nil {
		return int(o.Backlog.AppendText(b)), nil
	}
	if o.File != nil {
		return o.File.Write(b)
	}
	return len(b), nil
}

// EmitStartDirectory records that subsequent bytes come from a
// directory-listing builtin, letting a Backlog-backed renderer style them
// apart from ordinary process output. It satisfies internal/builtin's
// directoryEmitter interface; a File-backed output has no such notion and
// the call is a no-op.
func (o ProcessOutput) EmitStartDirectory() {
	if o.Backlog != nil {
		o.Backlog.EmitStartDirectory()
	}
}

// stage is one running pipeline position: either an in-process builtin
// ticked directly, or an external process attached to its own
// pseudo-terminal, whose copy/read/wait goroutines (started in startStage)
// drive the actual I/O and which this package only polls for completion.
type stage struct {
	name string

	b      builtin.Builtin
	out    io.Writer
	closer io.Closer // the pipeBuf feeding the next stage, closed once this stage finishes

	term    *pty.Terminal
	waitErr chan error

	done     bool
	exitCode int
}

// terminalExitError carries an exit code observed via pty.Terminal.Wait,
// which reports the code directly rather than through *exec.ExitError.
type terminalExitError struct{ code int }

func (e *terminalExitError) Error() string { return fmt.Sprintf("terminal process exited: %d", e.code) }

func (s *stage) tick() {
	if s.done {
		return
	}
	if s.b != nil {
		done, code := s.b.Tick(s.out)
		if done {
			s.done = true
			s.exitCode = code
			if s.closer != nil {
				s.closer.Close()
			}
		}
		return
	}
	select {
	case err := <-s.waitErr:
		s.done = true
		s.exitCode = exitCodeFromErr(err)
		if s.closer != nil {
			s.closer.Close()
		}
	default:
	}
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	var termErr *terminalExitError
	if errors.As(err, &termErr) {
		return termErr.code
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

// RunningLine is one parsed pipeline under execution: a chain of stages
// connected stdout -> stdin, terminating in a single ProcessOutput. A full
// scheduler round calls Tick once; when the final stage finishes, its exit
// code becomes the line's.
type RunningLine struct {
	stages   []*stage
	bl       *backlog.Backlog // tail output's backlog, if any; nil when the tail writes to a raw file
	done     bool
	exitCode int
}

// StartExecuteLine allocates the in-process pipes connecting each program
// in p, instantiates a builtin or spawns an external process for each
// position, and returns the running line. stdin feeds program 0; out
// receives the tail's combined stdout/stderr. External-process stages run
// attached to a pseudo-terminal so programs that probe isatty() behave as
// they would under an interactive shell; wideTerminal clamps the reported
// column count per internal/pty.Config.WideTerminal.
func StartExecuteLine(p Pipeline, env *shellenv.Local, level builtin.Level, hist *history.Store, wideTerminal bool, stdin io.Reader, out ProcessOutput) (*RunningLine, error) {
	line := &RunningLine{bl: out.Backlog}
	var prevReader io.Reader = stdin

	if out.Backlog != nil {
		out.Backlog.EmitStartInput()
		out.Backlog.AppendText([]byte(p.String() + "\n"))
		out.Backlog.EmitStartProcess()
	}

	for i, prog := range p {
		if len(prog) == 0 {
			continue
		}
		last := i == len(p)-1

		var stageOut io.Writer
		var nextPipe *pipeBuf
		if last {
			stageOut = out
		} else {
			nextPipe = newPipeBuf()
			stageOut = nextPipe
		}

		s, err := startStage(prog, env, level, hist, wideTerminal, prevReader, stageOut)
		if err != nil {
			return nil, err
		}
		if nextPipe != nil {
			s.closer = nextPipe
			prevReader = nextPipe
		}
		line.stages = append(line.stages, s)
	}
	return line, nil
}

func startStage(prog Program, env *shellenv.Local, level builtin.Level, hist *history.Store, wideTerminal bool, stdin io.Reader, out io.Writer) (*stage, error) {
	benv := builtin.Env{Args: prog, Local: env, Stdin: stdin, History: hist}
	if b, ok := builtin.Lookup(prog[0], level, benv); ok {
		return &stage{name: prog[0], b: b, out: out}, nil
	}

	resolved, ok := builtin.FindInPath(env, prog[0])
	if !ok {
		return nil, fmt.Errorf("%s: command not found: %w", prog[0], ErrInvalidPath)
	}

	cfg := pty.Config{Shell: resolved, Args: prog[1:], WideTerminal: wideTerminal}
	if wd, ok := env.GetWd(); ok {
		cfg.Dir = wd
	}
	cfg.Env = env.Environ()

	term, err := pty.Start(cfg)
	if err != nil {
		return nil, err
	}

	if stdin != nil {
		go copyIntoTerminal(term, stdin)
	}
	go term.ReadLoop(func(data []byte) { out.Write(data) })

	waitErr := make(chan error, 1)
	go func() {
		code, waitedErr := term.Wait()
		if waitedErr != nil {
			waitErr <- waitedErr
			return
		}
		if code == 0 {
			waitErr <- nil
			return
		}
		waitErr <- &terminalExitError{code: code}
	}()

	return &stage{name: prog[0], term: term, waitErr: waitErr}, nil
}

// copyIntoTerminal forwards stdin into a running pseudo-terminal until EOF
// or a write failure, mirroring the copy goroutine os/exec spawns internally
// when cmd.Stdin is set to a non-*os.File reader.
func copyIntoTerminal(term *pty.Terminal, stdin io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, readErr := stdin.Read(buf)
		if n > 0 {
			if _, writeErr := term.Write(buf[:n]); writeErr != nil {
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}

// Tick steps every still-running stage once. It never blocks: builtins
// write as much as their sink accepts, and external-process stages just
// poll their Wait goroutine's result channel.
func (l *RunningLine) Tick() {
	if l.done {
		return
	}
	allDone := true
	for _, s := range l.stages {
		s.tick()
		if !s.done {
			allDone = false
		}
	}
	if allDone && len(l.stages) > 0 {
		l.done = true
		l.exitCode = l.stages[len(l.stages)-1].exitCode
		if l.bl != nil && !l.bl.Cancelled() {
			l.bl.MarkDone(l.exitCode)
		}
	}
}

// Done reports whether every stage has finished, along with the tail
// stage's exit code once it has.
func (l *RunningLine) Done() (bool, int) { return l.done, l.exitCode }

// Cancel terminates every still-running stage: a pseudo-terminal-backed
// stage is closed (killing its child), and a builtin stage is canceled by
// closing its output so the next Tick observes a write failure and
// finalizes. Cancel does not mark the line done itself; callers should keep
// ticking until Done reports completion.
func (l *RunningLine) Cancel() {
	for _, s := range l.stages {
		s.cancel()
	}
	if l.bl != nil {
		l.bl.MarkCancelled()
	}
}

// Resize forwards a new terminal size to every still-running pseudo-terminal
// stage. Builtins have no notion of terminal geometry and are left alone.
func (l *RunningLine) Resize(cols, rows int) {
	for _, s := range l.stages {
		if s.term != nil && !s.done {
			if err := s.term.Resize(cols, rows); err != nil {
				slog.Debug("shell: resize failed", "stage", s.name, "error", err)
			}
		}
	}
}

func (s *stage) cancel() {
	if s.done {
		return
	}
	if s.term != nil {
		if err := s.term.Close(); err != nil {
			slog.Debug("shell: cancel: terminal close failed", "stage", s.name, "error", err)
		}
		return
	}
	if closer, ok := s.out.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Debug("shell: cancel: output close failed", "stage", s.name, "error", err)
		}
	}
}

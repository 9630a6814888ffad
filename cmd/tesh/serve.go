package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tesh/internal/backlog"
	"tesh/internal/config"
	"tesh/internal/history"
	"tesh/internal/ipc"
	"tesh/internal/render"
	"tesh/internal/sessionlog"
	"tesh/internal/shell"
	"tesh/internal/shellenv"
	"tesh/internal/workerutil"
	"tesh/internal/wsserver"
)

// serveTickInterval paces the background loop that steps every running
// pipeline and broadcasts newly produced bytes. It is twice tesh run's
// tickInterval, the cadence of its single-line driver.
const serveTickInterval = 8 * time.Millisecond

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the host process: IPC command server plus WebSocket renderer feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "listen address for the renderer WebSocket server")
	return cmd
}

// runningBacklog pairs a live pipeline with the backlog it writes into, the
// byte offset already broadcast to the attached renderer, and the history
// row its exit code backfills once the pipeline finishes.
type runningBacklog struct {
	line     *shell.RunningLine
	bl       *backlog.Backlog
	sent     uint64
	histID   int64
	haveHist bool
	reported bool
}

// dispatchRequest carries one ShellRequest from an IPC connection goroutine
// onto the tick-loop goroutine, which is the sole owner of env, running,
// and every RunningLine/Backlog reachable from them. internal/shell and
// internal/backlog carry no locks of their own — they assume a single
// cooperative caller, the same assumption tesh run's loop makes — so a
// pipe server that accepts up to 64 concurrent connections cannot call
// into them directly. Routing every mutation through one goroutine is the
// channel-actor answer to that, mirroring Go's usual "share memory by
// communicating" advice rather than bolting a mutex onto state that was
// designed to be ticked by one owner.
type dispatchRequest struct {
	req  ipc.ShellRequest
	resp chan ipc.ShellResponse
}

// server holds every piece of state a ShellRequest dispatch touches. Only
// the tick-loop goroutine (tickLoop/tickOnce/dispatch) ever reads or
// writes env, running, nextID, or any RunningLine/Backlog inside running;
// hub and hist are safe for concurrent use on their own.
type server struct {
	cfg  config.Config
	env  *shellenv.Local
	hist *history.Store
	hub  *wsserver.Hub

	cmds chan dispatchRequest

	nextID  uint64
	running map[string]*runningBacklog

	sessionLog *backlog.Backlog
}

func serve(addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	hist, err := history.Open()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	s := &server{
		cfg:        cfg,
		env:        rootEnv(),
		hist:       hist,
		cmds:       make(chan dispatchRequest),
		running:    make(map[string]*runningBacklog),
		nextID:     1,
		sessionLog: backlog.New(0, cfg.MaxLength),
	}

	base := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(base, slog.LevelInfo, s.teeLogEntry)))

	hub := wsserver.NewHub(wsserver.HubOptions{Addr: addr})
	s.hub = hub
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start renderer server: %w", err)
	}
	defer hub.Stop()
	slog.Info("renderer server listening", "url", hub.URL())

	pipeServer := ipc.NewPipeServer(ipc.DefaultPipeName(), s)
	if err := pipeServer.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	defer pipeServer.Stop()
	slog.Info("ipc server listening", "pipe", pipeServer.PipeName())

	var wg sync.WaitGroup
	workerutil.RunWithPanicRecovery(ctx, "serve-tick-loop", &wg, s.tickLoop, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return ctx.Err() != nil },
	})

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	return nil
}

// teeLogEntry renders a captured slog record as a plain text line into the
// dedicated session-log backlog, so a renderer subscribed to backlog "0"
// can show host-process diagnostics the same way it shows program output.
func (s *server) teeLogEntry(ts time.Time, level slog.Level, msg string, group string) {
	line := ts.Format("15:04:05.000") + " " + level.String() + " "
	if group != "" {
		line += "[" + group + "] "
	}
	line += msg + "\n"
	s.sessionLog.AppendText([]byte(line))
}

// tickLoop is the single goroutine that owns every RunningLine and Backlog
// this process tracks. It steps them, broadcasts their new bytes, and
// services Execute's dispatch requests, all serialized through one select.
// It returns (rather than looping forever) once ctx is cancelled, so
// workerutil treats a clean shutdown as a normal exit rather than a crash
// to restart.
func (s *server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(serveTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.cmds:
			d.resp <- s.dispatch(d.req)
		case <-ticker.C:
			s.tickOnce()
		}
	}
}

func (s *server) tickOnce() {
	s.broadcastBacklog(&runningBacklog{bl: s.sessionLog})
	for _, rb := range s.running {
		rb.line.Tick()
		s.broadcastBacklog(rb)
		s.recordExitCodeOnce(rb)
	}
}

// recordExitCodeOnce backfills the history row for rb's pipeline the first
// tick after it finishes.
func (s *server) recordExitCodeOnce(rb *runningBacklog) {
	if rb.reported || !rb.haveHist {
		return
	}
	done, code := rb.line.Done()
	if !done {
		return
	}
	rb.reported = true
	if err := s.hist.SetExitCode(rb.histID, code); err != nil {
		slog.Error("set history exit code failed", "error", err)
	}
}

func (s *server) broadcastBacklog(rb *runningBacklog) {
	frame, err := render.EncodeBytesFrom(rb.bl, rb.sent)
	if err != nil {
		slog.Error("encode backlog frame failed", "backlog", rb.bl.ID(), "error", err)
		return
	}
	rb.sent = rb.bl.RenderLength()
	s.hub.BroadcastBacklogData(strconv.FormatUint(rb.bl.ID(), 10), frame)
}

// Execute implements ipc.CommandExecutor. It runs on whichever goroutine
// the pipe server's connection handler calls it from, so it only ever
// hands the request to the tick-loop goroutine and waits for the answer.
func (s *server) Execute(req ipc.ShellRequest) ipc.ShellResponse {
	resp := make(chan ipc.ShellResponse, 1)
	s.cmds <- dispatchRequest{req: req, resp: resp}
	return <-resp
}

// dispatch implements the small set of commands a renderer-facing client
// needs: starting a pipeline, reading its metadata, resizing or cancelling
// it, and discovering where to attach for the byte stream. Only ever
// called from tickLoop.
func (s *server) dispatch(req ipc.ShellRequest) ipc.ShellResponse {
	switch req.Command {
	case "execute-line":
		return s.executeLine(req)
	case "get-snapshot":
		return s.getSnapshot(req)
	case "resize":
		return s.resize(req)
	case "cancel":
		return s.cancel(req)
	case "attach-renderer":
		return ipc.ShellResponse{Stdout: s.hub.URL()}
	default:
		return ipc.ShellResponse{ExitCode: 1, Stderr: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (s *server) executeLine(req ipc.ShellRequest) ipc.ShellResponse {
	if len(req.Args) == 0 {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "execute-line requires a command line argument"}
	}
	line := req.Args[0]

	pipelines, err := shell.ParseLine(line, s.env)
	if err != nil {
		return ipc.ShellResponse{ExitCode: 1, Stderr: err.Error()}
	}
	var pipeline shell.Pipeline
	for _, p := range pipelines {
		if len(p) > 0 {
			pipeline = p
			break
		}
	}
	if pipeline == nil {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "empty command line"}
	}
	if len(pipelines) > 1 {
		slog.Debug("execute-line: multiple statements sent in one request, only the first ran", "line", line)
	}

	id := s.nextID
	s.nextID++

	bl := backlog.New(id, s.cfg.MaxLength)
	wd, _ := s.env.GetWd()
	histID, histErr := s.hist.Append(pipelineText(pipeline), wd)

	running, err := shell.StartExecuteLine(pipeline, s.env, s.cfg.BuiltinLevel, s.hist, s.cfg.WindowsWideTerminal, nil, shell.ProcessOutput{Backlog: bl})
	if err != nil {
		return ipc.ShellResponse{ExitCode: 1, Stderr: err.Error()}
	}

	s.running[strconv.FormatUint(id, 10)] = &runningBacklog{
		line: running, bl: bl, histID: histID, haveHist: histErr == nil,
	}
	return ipc.ShellResponse{Stdout: strconv.FormatUint(id, 10)}
}

func (s *server) getSnapshot(req ipc.ShellRequest) ipc.ShellResponse {
	if len(req.Args) > 0 && req.Args[0] == "0" {
		raw, err := render.EncodeMetadata(s.sessionLog)
		if err != nil {
			return ipc.ShellResponse{ExitCode: 1, Stderr: err.Error()}
		}
		return ipc.ShellResponse{Stdout: string(raw)}
	}
	rb, ok := s.lookupBacklog(req)
	if !ok {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "unknown backlog id"}
	}
	raw, err := render.EncodeMetadata(rb.bl)
	if err != nil {
		return ipc.ShellResponse{ExitCode: 1, Stderr: err.Error()}
	}
	return ipc.ShellResponse{Stdout: string(raw)}
}

func (s *server) lookupBacklog(req ipc.ShellRequest) (*runningBacklog, bool) {
	if len(req.Args) == 0 {
		return nil, false
	}
	rb, ok := s.running[req.Args[0]]
	return rb, ok
}

func (s *server) resize(req ipc.ShellRequest) ipc.ShellResponse {
	rb, ok := s.lookupBacklog(req)
	if !ok {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "unknown backlog id"}
	}
	if len(req.Args) < 3 {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "resize requires backlog id, columns, rows"}
	}
	cols, err := strconv.Atoi(req.Args[1])
	if err != nil {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "invalid column count"}
	}
	rows, err := strconv.Atoi(req.Args[2])
	if err != nil {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "invalid row count"}
	}
	rb.line.Resize(cols, rows)
	return ipc.ShellResponse{}
}

func (s *server) cancel(req ipc.ShellRequest) ipc.ShellResponse {
	rb, ok := s.lookupBacklog(req)
	if !ok {
		return ipc.ShellResponse{ExitCode: 1, Stderr: "unknown backlog id"}
	}
	rb.line.Cancel()
	return ipc.ShellResponse{}
}

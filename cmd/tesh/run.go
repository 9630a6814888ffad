package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tesh/internal/config"
	"tesh/internal/history"
	"tesh/internal/shell"
	"tesh/internal/shellenv"
)

// tickInterval paces the cooperative scheduler polling a RunningLine until
// it finishes. A process spawned under a pseudo-terminal has no OS-level
// wait-channel wakeup this package can select on directly (that wakeup
// lives inside internal/shell's own wait goroutine), so the driving loop
// here just re-ticks on a short fixed interval.
const tickInterval = 4 * time.Millisecond

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <line>",
		Short: "Execute a command line to completion and print its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLine(strings.Join(args, " "), os.Stdout)
		},
	}
}

func runLine(line string, stdout io.Writer) error {
	cfg := loadConfig()
	env := rootEnv()

	hist, err := history.Open()
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	pipelines, err := shell.ParseLine(line, env)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	exitCode := 0
	for _, p := range pipelines {
		if len(p) == 0 {
			continue
		}
		exitCode, err = runOnePipeline(p, env, cfg, hist, stdout)
		if err != nil {
			return err
		}
	}
	os.Exit(exitCode)
	return nil
}

func runOnePipeline(p shell.Pipeline, env *shellenv.Local, cfg config.Config, hist *history.Store, stdout io.Writer) (int, error) {
	wd, _ := env.GetWd()
	histID, histErr := hist.Append(pipelineText(p), wd)
	if histErr != nil {
		fmt.Fprintf(os.Stderr, "tesh: history: %v\n", histErr)
	}

	running, err := shell.StartExecuteLine(p, env, cfg.BuiltinLevel, hist, cfg.WindowsWideTerminal, os.Stdin, shell.ProcessOutput{File: stdout})
	if err != nil {
		return 1, err
	}

	for {
		running.Tick()
		if done, code := running.Done(); done {
			if histErr == nil {
				if setErr := hist.SetExitCode(histID, code); setErr != nil {
					fmt.Fprintf(os.Stderr, "tesh: history: %v\n", setErr)
				}
			}
			return code, nil
		}
		time.Sleep(tickInterval)
	}
}

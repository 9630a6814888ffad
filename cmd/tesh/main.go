// Command tesh is the host process's command-line entrypoint: a single
// binary that either runs one command line to completion (tesh run) or
// stays resident serving the IPC and WebSocket surfaces a renderer attaches
// to (tesh serve).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tesh/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "tesh",
		Short:         "tesh runs and renders pseudo-terminal pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tesh: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the on-disk config, creating it with defaults on first
// run. A load error is reported but never fatal — the config returned
// alongside the error starts from DefaultConfig, so it is a usable fallback.
func loadConfig() config.Config {
	cfg, err := config.EnsureFile(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tesh: config: %v\n", err)
	}
	for _, warning := range config.ConsumeDefaultPathWarnings() {
		fmt.Fprintln(os.Stderr, "tesh: "+warning)
	}
	return cfg
}

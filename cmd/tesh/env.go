package main

import (
	"os"
	"strings"

	"tesh/internal/shellenv"
)

// rootEnv builds the root environment frame a freshly started process
// executes against: every inherited OS variable, exported, plus the
// process's actual working directory as the initial stack entry.
func rootEnv() *shellenv.Local {
	env := shellenv.New(shellenv.Subshell)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env.SetVar(key, value)
		env.Export(key)
	}
	if wd, err := os.Getwd(); err == nil {
		env.SetWd(wd)
	}
	return env
}

// Package builtin implements in-process "commands" as resumable state
// machines: each builtin stores enough state to be ticked repeatedly by
// the shell's scheduler without ever blocking, writing as much as the sink
// will accept on each call.
package builtin

import (
	"io"

	"tesh/internal/history"
	"tesh/internal/shellenv"
)

// Level selects which builtins override an external program of the same
// name. 0 is the smallest set, 2 enables every builtin.
type Level int

const (
	LevelMinimum    Level = 0
	LevelCompromise Level = 1
	LevelEverything Level = 2
)

// Builtin is a single re-entrant command. Tick writes as much as it can to
// out without blocking and reports whether it has finished, along with the
// exit code to record once it has.
type Builtin interface {
	Tick(out io.Writer) (done bool, exitCode int)
}

// Env is the context a builtin needs: its arguments, the environment frame
// it runs in, an input source (stdin for the pipeline stage), and a shared
// command history for the history builtin.
type Env struct {
	Args    []string
	Local   *shellenv.Local
	Stdin   io.Reader
	History *history.Store
}

type factory func(Env) Builtin

var registry = map[string]factory{
	"echo":    func(e Env) Builtin { return newEcho(e) },
	"cat":     func(e Env) Builtin { return newCat(e) },
	"pwd":     func(e Env) Builtin { return newPwd(e) },
	"cd":      func(e Env) Builtin { return newCd(e) },
	"export":  func(e Env) Builtin { return newExport(e) },
	"unset":   func(e Env) Builtin { return newUnset(e) },
	"alias":   func(e Env) Builtin { return newAlias(e) },
	"history": func(e Env) Builtin { return newHistory(e) },
	"which":   func(e Env) Builtin { return newWhich(e) },
	"true":    func(e Env) Builtin { return newTrue(e) },
	"false":   func(e Env) Builtin { return newFalse(e) },
	"ls":      func(e Env) Builtin { return newLs(e) },
}

// minLevel names the minimum builtin_level at which each builtin overrides
// an external program of the same name. cd, export, unset, and alias must
// always be builtins (there is no external equivalent that could mutate
// this process's own environment chain); echo, pwd, history, which, true,
// and false are conveniences a lower level can defer to a real external
// program; cat and ls are the most willing to yield, since both have
// well-known external equivalents on every platform this runs on.
var minLevel = map[string]Level{
	"cd":      LevelMinimum,
	"export":  LevelMinimum,
	"unset":   LevelMinimum,
	"alias":   LevelMinimum,
	"echo":    LevelCompromise,
	"pwd":     LevelCompromise,
	"history": LevelCompromise,
	"which":   LevelCompromise,
	"true":    LevelCompromise,
	"false":   LevelCompromise,
	"cat":     LevelEverything,
	"ls":      LevelEverything,
}

// Lookup returns a newly constructed builtin for name at the given
// builtin_level, or ok=false if name isn't a builtin at that level (the
// caller should spawn an external program instead).
func Lookup(name string, level Level, e Env) (Builtin, bool) {
	want, known := minLevel[name]
	if !known || level < want {
		return nil, false
	}
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(e), true
}

// writeAll writes b to out, returning the number of bytes actually
// accepted. Builtins use this so a short write (sink full, or erroring)
// leaves the remainder for the next tick instead of silently dropping it.
func writeAll(out io.Writer, b []byte) int {
	n, _ := out.Write(b)
	return n
}

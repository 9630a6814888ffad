package builtin

import (
	"io"
	"strings"
)

type exportState struct{}

func newExport(e Env) Builtin {
	for _, arg := range e.Args[1:] {
		if key, value, ok := strings.Cut(arg, "="); ok {
			e.Local.SetVar(key, value)
			e.Local.Export(key)
			continue
		}
		e.Local.Export(arg)
	}
	return exportState{}
}

func (exportState) Tick(out io.Writer) (bool, int) { return true, 0 }

package builtin

import (
	"io"
	"strings"

	"tesh/internal/shellenv"
)

type aliasState struct{}

func newAlias(e Env) Builtin {
	for _, arg := range e.Args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		e.Local.SetAlias(name, shellenv.AliasBody(value))
	}
	return aliasState{}
}

func (aliasState) Tick(out io.Writer) (bool, int) { return true, 0 }

package builtin

import "io"

type unsetState struct{}

func newUnset(e Env) Builtin {
	for _, arg := range e.Args[1:] {
		e.Local.UnsetVar(arg)
	}
	return unsetState{}
}

func (unsetState) Tick(out io.Writer) (bool, int) { return true, 0 }

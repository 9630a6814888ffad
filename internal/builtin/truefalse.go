package builtin

import "io"

// exitCodeState is a builtin that writes nothing and finishes immediately
// with a fixed exit code, used for true and false.
type exitCodeState struct{ code int }

func newTrue(Env) Builtin  { return &exitCodeState{code: 0} }
func newFalse(Env) Builtin { return &exitCodeState{code: 1} }

func (s *exitCodeState) Tick(io.Writer) (bool, int) { return true, s.code }

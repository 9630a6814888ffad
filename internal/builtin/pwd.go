package builtin

import "io"

type pwdState struct {
	line string
	sent int
}

func newPwd(e Env) Builtin {
	wd, _ := e.Local.GetWd()
	return &pwdState{line: wd + "\n"}
}

func (s *pwdState) Tick(out io.Writer) (bool, int) {
	n := writeAll(out, []byte(s.line[s.sent:]))
	s.sent += n
	if s.sent < len(s.line) {
		return false, 0
	}
	return true, 0
}

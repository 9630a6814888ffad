package builtin

import "io"

// echoState writes its args separated by spaces and terminated by a
// newline, one partial write at a time: (outer, inner) track which arg and
// which byte within it comes next, so a sink that only accepts part of a
// write is resumed correctly on the following tick.
type echoState struct {
	args    []string
	outer   int
	inner   int
	wroteNL bool
}

func newEcho(e Env) Builtin {
	return &echoState{args: e.Args[1:]}
}

func (s *echoState) Tick(out io.Writer) (bool, int) {
	for s.outer < len(s.args) {
		arg := s.args[s.outer]
		if s.inner < len(arg) {
			n := writeAll(out, []byte(arg[s.inner:]))
			s.inner += n
			if n <= 0 {
				return false, 0
			}
			continue
		}
		sep := " "
		if s.outer == len(s.args)-1 {
			sep = "\n"
		}
		n := writeAll(out, []byte(sep))
		if n <= 0 {
			return false, 0
		}
		s.outer++
		s.inner = 0
		if sep == "\n" {
			s.wroteNL = true
		}
	}
	if !s.wroteNL {
		n := writeAll(out, []byte("\n"))
		if n <= 0 {
			return false, 0
		}
		s.wroteNL = true
	}
	return true, 0
}

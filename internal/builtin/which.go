package builtin

import "io"

// whichState reports, for each argument, how the shell would resolve that
// name as a command: a builtin, an alias, a resolved PATH entry, or not
// found at all. It resolves everything up front since none of those lookups
// block.
type whichState struct {
	lines []string
	sent  int
	code  int
}

func newWhich(e Env) Builtin {
	s := &whichState{}
	args := e.Args[1:]
	if len(args) == 0 {
		return s
	}
	for _, name := range args {
		if _, ok := minLevel[name]; ok {
			s.lines = append(s.lines, name+": shell builtin\n")
			continue
		}
		if body, ok := e.Local.GetAlias(name); ok {
			s.lines = append(s.lines, name+": aliased to "+string(body)+"\n")
			continue
		}
		if path, ok := FindInPath(e.Local, name); ok {
			s.lines = append(s.lines, path+"\n")
			continue
		}
		s.lines = append(s.lines, name+" not found\n")
		s.code = 1
	}
	return s
}

func (s *whichState) Tick(out io.Writer) (bool, int) {
	for s.sent < len(s.lines) {
		line := s.lines[s.sent]
		n := writeAll(out, []byte(line))
		if n < len(line) {
			s.lines[s.sent] = line[n:]
			return false, 0
		}
		s.sent++
	}
	return true, s.code
}

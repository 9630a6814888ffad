package builtin

import (
	"io"
	"os"
	"path/filepath"
	"sort"
)

// directoryEmitter is implemented by a sink that wants to know when a
// directory listing starts, so a renderer can style it apart from ordinary
// process output. ProcessOutput implements it; a plain io.Writer sink just
// doesn't get the notification.
type directoryEmitter interface{ EmitStartDirectory() }

// lsState lists one directory's entries, resolved once at construction
// since a directory read never blocks.
type lsState struct {
	lines   []string
	sent    int
	code    int
	emitted bool
}

func newLs(e Env) Builtin {
	target, _ := e.Local.GetWd()
	if len(e.Args) > 1 {
		arg := e.Args[1]
		if filepath.IsAbs(arg) {
			target = arg
		} else {
			target = filepath.Join(target, arg)
		}
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return &lsState{lines: []string{"ls: " + err.Error() + "\n"}, code: 1}
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names[i] = name
	}
	sort.Strings(names)

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + "\n"
	}
	return &lsState{lines: lines}
}

func (s *lsState) Tick(out io.Writer) (bool, int) {
	if !s.emitted {
		if em, ok := out.(directoryEmitter); ok {
			em.EmitStartDirectory()
		}
		s.emitted = true
	}
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

package builtin

import (
	"io"
	"os"
	"path/filepath"
)

// cdState resolves its target directory once at construction and reports
// the outcome on the next tick: cd never blocks, so there is nothing to
// resume.
type cdState struct {
	errLine string
	sent    int
	code    int
}

func newCd(e Env) Builtin {
	target, err := resolveCdTarget(e)
	if err != nil {
		return &cdState{errLine: "cd: " + err.Error() + "\n", code: 1}
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		return &cdState{errLine: "cd: " + target + ": no such directory\n", code: 1}
	}
	e.Local.SetWd(target)
	return &cdState{}
}

func resolveCdTarget(e Env) (string, error) {
	args := e.Args[1:]
	if len(args) == 0 {
		return os.UserHomeDir()
	}
	if args[0] == "-" {
		old, ok := e.Local.GetOldWd(1)
		if !ok {
			return "", errNoOldWd
		}
		return old, nil
	}
	target := args[0]
	if filepath.IsAbs(target) {
		return target, nil
	}
	wd, _ := e.Local.GetWd()
	return filepath.Join(wd, target), nil
}

var errNoOldWd = cdError("no previous directory")

type cdError string

func (e cdError) Error() string { return string(e) }

func (s *cdState) Tick(out io.Writer) (bool, int) {
	if s.errLine == "" {
		return true, 0
	}
	n := writeAll(out, []byte(s.errLine[s.sent:]))
	s.sent += n
	if s.sent < len(s.errLine) {
		return false, 0
	}
	return true, s.code
}

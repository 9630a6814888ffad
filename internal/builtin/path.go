package builtin

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"tesh/internal/shellenv"
)

// defaultPathExt is substituted when PATHEXT isn't set in env, matching the
// suffixes Windows itself tries when none is configured.
var defaultPathExt = []string{".COM", ".EXE", ".BAT", ".CMD"}

// FindInPath searches the PATH variable visible from env for an executable
// named name, splitting on ';' (Windows) or ':' (POSIX) and probing each
// directory in turn, consulting PATHEXT suffixes on Windows. It resolves
// against the shell's own environment chain rather than the host process's
// environment, so a pipeline that exports its own Path sees that value
// rather than the one the host process happened to start with. A name that
// already contains a path separator is treated as pre-resolved and checked
// directly, bypassing the search.
func FindInPath(env *shellenv.Local, name string) (string, bool) {
	if strings.ContainsAny(name, `/\`) {
		if isExecutable(name) {
			return name, true
		}
		return "", false
	}

	pathVar, ok := env.GetVar("PATH")
	if !ok {
		return "", false
	}

	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	for _, dir := range strings.Split(pathVar.String(), sep) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if runtime.GOOS != "windows" {
			if isExecutable(candidate) {
				return candidate, true
			}
			continue
		}
		exts := defaultPathExt
		if pathext, ok := env.GetVar("PATHEXT"); ok {
			exts = strings.Split(pathext.String(), ";")
		}
		for _, ext := range exts {
			withExt := candidate + ext
			if isExecutable(withExt) {
				return withExt, true
			}
		}
	}
	return "", false
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}

package builtin

import (
	"fmt"
	"io"
	"strconv"
)

const defaultHistoryCount = 20

// historyState renders its lines once at construction, oldest first (the
// reverse of Store.Recent's most-recent-first order), then streams the
// buffer to out a partial write at a time.
type historyState struct {
	line string
	sent int
}

func newHistory(e Env) Builtin {
	n := defaultHistoryCount
	if len(e.Args) > 1 {
		if v, err := strconv.Atoi(e.Args[1]); err == nil && v > 0 {
			n = v
		}
	}
	if e.History == nil {
		return &historyState{}
	}
	entries, err := e.History.Recent(n)
	if err != nil {
		return &historyState{line: "history: " + err.Error() + "\n"}
	}
	var line string
	for i := len(entries) - 1; i >= 0; i-- {
		line += fmt.Sprintf("%d  %s\n", entries[i].ID, entries[i].Line)
	}
	return &historyState{line: line}
}

func (s *historyState) Tick(out io.Writer) (bool, int) {
	if s.sent >= len(s.line) {
		return true, 0
	}
	n := writeAll(out, []byte(s.line[s.sent:]))
	s.sent += n
	if s.sent < len(s.line) {
		return false, 0
	}
	return true, 0
}

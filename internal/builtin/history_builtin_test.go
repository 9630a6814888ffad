package builtin

import (
	"strings"
	"testing"

	"tesh/internal/history"
)

func TestHistoryBuiltinListsOldestFirst(t *testing.T) {
	store, err := history.Open()
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer store.Close()

	for _, line := range []string{"ls", "pwd", "echo hi"} {
		if _, err := store.Append(line, "/tmp"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	b := newHistory(Env{Args: []string{"history"}, History: store})
	out, code := tick(t, b)
	if code != 0 {
		t.Fatalf("history exit code = %d, want 0", code)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("history output has %d lines, want 3: %q", len(lines), out)
	}
	if !strings.HasSuffix(lines[0], "ls") || !strings.HasSuffix(lines[2], "echo hi") {
		t.Fatalf("history output not oldest-first: %q", out)
	}
}

func TestHistoryBuiltinNilStoreFinishesEmpty(t *testing.T) {
	b := newHistory(Env{Args: []string{"history"}})
	out, code := tick(t, b)
	if out != "" || code != 0 {
		t.Fatalf("history with nil store = (%q, %d), want (\"\", 0)", out, code)
	}
}

// Package render defines the read-only contract a renderer uses to observe
// shell state: backlog bytes and lifecycle metadata, the active prompt's
// text/cursor/undo history, and completion candidates. Nothing in this
// package mutates the state it reads; BacklogView and PromptView narrow
// *backlog.Backlog and *prompt.Prompt down to their read side so a renderer
// holding only the interface cannot accidentally call AppendText or Insert.
package render

import (
	"time"

	"tesh/internal/backlog"
	"tesh/internal/history"
	"tesh/internal/prompt"
	"tesh/internal/shellenv"
)

// BacklogView is the read-only surface of a backlog a renderer needs: byte
// access up to the collapsed render length, line/event indices, and
// lifecycle state (done/exit code/timestamps/cancelled).
type BacklogView interface {
	ID() uint64
	Get(i uint64) byte
	Length() uint64
	RenderLength() uint64
	RenderCollapsed() bool
	Lines() []uint64
	Events() []backlog.Event
	HyperlinkURL(e backlog.Event) string
	Done() bool
	ExitCode() int
	Cancelled() bool
	StartedAt() time.Time
	EndedAt() time.Time
}

var _ BacklogView = (*backlog.Backlog)(nil)

// PromptView is the read-only surface of a prompt's edit tree: current
// text/cursor plus the undo/redo history a renderer may want to visualize.
type PromptView interface {
	Prefix() string
	Text() []byte
	Cursor() int
	CursorColumn() int
	EditIndex() int
	History() []prompt.Edit
}

var _ PromptView = (*prompt.Prompt)(nil)

// CompletionSource looks up candidates for up-arrow/tab-style completion.
// *history.Store satisfies this directly.
type CompletionSource interface {
	SearchPrefix(prefix string, n int) ([]history.Entry, error)
}

var _ CompletionSource = (*history.Store)(nil)

// WorkingDirectory resolves the current working directory visible to a
// backlog's owning environment frame, per the render contract's requirement
// to query it through the shell's Local rather than the backlog itself.
func WorkingDirectory(env *shellenv.Local) (string, bool) {
	if env == nil {
		return "", false
	}
	return env.GetWd()
}

package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tesh/internal/backlog"
	"tesh/internal/wsserver"
)

// EncodeBytes produces the binary wsserver frame for the bytes currently
// visible through bv (respecting RenderCollapsed/RenderLength), ready to
// hand to Hub.BroadcastBacklogData's wire format.
func EncodeBytes(bv BacklogView) ([]byte, error) {
	return EncodeBytesFrom(bv, 0)
}

// EncodeBytesFrom produces the binary wsserver frame for the bytes visible
// through bv starting at offset from, so a caller that already streamed
// bytes [0, from) to a renderer only pays for what changed since. from is
// clamped to the current render length, so a stale offset (e.g. the
// backlog collapsed after being measured) yields an empty frame rather
// than a panic.
func EncodeBytesFrom(bv BacklogView, from uint64) ([]byte, error) {
	n := bv.RenderLength()
	if from > n {
		from = n
	}
	data := make([]byte, n-from)
	for i := from; i < n; i++ {
		data[i-from] = bv.Get(i)
	}
	return wsserver.EncodeBacklogData(strconv.FormatUint(bv.ID(), 10), data)
}

// EventSnapshot is the JSON-safe projection of a backlog.Event; URL is
// resolved eagerly because the renderer has no access to the owning
// backlog's arena.
type EventSnapshot struct {
	Index     uint64 `json:"index"`
	Kind      string `json:"kind"`
	Rendition uint64 `json:"rendition,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Metadata is the JSON side-channel payload describing a backlog's
// lifecycle and line/event indices, sent alongside (not inside) the binary
// byte frame produced by EncodeBytes.
type Metadata struct {
	BacklogID       string          `json:"backlogId"`
	Length          uint64          `json:"length"`
	RenderLength    uint64          `json:"renderLength"`
	RenderCollapsed bool            `json:"renderCollapsed"`
	Lines           []uint64        `json:"lines"`
	Events          []EventSnapshot `json:"events"`
	Done            bool            `json:"done"`
	ExitCode        int             `json:"exitCode,omitempty"`
	Cancelled       bool            `json:"cancelled,omitempty"`
	StartedAt       time.Time       `json:"startedAt"`
	EndedAt         time.Time       `json:"endedAt,omitempty"`
}

// EncodeMetadata builds a Metadata snapshot and marshals it to JSON.
func EncodeMetadata(bv BacklogView) ([]byte, error) {
	events := bv.Events()
	snaps := make([]EventSnapshot, len(events))
	for i, e := range events {
		snaps[i] = EventSnapshot{
			Index:     e.Index,
			Kind:      e.Kind.String(),
			Rendition: e.Rendition,
		}
		if e.Kind == backlog.EventStartHyperlink {
			snaps[i].URL = bv.HyperlinkURL(e)
		}
	}

	m := Metadata{
		BacklogID:       strconv.FormatUint(bv.ID(), 10),
		Length:          bv.Length(),
		RenderLength:    bv.RenderLength(),
		RenderCollapsed: bv.RenderCollapsed(),
		Lines:           bv.Lines(),
		Events:          snaps,
		Done:            bv.Done(),
		ExitCode:        bv.ExitCode(),
		Cancelled:       bv.Cancelled(),
		StartedAt:       bv.StartedAt(),
		EndedAt:         bv.EndedAt(),
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("render: encode metadata: %w", err)
	}
	return raw, nil
}

// PromptSnapshot is the JSON-safe projection of a Prompt's visible state.
type PromptSnapshot struct {
	Prefix       string `json:"prefix"`
	Text         string `json:"text"`
	Cursor       int    `json:"cursor"`
	CursorColumn int    `json:"cursorColumn"`
	EditIndex    int    `json:"editIndex"`
	HistoryDepth int    `json:"historyDepth"`
}

// EncodePromptSnapshot marshals pv's visible state to JSON.
func EncodePromptSnapshot(pv PromptView) ([]byte, error) {
	s := PromptSnapshot{
		Prefix:       pv.Prefix(),
		Text:         string(pv.Text()),
		Cursor:       pv.Cursor(),
		CursorColumn: pv.CursorColumn(),
		EditIndex:    pv.EditIndex(),
		HistoryDepth: len(pv.History()),
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("render: encode prompt snapshot: %w", err)
	}
	return raw, nil
}

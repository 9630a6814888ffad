// Package prompt implements an undo/redo edit tree over an editable text
// buffer: grouped ("combo") edits, cursor-movement policies, and replayable
// redo. It is a pure data structure — no rendering, no key-binding dispatch.
package prompt

import "tesh/internal/runeinfo"

// CursorPolicy selects how an edit repositions the cursor when applied or
// undone.
type CursorPolicy uint8

const (
	// CursorIndep leaves the cursor untouched.
	CursorIndep CursorPolicy = iota
	// CursorBefore moves the cursor to just after the affected text.
	CursorBefore
	// CursorAfter moves the cursor to just before the affected text.
	CursorAfter
)

// EditOp is the operation an Edit performs.
type EditOp uint8

const (
	OpInsert EditOp = iota
	OpRemove
)

// comboMarker distinguishes ordinary edits from the bracketing markers
// start_combo/end_combo push onto the same history.
type comboMarker uint8

const (
	comboNone comboMarker = iota
	comboStart
	comboEnd
)

// Edit is one entry in the undo/redo history.
type Edit struct {
	Op       EditOp
	Cursor   CursorPolicy
	combo    comboMarker
	Position int
	Value    []byte
}

// IsComboStart and IsComboEnd expose the bracketing-marker edits to callers
// that want to render or inspect history structure (e.g. tests).
func (e Edit) IsComboStart() bool { return e.combo == comboStart }
func (e Edit) IsComboEnd() bool   { return e.combo == comboEnd }

// editArena is a tiny bump allocator owning the byte strings referenced by
// pushed edits; values are immutable once pushed, so nothing is ever freed
// piecemeal — only ClearUndoTree resets it.
type editArena struct {
	data []byte
}

func (a *editArena) clone(b []byte) []byte {
	off := len(a.data)
	a.data = append(a.data, b...)
	return a.data[off : off+len(b) : off+len(b)]
}

// Prompt is the editable command-line buffer plus its undo tree.
type Prompt struct {
	prefix string

	text   []byte
	cursor int

	history   []Edit
	editIndex int
	arena     editArena
}

// New constructs an empty prompt with the given static prefix (e.g. a
// rendered "$ ").
func New(prefix string) *Prompt {
	return &Prompt{prefix: prefix}
}

// Prefix returns the prompt's static prefix string.
func (p *Prompt) Prefix() string { return p.prefix }

// Text returns the current buffer contents. Callers must not mutate the
// returned slice.
func (p *Prompt) Text() []byte { return p.text }

// Cursor returns the current byte offset, always <= len(Text()).
func (p *Prompt) Cursor() int { return p.cursor }

// EditIndex returns the cursor into edit_history; entries [0, EditIndex)
// are currently applied.
func (p *Prompt) EditIndex() int { return p.editIndex }

// History returns the full edit log, including entries beyond EditIndex
// that remain available for Redo.
func (p *Prompt) History() []Edit { return p.history }

// pushEdit truncates edit_history to edit_index (discarding any redo
// branch) before appending.
func (p *Prompt) pushEdit(e Edit) {
	p.history = append(p.history[:p.editIndex], e)
	p.editIndex++
}

func (p *Prompt) applyInsert(pos int, text []byte) {
	buf := make([]byte, 0, len(p.text)+len(text))
	buf = append(buf, p.text[:pos]...)
	buf = append(buf, text...)
	buf = append(buf, p.text[pos:]...)
	p.text = buf
}

func (p *Prompt) applyRemove(start, end int) []byte {
	removed := append([]byte(nil), p.text[start:end]...)
	buf := make([]byte, 0, len(p.text)-(end-start))
	buf = append(buf, p.text[:start]...)
	buf = append(buf, p.text[end:]...)
	p.text = buf
	return removed
}

// Insert records and applies an insertion at pos [Indep]; the cursor is
// untouched.
func (p *Prompt) Insert(pos int, text []byte) {
	p.pushInsert(pos, text, CursorIndep)
	p.applyInsert(pos, text)
}

// InsertBefore inserts text at pos and moves the cursor to just after it.
func (p *Prompt) InsertBefore(pos int, text []byte) {
	p.pushInsert(pos, text, CursorBefore)
	p.applyInsert(pos, text)
	p.cursor = pos + len(text)
}

// InsertAfter inserts text at pos and leaves the cursor at pos (i.e. just
// before the inserted text).
func (p *Prompt) InsertAfter(pos int, text []byte) {
	p.pushInsert(pos, text, CursorAfter)
	p.applyInsert(pos, text)
	p.cursor = pos
}

func (p *Prompt) pushInsert(pos int, text []byte, policy CursorPolicy) {
	p.pushEdit(Edit{
		Op:       OpInsert,
		Cursor:   policy,
		Position: pos,
		Value:    p.arena.clone(text),
	})
}

// Remove records and applies removal of [start, end) [Indep]; the cursor is
// untouched.
func (p *Prompt) Remove(start, end int) {
	p.pushRemove(start, end, CursorIndep)
	p.applyRemove(start, end)
}

// RemoveBefore removes [start, end) and moves the cursor to start.
func (p *Prompt) RemoveBefore(start, end int) {
	p.pushRemove(start, end, CursorBefore)
	p.applyRemove(start, end)
	p.cursor = start
}

// RemoveAfter removes [start, end) and moves the cursor to start.
//
// This is identical to RemoveBefore. The original source implements both
// this way in the source this was ported from. Keeping them identical
// preserves the undo∘redo = identity invariant either way, and nothing
// calls for a divergence between the two.
func (p *Prompt) RemoveAfter(start, end int) {
	p.pushRemove(start, end, CursorAfter)
	p.applyRemove(start, end)
	p.cursor = start
}

func (p *Prompt) pushRemove(start, end int, policy CursorPolicy) {
	p.pushEdit(Edit{
		Op:       OpRemove,
		Cursor:   policy,
		Position: start,
		Value:    p.arena.clone(p.text[start:end]),
	})
}

// StartCombo pushes a bracketing marker so a following sequence of edits
// undoes/redoes atomically. Combos may nest.
func (p *Prompt) StartCombo() {
	p.pushEdit(Edit{combo: comboStart})
}

// EndCombo closes the most recently opened combo.
func (p *Prompt) EndCombo() {
	p.pushEdit(Edit{combo: comboEnd})
}

// Undo walks backward from edit_index, inverting each edit, until a full
// combo (or one non-combo edit) has been undone. Returns false if there is
// nothing to undo.
func (p *Prompt) Undo() bool {
	if p.editIndex == 0 {
		return false
	}
	depth := 0
	for {
		p.editIndex--
		edit := p.history[p.editIndex]
		switch {
		case edit.IsComboStart():
			depth--
		case edit.IsComboEnd():
			depth++
		case edit.Op == OpRemove:
			// Undo remove = insert.
			p.applyInsert(edit.Position, edit.Value)
			switch edit.Cursor {
			case CursorBefore:
				p.cursor = edit.Position + len(edit.Value)
			case CursorAfter:
				p.cursor = edit.Position
			}
		default:
			// Undo insert = remove.
			p.applyRemove(edit.Position, edit.Position+len(edit.Value))
			switch edit.Cursor {
			case CursorBefore, CursorAfter:
				p.cursor = edit.Position
			}
		}
		if depth == 0 {
			break
		}
	}
	return true
}

// Redo walks forward from edit_index, replaying each edit exactly as its
// originating Insert*/Remove* call did. Returns false if there is nothing
// to redo.
func (p *Prompt) Redo() bool {
	if p.editIndex == len(p.history) {
		return false
	}
	depth := 0
	for {
		edit := p.history[p.editIndex]
		p.editIndex++
		switch {
		case edit.IsComboStart():
			depth++
		case edit.IsComboEnd():
			depth--
		case edit.Op == OpRemove:
			p.applyRemove(edit.Position, edit.Position+len(edit.Value))
			switch edit.Cursor {
			case CursorBefore, CursorAfter:
				p.cursor = edit.Position
			}
		default:
			p.applyInsert(edit.Position, edit.Value)
			switch edit.Cursor {
			case CursorBefore:
				p.cursor = edit.Position + len(edit.Value)
			case CursorAfter:
				p.cursor = edit.Position
			}
		}
		if depth == 0 {
			break
		}
	}
	return true
}

// PrevRuneStart returns the byte offset of the start of the UTF-8 rune
// immediately before pos, by walking back over continuation bytes. A
// left-arrow keystroke calls this (via MoveLeft) rather than decrementing
// the cursor by one byte, so it steps over a whole multi-byte character at
// once instead of landing mid-sequence.
func (p *Prompt) PrevRuneStart(pos int) int {
	i := pos - 1
	for i > 0 && isUTF8Continuation(p.text[i]) {
		i--
	}
	if i < 0 {
		i = 0
	}
	return i
}

// NextRuneEnd returns the byte offset just past the UTF-8 rune starting at
// pos, using runeinfo.Decode to find the sequence length. An incomplete or
// malformed sequence (the tail of a buffer cut mid-rune) advances by a
// single byte rather than getting stuck.
func (p *Prompt) NextRuneEnd(pos int) int {
	if pos >= len(p.text) {
		return len(p.text)
	}
	_, size, incomplete := runeinfo.Decode(p.text[pos:])
	if incomplete || size == 0 {
		return pos + 1
	}
	return pos + size
}

func isUTF8Continuation(b byte) bool { return b&0xC0 == 0x80 }

// MoveLeft moves the cursor back by one full rune and returns the new
// position.
func (p *Prompt) MoveLeft() int {
	p.cursor = p.PrevRuneStart(p.cursor)
	return p.cursor
}

// MoveRight moves the cursor forward by one full rune and returns the new
// position.
func (p *Prompt) MoveRight() int {
	p.cursor = p.NextRuneEnd(p.cursor)
	return p.cursor
}

// CursorColumn reports the cursor's visual column: the sum of each
// preceding rune's display width, so a wide (e.g. CJK) character advances
// the column by two rather than one.
func (p *Prompt) CursorColumn() int {
	return runeinfo.StringWidth(string(p.text[:p.cursor]))
}

// ClearUndoTree drops all edits and their arena. It does not touch the
// current text or cursor.
func (p *Prompt) ClearUndoTree() {
	p.history = nil
	p.editIndex = 0
	p.arena = editArena{}
}

// Package backlog implements a chunked, append-only byte store that
// incrementally parses terminal control sequences as bytes arrive,
// maintaining line indices, graphics-rendition events, and hyperlink
// state.
//
// A Backlog is created per shell pipeline and is shared between the
// producer (the shell, which calls AppendText as the pseudo-terminal
// yields bytes) and the renderer (which reads it through the read-only
// contract in internal/render). Ownership is refcounted rather than
// GC-only — Retain/DecRefCount mirror internal/strref's Clone/Drop.
package backlog

import (
	"log/slog"
	"time"
)

// chunkSize is the fixed chunk width: index i decomposes into chunk i>>12,
// offset i&0xfff.
const chunkSize = 4096

const chunkShift = 12
const chunkMask = chunkSize - 1

// maxEscapeBacklog bounds how long an in-flight, never-terminated escape or
// OSC sequence may grow before it is forcibly spilled as literal text.
// Leaving escape_backlog unbounded lets a client that never sends a
// terminator (e.g. a BEL-less OSC 8 stream) grow it forever; this mirrors
// the same kind of length guard other CSI/OSC parsers use against
// adversarial input.
const maxEscapeBacklog = 8192

// Backlog is the per-pipeline append-only byte store.
type Backlog struct {
	id        uint64
	buffers   [][]byte
	length    uint64
	maxLength uint64

	lines  []uint64
	events []Event

	escapeBacklog []byte

	rendition       uint64
	insideHyperlink bool

	arena arena

	refcount int32

	// Render contract fields, consumed by a read-only renderer view. These
	// are written by the shell pipeline on program lifecycle transitions,
	// not by the escape parser.
	renderCollapsed bool
	done            bool
	exitCode        int
	cancelled       bool
	startedAt       time.Time
	endedAt         time.Time
}

// New constructs an empty backlog with the given stable id and byte cap.
// The single initial chunk is allocated lazily, on first write, rather
// than eagerly here.
func New(id uint64, maxLength uint64) *Backlog {
	return &Backlog{
		id:        id,
		maxLength: maxLength,
		rendition: defaultRendition(),
		refcount:  1,
		startedAt: time.Now(),
	}
}

// ID returns the backlog's stable numeric identifier.
func (b *Backlog) ID() uint64 { return b.id }

// Length returns the logical byte count currently stored.
func (b *Backlog) Length() uint64 { return b.length }

// MaxLength returns the configured hard cap.
func (b *Backlog) MaxLength() uint64 { return b.maxLength }

// Lines returns the line-start index: an ordered sequence of byte indices,
// one per '\n' seen so far.
func (b *Backlog) Lines() []uint64 { return b.lines }

// Events returns the event log accumulated so far.
func (b *Backlog) Events() []Event { return b.events }

// InsideHyperlink reports whether the parser is currently between an
// OSC-8 start and its matching end.
func (b *Backlog) InsideHyperlink() bool { return b.insideHyperlink }

// Get performs a constant-time random read by (chunk, offset) decomposition.
// It panics on an out-of-range index, matching slice indexing semantics
// elsewhere in the package; callers are expected to bound i by Length()
// first, exactly as with a Go slice.
func (b *Backlog) Get(i uint64) byte {
	chunkIdx := i >> chunkShift
	offset := i & chunkMask
	return b.buffers[chunkIdx][offset]
}

// RenderLength reports lines[0] while collapsed (so a renderer shows just
// the first line of a long-running program's output) or the full length
// otherwise.
func (b *Backlog) RenderLength() uint64 {
	if b.renderCollapsed && len(b.lines) > 0 {
		return b.lines[0]
	}
	return b.length
}

// SetRenderCollapsed toggles the render_collapsed flag.
func (b *Backlog) SetRenderCollapsed(collapsed bool) { b.renderCollapsed = collapsed }

// RenderCollapsed reports the current render_collapsed flag.
func (b *Backlog) RenderCollapsed() bool { return b.renderCollapsed }

// Done, ExitCode, Cancelled, StartedAt, EndedAt expose the remaining
// render-contract fields; MarkDone/MarkCancelled are called by the shell
// pipeline on program completion/cancellation.
func (b *Backlog) Done() bool           { return b.done }
func (b *Backlog) ExitCode() int        { return b.exitCode }
func (b *Backlog) Cancelled() bool      { return b.cancelled }
func (b *Backlog) StartedAt() time.Time { return b.startedAt }
func (b *Backlog) EndedAt() time.Time   { return b.endedAt }

// MarkDone records pipeline completion with the given exit code.
func (b *Backlog) MarkDone(exitCode int) {
	b.done = true
	b.exitCode = exitCode
	b.endedAt = time.Now()
}

// MarkCancelled records that the pipeline was killed before completion.
// Cancellation does not truncate already-written content.
func (b *Backlog) MarkCancelled() {
	b.cancelled = true
	b.done = true
	b.endedAt = time.Now()
}

// Retain increments the refcount. Each new owner (renderer attach, shell
// pipeline handoff) must call this before holding its own reference.
func (b *Backlog) Retain() {
	b.refcount++
}

// DecRefCount decrements the refcount and releases owned resources once it
// reaches zero. Returns true if this call triggered cleanup.
func (b *Backlog) DecRefCount() bool {
	b.refcount--
	if b.refcount > 0 {
		return false
	}
	if b.refcount < 0 {
		slog.Warn("[WARN-BACKLOG] refcount underflow", "id", b.id)
	}
	b.cleanup()
	return true
}

// RefCount reports the current refcount, for tests and diagnostics.
func (b *Backlog) RefCount() int32 { return b.refcount }

func (b *Backlog) cleanup() {
	b.buffers = nil
	b.lines = nil
	b.events = nil
	b.escapeBacklog = nil
	b.arena.data = nil
}

// newChunk allocates one fixed-size chunk.
func newChunk() []byte {
	return make([]byte, chunkSize)
}

// writePlain is the chunk writer: it allocates a new chunk when the current
// one is full, stops once length == max_length, and returns the number of
// bytes actually stored. For every '\n' it passes, it records a lines entry.
func (b *Backlog) writePlain(data []byte) int {
	n := 0
	for n < len(data) {
		if b.length >= b.maxLength {
			break
		}
		chunkIdx := int(b.length >> chunkShift)
		offset := b.length & chunkMask
		for chunkIdx >= len(b.buffers) {
			b.buffers = append(b.buffers, newChunk())
		}
		b.buffers[chunkIdx][offset] = data[n]
		b.length++
		if data[n] == '\n' {
			b.lines = append(b.lines, b.length)
		}
		n++
	}
	return n
}

// putByte writes a single synthesized byte (used for the \r\n → \n
// normalization) through the same chunk-writer path.
func (b *Backlog) putByte(c byte) int {
	return b.writePlain([]byte{c})
}

// currentLineStart returns the byte index right after the most recent '\n',
// or 0 if there is none yet.
func (b *Backlog) currentLineStart() uint64 {
	if len(b.lines) == 0 {
		return 0
	}
	return b.lines[len(b.lines)-1]
}

// truncateToLineStart drops the current (incomplete) line's content,
// implementing the `\rX` and bare `CSI H`/`CSI f` truncation behaviors. It
// never truncates below the start of the current line, and never below
// zero.
func (b *Backlog) truncateToLineStart() {
	start := b.currentLineStart()
	if b.length > start {
		b.length = start
	}
}

// handleDel applies a DEL byte: if the cursor sits past the current line's
// start, truncate length by one. The underlying byte is left in place in
// its chunk; it is simply no longer within [0, length) and will be
// overwritten by the next write at that offset.
func (b *Backlog) handleDel() {
	if b.length > b.currentLineStart() {
		b.length--
	}
}

package backlog

// EventKind enumerates the event kinds emitted while parsing.
type EventKind uint8

const (
	EventStartInput EventKind = iota
	EventStartProcess
	EventStartDirectory
	EventSetGraphicRendition
	EventStartHyperlink
	EventEndHyperlink
)

func (k EventKind) String() string {
	switch k {
	case EventStartInput:
		return "StartInput"
	case EventStartProcess:
		return "StartProcess"
	case EventStartDirectory:
		return "StartDirectory"
	case EventSetGraphicRendition:
		return "SetGraphicRendition"
	case EventStartHyperlink:
		return "StartHyperlink"
	case EventEndHyperlink:
		return "EndHyperlink"
	default:
		return "Unknown"
	}
}

// Event is one (index, kind, payload) record. Rendition is valid when
// Kind == EventSetGraphicRendition; url is valid when Kind ==
// EventStartHyperlink and is resolved against the owning backlog's arena.
type Event struct {
	Index     uint64
	Kind      EventKind
	Rendition uint64

	url ref
}

// emit appends an event at the backlog's current length. Events are
// emitted strictly at the write cursor before the byte they attach to, so
// callers emit before writing the associated bytes.
func (b *Backlog) emit(kind EventKind) {
	b.events = append(b.events, Event{Index: b.length, Kind: kind})
}

func (b *Backlog) emitRendition() {
	b.events = append(b.events, Event{
		Index:     b.length,
		Kind:      EventSetGraphicRendition,
		Rendition: b.rendition,
	})
}

func (b *Backlog) emitHyperlinkStart(url []byte) {
	r := b.arena.alloc(url)
	b.events = append(b.events, Event{Index: b.length, Kind: EventStartHyperlink, url: r})
	b.insideHyperlink = true
}

func (b *Backlog) emitHyperlinkEnd() {
	b.events = append(b.events, Event{Index: b.length, Kind: EventEndHyperlink})
	b.insideHyperlink = false
}

// HyperlinkURL resolves an EventStartHyperlink event's payload against this
// backlog's arena. Calling it on any other event kind returns "".
func (b *Backlog) HyperlinkURL(e Event) string {
	if e.Kind != EventStartHyperlink {
		return ""
	}
	return b.arena.string(e.url)
}

// EmitStartInput records that subsequent bytes originate from the echoed
// command line rather than a program's own output. StartExecuteLine calls
// this before writing the reassembled pipeline text; AppendText itself has
// no notion of byte provenance.
func (b *Backlog) EmitStartInput() { b.emit(EventStartInput) }

// EmitStartProcess records that subsequent bytes originate from a spawned
// program's stdout/stderr. StartExecuteLine calls this once the echoed
// command line has been written and the pipeline's own output is about to
// start.
func (b *Backlog) EmitStartProcess() { b.emit(EventStartProcess) }

// EmitStartDirectory records that subsequent bytes originate from a
// directory-listing builtin (ls), letting the renderer apply
// file-listing-specific styling. Called through ProcessOutput, which the ls
// builtin reaches via its output sink.
func (b *Backlog) EmitStartDirectory() { b.emit(EventStartDirectory) }

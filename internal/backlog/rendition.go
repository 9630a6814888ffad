package backlog

// graphics_rendition is a 64-bit packed word: four single-bit flags plus
// two 8-bit color fields. The remaining bits are reserved.
const (
	renditionBold      uint64 = 1 << 0
	renditionUnderline uint64 = 1 << 1
	renditionReverse   uint64 = 1 << 2
	renditionBright    uint64 = 1 << 3

	renditionFgShift = 8
	renditionFgMask  = uint64(0xFF) << renditionFgShift
	renditionBgShift = 16
	renditionBgMask  = uint64(0xFF) << renditionBgShift
)

// defaultRendition is "white foreground on default background" (fg=7).
func defaultRendition() uint64 {
	return uint64(7) << renditionFgShift
}

func (b *Backlog) resetRendition() {
	b.rendition = defaultRendition()
}

func (b *Backlog) setFlag(flag uint64, on bool) {
	if on {
		b.rendition |= flag
	} else {
		b.rendition &^= flag
	}
}

func (b *Backlog) setForeground(n uint8, bright bool) {
	b.rendition = (b.rendition &^ renditionFgMask) | (uint64(n) << renditionFgShift)
	b.setFlag(renditionBright, bright)
}

func (b *Backlog) setBackground(n uint8) {
	b.rendition = (b.rendition &^ renditionBgMask) | (uint64(n) << renditionBgShift)
}

// setForegroundRaw stores a full 0-255 palette index from an extended (38;5;n)
// color code; it does not touch the bright flag, which only has meaning for
// the basic 8-color codes.
func (b *Backlog) setForegroundRaw(n uint8) {
	b.rendition = (b.rendition &^ renditionFgMask) | (uint64(n) << renditionFgShift)
}

func (b *Backlog) setBackgroundRaw(n uint8) {
	b.rendition = (b.rendition &^ renditionBgMask) | (uint64(n) << renditionBgShift)
}

// applySGR iterates a CSI `m` sequence's argument list and emits exactly
// one SetGraphicRendition event for the whole sequence.
func (b *Backlog) applySGR(args []int) {
	if len(args) == 0 {
		args = []int{-1}
	}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a <= 0:
			b.resetRendition()
		case a == 1:
			b.setFlag(renditionBold, true)
		case a == 21:
			b.setFlag(renditionBold, false)
		case a == 4:
			b.setFlag(renditionUnderline, true)
		case a == 24:
			b.setFlag(renditionUnderline, false)
		case a == 7:
			b.setFlag(renditionReverse, true)
		case a == 27:
			b.setFlag(renditionReverse, false)
		case a >= 30 && a <= 37:
			b.setForeground(uint8(a-30), false)
		case a >= 90 && a <= 97:
			b.setForeground(uint8(a-90), true)
		case a >= 40 && a <= 47:
			b.setBackground(uint8(a - 40))
		case a >= 100 && a <= 107:
			b.setBackground(uint8(a - 100))
			b.setFlag(renditionBright, true)
		case a == 38:
			i = b.parseExtendedColor(args, i, true)
		case a == 48:
			i = b.parseExtendedColor(args, i, false)
		default:
			// Unknown codes ignored.
		}
	}
	b.emitRendition()
}

// parseExtendedColor handles the `38`/`48` extended-color sub-sequences and
// returns the index of the last argument it consumed, so the caller's loop
// resumes after it.
//
// `;5;<n>` (256-color) stores n. `;2;<r>;<g>;<b>` (true color) advances past
// all three components but drops them, since the two 8-bit color fields
// here have no room for a 24-bit triple.
func (b *Backlog) parseExtendedColor(args []int, i int, isFg bool) int {
	if i+1 >= len(args) {
		return i
	}
	mode := args[i+1]
	switch mode {
	case 5:
		if i+2 < len(args) {
			n := args[i+2]
			if n < 0 {
				n = 0
			}
			if n > 255 {
				n = 255
			}
			if isFg {
				b.setForegroundRaw(uint8(n))
			} else {
				b.setBackgroundRaw(uint8(n))
			}
			return i + 2
		}
		return i + 1
	case 2:
		end := i + 1
		for k := 0; k < 3 && end+1 < len(args); k++ {
			end++
		}
		return end
	default:
		return i + 1
	}
}

// Package runeinfo decodes UTF-8 code points from a byte stream and reports
// their display width. The backlog's escape parser treats multi-byte runes
// as opaque plain bytes, but the prompt's cursor math needs to know how
// many terminal columns a rune occupies.
package runeinfo

import (
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Decode reads one rune from the front of b. It mirrors utf8.DecodeRune but
// additionally reports whether b holds a genuine prefix of a longer
// sequence (incomplete) versus an outright invalid lead byte.
//
// Incomplete is true when b is a valid-so-far prefix of a multi-byte
// sequence that simply ran out of bytes; callers should buffer and wait
// for more input rather than treating the bytes as malformed.
func Decode(b []byte) (r rune, size int, incomplete bool) {
	if len(b) == 0 {
		return utf8.RuneError, 0, true
	}
	r, size = utf8.DecodeRune(b)
	if r == utf8.RuneError && size == 1 {
		if NeedBytes(b[0]) > len(b) {
			return utf8.RuneError, 0, true
		}
	}
	return r, size, false
}

// NeedBytes reports how many bytes a UTF-8 sequence starting with lead is
// expected to occupy, based on the leading byte's high bits alone. It does
// not validate continuation bytes; it only tells a partial-buffer reader
// how many more bytes to wait for.
func NeedBytes(lead byte) int {
	switch {
	case lead&0x80 == 0x00:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 1
	}
}

// Width reports the number of terminal columns a rune occupies: 0 for
// combining/zero-width runes, 2 for wide East-Asian runes, 1 otherwise.
func Width(r rune) int {
	return runewidth.RuneWidth(r)
}

// StringWidth sums Width over every rune in s.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

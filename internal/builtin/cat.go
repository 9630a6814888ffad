package builtin

import "io"

const catBufSize = 4096

// catState streams e.Stdin to its output a buffer at a time: pending holds
// bytes read but not yet fully written, so a short write on the sink side
// doesn't lose anything.
type catState struct {
	src     io.Reader
	buf     []byte
	pending []byte
	eof     bool
}

func newCat(e Env) Builtin {
	return &catState{src: e.Stdin, buf: make([]byte, catBufSize)}
}

func (s *catState) Tick(out io.Writer) (bool, int) {
	if s.src == nil {
		return true, 0
	}
	for {
		if len(s.pending) > 0 {
			n := writeAll(out, s.pending)
			s.pending = s.pending[n:]
			if n <= 0 {
				return false, 0
			}
			if len(s.pending) > 0 {
				return false, 0
			}
		}
		if s.eof {
			return true, 0
		}
		n, err := s.src.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending[:0], s.buf[:n]...)
		}
		if err != nil {
			s.eof = true
			if n == 0 {
				return true, 0
			}
			continue
		}
		if n == 0 {
			// Source has no data ready yet but isn't at EOF: wait for the
			// next tick instead of busy-spinning this one.
			return false, 0
		}
	}
}

// Package strref implements a manually refcounted, shared immutable byte
// string. It backs environment variable values, where many frames may
// share one backing buffer without copying it.
package strref

import "sync/atomic"

// String is a shared, immutable byte string with an explicit refcount. The
// zero value is not usable; construct with New.
type String struct {
	data []byte
	refs *int32
}

// New allocates a String that owns a copy of b, starting at refcount 1.
func New(b []byte) String {
	buf := make([]byte, len(b))
	copy(buf, b)
	n := int32(1)
	return String{data: buf, refs: &n}
}

// NewFromString is a convenience wrapper around New.
func NewFromString(s string) String {
	return New([]byte(s))
}

// Bytes returns the shared backing buffer. Callers must not mutate it.
func (s String) Bytes() []byte {
	return s.data
}

// String returns a copy of the backing buffer as a Go string.
func (s String) String() string {
	return string(s.data)
}

// Len returns the byte length.
func (s String) Len() int {
	return len(s.data)
}

// Clone increments the refcount and returns the same shared value. The
// caller now holds an independent reference that must be Dropped.
func (s String) Clone() String {
	if s.refs != nil {
		atomic.AddInt32(s.refs, 1)
	}
	return s
}

// Drop decrements the refcount. When it reaches zero the backing buffer is
// released (dropped for GC). Dropping a zero value is a no-op.
func (s String) Drop() {
	if s.refs == nil {
		return
	}
	if atomic.AddInt32(s.refs, -1) == 0 {
		s.data = nil
	}
}

// RefCount reports the current refcount, for tests and diagnostics.
func (s String) RefCount() int32 {
	if s.refs == nil {
		return 0
	}
	return atomic.LoadInt32(s.refs)
}

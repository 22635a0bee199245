package audio

import "sync"

// RingBuffer is a fixed-capacity circular byte buffer holding the most
// recent audio. One goroutine writes; any number may snapshot.
type RingBuffer struct {
	mu     sync.Mutex
	data   []byte
	cursor int  // next write position
	full   bool // cursor has wrapped at least once
}

// NewRingBuffer allocates a buffer of capacity bytes. The capacity never
// changes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity in bytes.
func (r *RingBuffer) Cap() int {
	return len(r.data)
}

// Write copies p at the cursor, overwriting the oldest bytes once full.
func (r *RingBuffer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(p) > 0 {
		n := copy(r.data[r.cursor:], p)
		p = p[n:]
		r.cursor += n
		if r.cursor == len(r.data) {
			r.cursor = 0
			r.full = true
		}
	}
}

// Snapshot returns a copy of the buffered bytes, oldest first, or nil if
// nothing has been written since the last reset.
func (r *RingBuffer) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		if r.cursor == 0 {
			return nil
		}
		out := make([]byte, r.cursor)
		copy(out, r.data[:r.cursor])
		return out
	}

	out := make([]byte, len(r.data))
	n := copy(out, r.data[r.cursor:])
	copy(out[n:], r.data[:r.cursor])
	return out
}

// Reset empties the buffer without releasing its storage.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	r.cursor = 0
	r.full = false
	r.mu.Unlock()
}

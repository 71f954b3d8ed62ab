package session

import "sync"

// DefaultRingSize bounds how much recent raw output a session retains.
// 100 KiB is plenty to repaint a screen on reattach and to run ready-prompt
// detection against the tail.
const DefaultRingSize = 100 * 1024

// ring is a fixed-size circular byte buffer over a session's raw output.
// It keeps terminal escape sequences intact so the tail can be replayed
// verbatim when a human reattaches.
type ring struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	writePos int
	stored   int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &ring{data: make([]byte, capacity), capacity: capacity}
}

// write appends bytes, overwriting the oldest data when full.
func (r *ring) write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) >= r.capacity {
		copy(r.data, p[len(p)-r.capacity:])
		r.writePos = 0
		r.stored = r.capacity
		return
	}
	for off := 0; off < len(p); {
		n := copy(r.data[r.writePos:], p[off:])
		r.writePos = (r.writePos + n) % r.capacity
		off += n
	}
	r.stored += len(p)
	if r.stored > r.capacity {
		r.stored = r.capacity
	}
}

// tail returns up to n of the most recently written bytes, oldest first.
func (r *ring) tail(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.stored {
		n = r.stored
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	start := (r.writePos - n + r.capacity*2) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%r.capacity]
	}
	return out
}

// reset discards all buffered output. Called when the child emits a
// full-screen clear: the buffered tail no longer reflects what a reattaching
// terminal should see.
func (r *ring) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos = 0
	r.stored = 0
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stored
}

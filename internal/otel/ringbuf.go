package otel

import "sync"

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 512

// RingBuffer is a fixed-size circular buffer of Events.
// Goroutine-safe for concurrent Push and read operations.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	size  int
	head  int // next write position
	count int // valid entries, 0..size
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{
		buf:  make([]Event, size),
		size: size,
	}
}

// Push adds an event, overwriting the oldest if full.
func (r *RingBuffer) Push(e Event) {
	r.mu.Lock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of all events, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(r.count)
}

// Last returns the n most recent events, oldest first.
// If n exceeds the count, every event is returned. If n <= 0, nil.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	return r.lastLocked(n)
}

func (r *RingBuffer) lastLocked(n int) []Event {
	if n == 0 {
		return nil
	}
	result := make([]Event, n)
	start := (r.head - n + r.size) % r.size
	if start+n <= r.size {
		copy(result, r.buf[start:start+n])
	} else {
		first := copy(result, r.buf[start:])
		copy(result[first:], r.buf[:n-first])
	}
	return result
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return r.size
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	counts := make(map[EventKind]int)
	for _, e := range r.Snapshot() {
		counts[e.Kind]++
	}
	return counts
}

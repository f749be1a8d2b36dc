package otel

// The drain goroutine is the only reader of l.ch and the only writer to l.w.
// Logger.mu guards the l.buf pointer alone; drain releases it before Push.

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/newsdedup/internal/logging"
)

// writerChanSize is the capacity of the async write channel.
const writerChanSize = 1024

// logEntry carries the encoded line for disk and the Event for the ring
// buffer, so Dur survives without a JSON round-trip.
type logEntry struct {
	data []byte
	ev   Event
}

// Logger serializes events as JSONL via an async background writer.
// Emit never blocks: a full channel drops the event and counts it.
type Logger struct {
	mu        sync.Mutex
	buf       *RingBuffer
	sessionID string
	ch        chan logEntry
	w         io.Writer
	dropped   atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w and starts its drain
// goroutine. Call Close to flush.
func NewLogger(w io.Writer) *Logger {
	var sid [8]byte
	_, _ = rand.Read(sid[:])

	l := &Logger{
		sessionID: fmt.Sprintf("%x", sid[:]),
		ch:        make(chan logEntry, writerChanSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// NewNullLogger creates a Logger that only feeds its ring buffer.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

func (l *Logger) drain() {
	defer close(l.done)
	for entry := range l.ch {
		if _, err := l.w.Write(entry.data); err != nil {
			l.dropped.Add(1)
		}

		l.mu.Lock()
		rb := l.buf
		l.mu.Unlock()

		if rb != nil {
			rb.Push(entry.ev)
		}
	}
}

// Emit queues an event. Time defaults to now and SessionID is always set.
// Safe on a nil Logger and concurrently with Close.
func (l *Logger) Emit(e Event) {
	if l == nil {
		return
	}
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.sessionID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- logEntry{data: data, ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// SetRingBuffer attaches a ring buffer for live inspection.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = buf
}

// SessionID returns the id stamped on every event from this Logger.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes pending events and stops the drain goroutine.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if d := l.dropped.Load(); d > 0 {
			logging.Warn("Events dropped", "count", d, "session", l.sessionID)
		}
	})
}

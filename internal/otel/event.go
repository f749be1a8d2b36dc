// Package otel records what each search request did.
//
// Events are flat structs serialized as JSONL lines. The Logger writes them
// asynchronously through a buffered channel and a background drain goroutine.
// An optional RingBuffer keeps the most recent events in memory for the
// /debug/events endpoint.
package otel

import (
	"context"
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	KindSearchComplete EventKind = "search.complete"
	KindSearchError    EventKind = "search.error"
	KindSearchSkipped  EventKind = "search.skipped"

	KindDedupComplete EventKind = "dedup.complete"
	KindDedupError    EventKind = "dedup.error"
	KindDedupMismatch EventKind = "dedup.mismatch"

	KindRequestComplete EventKind = "request.complete"

	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
)

// Event is one observability record. Every field except Kind and Time is
// optional.
type Event struct {
	Time      time.Time     `json:"t"`
	Level     Level         `json:"level,omitempty"`
	Kind      EventKind     `json:"kind"`
	Comp      string        `json:"comp,omitempty"` // "coord", "web", "main"
	SessionID string        `json:"session_id,omitempty"`
	RequestID string        `json:"rid,omitempty"`
	Dur       time.Duration `json:"-"`
	DurMs     float64       `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Query     string        `json:"query,omitempty"`
	Strategy  string        `json:"strategy,omitempty"`
	Count     int           `json:"count,omitempty"`
	Kept      int           `json:"kept,omitempty"`
	Calls     int           `json:"calls,omitempty"`
	Err       string        `json:"err,omitempty"`
	Msg       string        `json:"msg,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

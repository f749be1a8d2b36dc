package main

import (
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/newsdedup/internal/otel"
)

const sampleLog = `{"t":"2026-01-02T10:00:00Z","level":"info","kind":"search.complete","comp":"coord","rid":"a","count":20,"dur_ms":812.5}
not json
{"t":"2026-01-02T10:00:01Z","level":"error","kind":"dedup.mismatch","comp":"coord","rid":"a","calls":1,"err":"oracle mismatch"}
{"t":"2026-01-02T10:00:01Z","level":"info","kind":"request.complete","comp":"coord","rid":"a","count":20}

{"t":"2026-01-02T10:05:00Z","level":"info","kind":"dedup.complete","comp":"coord","rid":"b","kept":17,"calls":1}
`

func TestReadTailKeepsLastMatching(t *testing.T) {
	got := readTail(strings.NewReader(sampleLog), 2, eventFilter{})
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ev.Kind != otel.KindRequestComplete || got[1].ev.Kind != otel.KindDedupComplete {
		t.Errorf("kinds = %s, %s", got[0].ev.Kind, got[1].ev.Kind)
	}
	if !strings.Contains(string(got[1].raw), `"kept":17`) {
		t.Errorf("raw line = %s", got[1].raw)
	}
}

func TestReadTailFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter eventFilter
		want   int
	}{
		{"kind prefix", eventFilter{kind: "dedup"}, 2},
		{"min level", eventFilter{minLevel: otel.LevelError}, 1},
		{"request id", eventFilter{requestID: "b"}, 1},
		{"combined", eventFilter{kind: "dedup", requestID: "a"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readTail(strings.NewReader(sampleLog), 10, tt.filter); len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ev := otel.Event{
		Time:      time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		Level:     otel.LevelError,
		Kind:      otel.KindDedupMismatch,
		Comp:      "coord",
		RequestID: "a",
		Calls:     1,
		DurMs:     12.4,
		Err:       "oracle mismatch",
	}
	got := formatEvent(ev)
	for _, want := range []string{"10:00:00.000", "ERROR", "dedup.mismatch", "rid=a", "calls=1", "(12.4ms)", "err=oracle mismatch"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent() = %q, missing %q", got, want)
		}
	}
}

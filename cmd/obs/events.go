package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abelbrown/newsdedup/internal/config"
	"github.com/abelbrown/newsdedup/internal/otel"
)

var levelRank = map[otel.Level]int{
	otel.LevelDebug: 0,
	otel.LevelInfo:  1,
	otel.LevelWarn:  2,
	otel.LevelError: 3,
}

// eventFilter selects events for display. Zero fields match everything.
type eventFilter struct {
	kind      string // prefix, e.g. "dedup"
	minLevel  otel.Level
	requestID string
}

func (f eventFilter) match(ev otel.Event) bool {
	if f.kind != "" && !strings.HasPrefix(string(ev.Kind), f.kind) {
		return false
	}
	if f.minLevel != "" && levelRank[ev.Level] < levelRank[f.minLevel] {
		return false
	}
	if f.requestID != "" && ev.RequestID != f.requestID {
		return false
	}
	return true
}

type eventLine struct {
	ev  otel.Event
	raw []byte
}

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file naming event_log")
	file := fs.String("file", "", "Event log to read (overrides config)")
	tail := fs.Int("tail", 50, "Number of recent events to show")
	follow := fs.Bool("f", false, "Keep printing new events")
	kind := fs.String("kind", "", "Filter by kind prefix (e.g. 'dedup')")
	level := fs.String("level", "", "Minimum level: debug, info, warn, error")
	rid := fs.String("rid", "", "Filter by request id")
	rawJSON := fs.Bool("json", false, "Print raw JSON lines")
	fs.Parse(os.Args[1:])

	path := *file
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatalf("load config: %v", err)
		}
		path = cfg.EventLog
	}
	if path == "" {
		path = config.EventLogPath()
	}

	f, err := os.Open(path)
	if err != nil {
		fatalf("%v\n  Set event_log in the config (or NEWSDEDUP_EVENT_LOG) and run a search first.", err)
	}
	defer f.Close()

	filter := eventFilter{kind: *kind, minLevel: otel.Level(*level), requestID: *rid}
	show := func(l eventLine) {
		if *rawJSON {
			fmt.Println(string(l.raw))
			return
		}
		fmt.Println(formatEvent(l.ev))
	}

	for _, l := range readTail(f, *tail, filter) {
		show(l)
	}
	if !*follow {
		return
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		line = []byte(strings.TrimRight(string(line), "\r\n"))
		var ev otel.Event
		if len(line) == 0 || json.Unmarshal(line, &ev) != nil {
			continue
		}
		if filter.match(ev) {
			show(eventLine{ev: ev, raw: line})
		}
	}
}

// readTail returns the last n events in r that pass filter. Lines that do not
// decode are skipped.
func readTail(r io.Reader, n int, filter eventFilter) []eventLine {
	if n <= 0 {
		return nil
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	ring := make([]eventLine, 0, n)
	for scanner.Scan() {
		raw := scanner.Bytes()
		var ev otel.Event
		if len(raw) == 0 || json.Unmarshal(raw, &ev) != nil || !filter.match(ev) {
			continue
		}
		line := eventLine{ev: ev, raw: append([]byte(nil), raw...)}
		if len(ring) == n {
			ring = append(ring[1:], line)
		} else {
			ring = append(ring, line)
		}
	}
	return ring
}

func formatEvent(ev otel.Event) string {
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-5s] %-16s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.RequestID != "" {
		parts = append(parts, "rid="+ev.RequestID)
	}
	if ev.Strategy != "" {
		parts = append(parts, "strategy="+ev.Strategy)
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Kept > 0 {
		parts = append(parts, fmt.Sprintf("kept=%d", ev.Kept))
	}
	if ev.Calls > 0 {
		parts = append(parts, fmt.Sprintf("calls=%d", ev.Calls))
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Query != "" {
		parts = append(parts, fmt.Sprintf("q=%q", ev.Query))
	}
	if ev.Msg != "" {
		parts = append(parts, ev.Msg)
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

func durPrecision(ms float64) int {
	switch {
	case ms >= 100:
		return 0
	case ms >= 1:
		return 1
	default:
		return 2
	}
}

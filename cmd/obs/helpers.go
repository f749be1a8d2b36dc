package main

import (
	"fmt"
	"os"

	"github.com/abelbrown/newsdedup/internal/config"
	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/dedup"
	"github.com/abelbrown/newsdedup/internal/otel"
)

// loadCoordinator loads and validates the config, applies a strategy
// override, and builds the pipeline or exits. The returned func flushes the
// event log, if one is configured.
func loadCoordinator(path, strategy string) (*config.Config, *coord.Coordinator, func()) {
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if strategy != "" {
		if _, err := dedup.ParseStrategy(strategy); err != nil {
			fatalf("%v", err)
		}
		cfg.Dedup.Strategy = strategy
	}
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}
	c, err := coord.FromConfig(cfg)
	if err != nil {
		fatalf("build pipeline: %v", err)
	}

	f, err := cfg.OpenEventLog()
	if err != nil {
		fatalf("%v", err)
	}
	if f == nil {
		return cfg, c, func() {}
	}
	events := otel.NewLogger(f)
	c.SetEvents(events)
	return cfg, c, func() {
		events.Close()
		f.Close()
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

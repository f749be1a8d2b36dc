package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/record"
	"github.com/abelbrown/newsdedup/internal/ui"
)

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	k1 := fs.String("k1", "", "First keyword")
	k2 := fs.String("k2", "", "Second keyword")
	k3 := fs.String("k3", "", "Third keyword")
	period := fs.String("period", "all", "all, 3months, 6months or 12months")
	strategy := fs.String("strategy", "", "Override the dedup strategy")
	configPath := fs.String("config", "", "YAML config file")
	timeout := fs.Duration("timeout", 3*time.Minute, "Overall request timeout")
	width := fs.Int("width", 100, "Output width for truncating titles")
	fs.Parse(os.Args[1:])

	// Positional arguments fill empty keyword slots.
	slots := []*string{k1, k2, k3}
	rest := fs.Args()
	for _, s := range slots {
		if *s == "" && len(rest) > 0 {
			*s, rest = rest[0], rest[1:]
		}
	}

	p, err := record.ParsePeriod(*period)
	if err != nil {
		fatalf("%v", err)
	}
	q := record.NewQuery(*k1, *k2, *k3, p)
	if q.Empty() {
		fmt.Fprintln(os.Stderr, "usage: obs search [-k1 word] [-k2 word] [-k3 word] [-period 3months] [-strategy batched] [word...]")
		os.Exit(1)
	}

	cfg, c, closeEvents := loadCoordinator(*configPath, *strategy)
	logging.Init(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	out := c.Run(ctx, q)
	cancel()
	closeEvents()

	fmt.Print(ui.RenderOutcome(out, *width))
	if out.Err != nil {
		os.Exit(1)
	}
}

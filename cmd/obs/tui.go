package main

import (
	"context"
	"flag"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/newsdedup/internal/dedup"
	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/record"
	"github.com/abelbrown/newsdedup/internal/ui"
)

func runTUI() {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	strategy := fs.String("strategy", "", "Initial dedup strategy")
	fs.Parse(os.Args[1:])

	cfg, c, closeEvents := loadCoordinator(*configPath, *strategy)
	defer closeEvents()
	if err := logging.InitFile(cfg.LogLevel); err != nil {
		fatalf("init logging: %v", err)
	}
	defer logging.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	search := func(q record.Query, s dedup.Strategy) tea.Cmd {
		return func() tea.Msg {
			return ui.SearchComplete{Outcome: c.RunWith(ctx, q, s)}
		}
	}

	p := tea.NewProgram(ui.NewApp(search, c.Strategy()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logging.Error("TUI exited with error", "error", err)
		closeEvents()
		fatalf("%v", err)
	}
}

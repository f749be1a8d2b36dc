// Command newsdedup serves the keyword news search form with duplicate
// collapsing.
//
// Usage:
//
//	newsdedup [-config path] [-addr :8080]
//
// Secrets come from GOOGLE_API_KEY, CUSTOM_SEARCH_ENGINE_ID and ORACLE_API_KEY
// (or the oracle provider's own variable, e.g. OPENAI_API_KEY).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelbrown/newsdedup/internal/config"
	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/otel"
	"github.com/abelbrown/newsdedup/internal/web"
)

// requestTimeout bounds one search, including every oracle call it makes.
const requestTimeout = 3 * time.Minute

func main() {
	configPath := flag.String("config", "", "YAML config file (default ~/.newsdedup/config.yaml if present)")
	addr := flag.String("addr", "", "listen address (overrides config and NEWSDEDUP_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Init(os.Stderr, "info")
		logging.Fatal("Failed to load config", "error", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logging.Fatal("Invalid configuration", "error", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	c, err := coord.FromConfig(cfg)
	if err != nil {
		logging.Fatal("Failed to build pipeline", "error", err)
	}

	events, closeEvents := openEvents(cfg)
	defer closeEvents()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)
	c.SetEvents(events)

	handler := web.NewServer(c, requestTimeout)
	handler.SetEvents(ring)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 30*time.Second,
		ErrorLog:          logging.WithPrefix("http").StandardLog(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info("Listening", "addr", cfg.Addr)
		events.Info(otel.KindStartup, "main", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")
	events.Info(otel.KindShutdown, "main", "")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Shutdown failed", "error", err)
	}
}

// openEvents returns the event logger for cfg: the configured JSONL file, or a
// logger that only feeds the in-memory ring.
func openEvents(cfg *config.Config) (*otel.Logger, func()) {
	f, err := cfg.OpenEventLog()
	if err != nil {
		logging.Warn("Event log disabled", "error", err)
	}
	if f == nil {
		l := otel.NewNullLogger()
		return l, l.Close
	}
	logging.Info("Writing events", "path", cfg.EventLog)
	l := otel.NewLogger(f)
	return l, func() {
		l.Close()
		f.Close()
	}
}

// Package coord drives one search request: build the query, fetch pages,
// deduplicate, and report what happened.
package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/newsdedup/internal/brain"
	"github.com/abelbrown/newsdedup/internal/config"
	"github.com/abelbrown/newsdedup/internal/dedup"
	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/oracle"
	"github.com/abelbrown/newsdedup/internal/otel"
	"github.com/abelbrown/newsdedup/internal/record"
	"github.com/abelbrown/newsdedup/internal/search"
)

// Options holds the per-process request settings.
type Options struct {
	Strategy dedup.Strategy
	Style    record.Style
	Language string
	PageSize int
	Pages    int
}

// Outcome is everything a presentation layer needs for one request.
//
// Err is set when the search itself failed; both lists are then empty.
// DedupErr is set when deduplication failed; Raw is still valid and Deduped
// is nil.
type Outcome struct {
	Query       record.Query
	Expression  string
	Raw         []record.Record
	Deduped     []record.Record
	Groups      []dedup.Group
	Strategy    dedup.Strategy
	OracleCalls int
	Err         error
	DedupErr    error
	Elapsed     time.Duration
}

// Searched reports whether a search was actually run.
func (o Outcome) Searched() bool {
	return !o.Query.Empty()
}

// DedupAvailable reports whether Deduped can be shown.
func (o Outcome) DedupAvailable() bool {
	return o.Err == nil && o.DedupErr == nil
}

// Coordinator is built once per process and shared by every request. It holds
// no per-request state.
type Coordinator struct {
	provider search.Provider
	oracle   oracle.Oracle // nil disables every strategy but none
	engine   *dedup.Engine
	opts     Options
	events   *otel.Logger // nil drops events
}

// New creates a Coordinator. o may be nil when only StrategyNone is used.
func New(p search.Provider, o oracle.Oracle, engine *dedup.Engine, opts Options) *Coordinator {
	if opts.Strategy == "" {
		opts.Strategy = dedup.StrategyBatched
	}
	if opts.PageSize <= 0 {
		opts.PageSize = search.DefaultPageSize
	}
	if opts.Pages <= 0 {
		opts.Pages = search.DefaultPages
	}
	if engine == nil {
		engine = dedup.NewEngine(o)
	}
	return &Coordinator{provider: p, oracle: o, engine: engine, opts: opts}
}

// FromConfig wires the provider, oracle and engine named by cfg.
// cfg should already have passed Validate.
func FromConfig(cfg *config.Config) (*Coordinator, error) {
	strategy, err := dedup.ParseStrategy(cfg.Dedup.Strategy)
	if err != nil {
		return nil, err
	}
	policy, err := dedup.ParsePolicy(cfg.Dedup.Policy)
	if err != nil {
		return nil, err
	}
	style, err := record.ParseStyle(cfg.Search.Style)
	if err != nil {
		return nil, err
	}

	var provider search.Provider
	switch cfg.Search.Provider {
	case "googlenews":
		provider = search.NewGoogleNewsRSS(cfg.Search.Endpoint, cfg.Search.Timeout)
	default:
		var opts []search.CSEOption
		if cfg.Search.Endpoint != "" {
			opts = append(opts, search.WithCSEEndpoint(cfg.Search.Endpoint))
		}
		provider = search.NewGoogleCSE(cfg.Search.APIKey, cfg.Search.EngineID, opts...)
	}

	var o oracle.Oracle
	if strategy != dedup.StrategyNone {
		llm, err := brain.NewProvider(cfg.Oracle.Provider, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		o = oracle.NewLLM(llm, oracle.Options{
			Timeout:    cfg.Oracle.Timeout,
			MaxRetries: cfg.Oracle.MaxRetries,
			Backoff:    cfg.Oracle.Backoff,
			MaxBackoff: cfg.Oracle.MaxBackoff,
			Rate:       rate.Limit(cfg.Oracle.RatePerSecond),
			Burst:      cfg.Oracle.Burst,
		})
		logging.Info("Oracle configured", "provider", llm.Name(), "model", llm.Model())
	}

	engine := dedup.NewEngine(o, dedup.WithPolicy(policy), dedup.WithMaxBatch(cfg.Dedup.MaxBatch))
	logging.Info("Coordinator configured",
		"search", provider.Name(),
		"strategy", strategy,
		"policy", policy,
		"pages", cfg.Search.Pages,
		"page_size", cfg.Search.PageSize)

	return New(provider, o, engine, Options{
		Strategy: strategy,
		Style:    style,
		Language: cfg.Search.Language,
		PageSize: cfg.Search.PageSize,
		Pages:    cfg.Search.Pages,
	}), nil
}

// SetEvents attaches an event log. Call before serving requests.
func (c *Coordinator) SetEvents(l *otel.Logger) {
	c.events = l
}

// Strategy returns the configured default strategy.
func (c *Coordinator) Strategy() dedup.Strategy {
	return c.opts.Strategy
}

// Run serves one request with the configured strategy.
func (c *Coordinator) Run(ctx context.Context, q record.Query) Outcome {
	return c.RunWith(ctx, q, c.opts.Strategy)
}

// RunWith serves one request with an explicit strategy. Failures are reported
// in the Outcome, never returned or panicked.
func (c *Coordinator) RunWith(ctx context.Context, q record.Query, strategy dedup.Strategy) Outcome {
	start := time.Now()
	out := Outcome{
		Query:      q,
		Strategy:   strategy,
		Expression: q.Build(c.opts.Style, c.provider.Syntax()),
	}

	// Blank keywords: no search, and no error either.
	if q.Empty() {
		logging.Debug("Empty query, skipping search")
		c.emit(ctx, otel.Event{Level: otel.LevelDebug, Kind: otel.KindSearchSkipped, Strategy: string(strategy)})
		return c.finish(ctx, out, start)
	}

	raw, err := search.Collect(ctx, c.provider, search.Request{
		Query:    out.Expression,
		Language: c.opts.Language,
		PageSize: c.opts.PageSize,
		Offset:   1,
		Period:   q.Period,
	}, c.opts.Pages)
	if err != nil {
		out.Err = err
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindSearchError, Query: out.Expression, Dur: time.Since(start), Err: err.Error()})
		return c.finish(ctx, out, start)
	}
	out.Raw = raw
	c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindSearchComplete, Query: out.Expression, Count: len(raw), Dur: time.Since(start)})

	if strategy != dedup.StrategyNone && c.oracle == nil {
		out.DedupErr = fmt.Errorf("%w: no oracle configured for %s", oracle.ErrOracleFailure, strategy)
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindDedupError, Strategy: string(strategy), Err: out.DedupErr.Error()})
		return c.finish(ctx, out, start)
	}

	var counter *oracle.Counter
	var o oracle.Oracle
	if c.oracle != nil {
		counter = oracle.Count(c.oracle)
		o = counter
	}

	dedupStart := time.Now()
	res, err := c.engine.Run(ctx, strategy, raw, o)
	if counter != nil {
		out.OracleCalls = counter.Calls()
	}
	if err != nil {
		out.DedupErr = err
		kind := otel.KindDedupError
		if errors.Is(err, oracle.ErrOracleMismatch) {
			kind = otel.KindDedupMismatch
			logging.Error("Batched judgments misaligned", "expression", out.Expression, "records", len(raw), "error", err)
		}
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: kind, Strategy: string(strategy), Count: len(raw), Calls: out.OracleCalls, Dur: time.Since(dedupStart), Err: err.Error()})
		return c.finish(ctx, out, start)
	}
	out.Deduped = res.Kept
	out.Groups = res.Groups
	c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindDedupComplete, Strategy: string(strategy), Count: len(raw), Kept: len(res.Kept), Calls: out.OracleCalls, Dur: time.Since(dedupStart)})
	return c.finish(ctx, out, start)
}

// emit stamps the request id and component onto e.
func (c *Coordinator) emit(ctx context.Context, e otel.Event) {
	if c.events == nil {
		return
	}
	e.Comp = "coord"
	e.RequestID = otel.RequestID(ctx)
	c.events.Emit(e)
}

func (c *Coordinator) finish(ctx context.Context, out Outcome, start time.Time) Outcome {
	out.Elapsed = time.Since(start)
	c.emit(ctx, otel.Event{
		Level:    otel.LevelInfo,
		Kind:     otel.KindRequestComplete,
		Query:    out.Expression,
		Strategy: string(out.Strategy),
		Count:    len(out.Raw),
		Kept:     len(out.Deduped),
		Calls:    out.OracleCalls,
		Dur:      out.Elapsed,
	})
	logging.Info("Request complete",
		"expression", out.Expression,
		"strategy", out.Strategy,
		"raw", len(out.Raw),
		"deduped", len(out.Deduped),
		"oracle_calls", out.OracleCalls,
		"search_error", out.Err != nil,
		"dedup_error", out.DedupErr != nil,
		"elapsed", out.Elapsed.Round(time.Millisecond))
	return out
}

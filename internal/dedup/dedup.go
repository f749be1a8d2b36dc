// Package dedup collapses search results that report the same news event.
//
// Two reductions are provided. Pairwise compares each candidate with the records
// already accepted, one oracle call per comparison. Batched asks the oracle about
// every pair in a single call and then drops the later member of each duplicate
// pair. Both keep the earliest record of a duplicate set (first-seen-wins), never
// mutate their input, and fail the whole reduction on any oracle error rather
// than guessing.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/metrics"
	"github.com/abelbrown/newsdedup/internal/oracle"
	"github.com/abelbrown/newsdedup/internal/record"
)

// ErrBatchTooLarge is returned by Batched when the input exceeds MaxBatch.
var ErrBatchTooLarge = errors.New("too many records for one batched comparison")

// DefaultMaxBatch covers the default two-page fetch; 190 pairs still fit one model reply.
const DefaultMaxBatch = 20

// Strategy selects a reduction.
type Strategy string

const (
	StrategyNone            Strategy = "none"
	StrategyPairwiseSnippet Strategy = "pairwise-snippet"
	StrategyPairwiseTitle   Strategy = "pairwise-title"
	StrategyBatched         Strategy = "batched"
)

// Strategies lists every strategy in the order they were introduced.
func Strategies() []Strategy {
	return []Strategy{StrategyNone, StrategyPairwiseSnippet, StrategyPairwiseTitle, StrategyBatched}
}

// ParseStrategy accepts the strategy names above.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range Strategies() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown dedup strategy %q", s)
}

// Field is the record text compared by the pairwise reduction.
type Field int

const (
	FieldTitle Field = iota
	FieldSnippet
)

func (f Field) String() string {
	if f == FieldSnippet {
		return "snippet"
	}
	return "title"
}

func (f Field) of(r record.Record) string {
	if f == FieldSnippet {
		return r.Snippet
	}
	return r.Title
}

// Policy decides how batched duplicate edges turn into removals.
type Policy int

const (
	// PolicyFirstSeenWins drops j for a duplicate pair (i, j) unless i was
	// itself already dropped. Not transitive: a chain A~B~C keeps A and C.
	PolicyFirstSeenWins Policy = iota
	// PolicyTransitive merges every connected component of duplicate edges
	// and keeps its lowest index.
	PolicyTransitive
)

// ParsePolicy accepts "first-seen" and "transitive".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first-seen", "first-seen-wins":
		return PolicyFirstSeenWins, nil
	case "transitive", "union-find":
		return PolicyTransitive, nil
	}
	return PolicyFirstSeenWins, fmt.Errorf("unknown dedup policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyTransitive {
		return "transitive"
	}
	return "first-seen"
}

// Group is one duplicate set found during a reduction, as indices into the input.
// Representative is the kept record; Members includes it first.
type Group struct {
	Representative int
	Members        []int
}

// Result is the outcome of one reduction.
type Result struct {
	Kept   []record.Record
	Groups []Group // only sets with more than one member
}

// Dropped returns how many input records were removed.
func (r Result) Dropped() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Members) - 1
	}
	return n
}

// Engine runs reductions against a comparator oracle. It holds no per-request
// state and may be shared.
type Engine struct {
	oracle   oracle.Oracle
	policy   Policy
	maxBatch int
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the batched reduction policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMaxBatch caps the batched input size. n <= 0 keeps the default.
func WithMaxBatch(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBatch = n
		}
	}
}

// NewEngine creates an Engine over o.
func NewEngine(o oracle.Oracle, opts ...Option) *Engine {
	e := &Engine{oracle: o, policy: PolicyFirstSeenWins, maxBatch: DefaultMaxBatch}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run reduces records with the given strategy. The oracle argument, when
// non-nil, replaces the engine's oracle for this call (used to count calls
// per request).
func (e *Engine) Run(ctx context.Context, strategy Strategy, records []record.Record, o oracle.Oracle) (Result, error) {
	if o == nil {
		o = e.oracle
	}

	start := time.Now()
	var (
		res Result
		err error
	)
	switch strategy {
	case StrategyNone, "":
		res = Result{Kept: record.Clone(records)}
	case StrategyPairwiseSnippet:
		res, err = pairwise(ctx, o, records, FieldSnippet)
	case StrategyPairwiseTitle:
		res, err = pairwise(ctx, o, records, FieldTitle)
	case StrategyBatched:
		res, err = e.batched(ctx, o, records)
	default:
		return Result{}, fmt.Errorf("unknown dedup strategy %q", strategy)
	}
	if err != nil {
		logging.Warn("Deduplication failed", "strategy", strategy, "records", len(records), "error", err)
		return Result{}, err
	}

	elapsed := time.Since(start)
	metrics.ObserveDedup(string(strategy), elapsed, res.Dropped())
	logging.Info("Deduplication complete",
		"strategy", strategy,
		"input", len(records),
		"kept", len(res.Kept),
		"groups", len(res.Groups),
		"duration", elapsed.Round(time.Millisecond))
	return res, nil
}

// Pairwise runs the pairwise greedy reduction on field.
func (e *Engine) Pairwise(ctx context.Context, records []record.Record, field Field) (Result, error) {
	return pairwise(ctx, e.oracle, records, field)
}

// Batched runs the batched reduction with the engine's policy.
func (e *Engine) Batched(ctx context.Context, records []record.Record) (Result, error) {
	return e.batched(ctx, e.oracle, records)
}

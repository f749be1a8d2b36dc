// Package oracle provides the comparator that decides whether two search results
// report the same underlying news event.
//
// The judgment comes from a language model, so it is nondeterministic, slow and
// rate limited. Callers depend on the Pairwise and Batched interfaces so tests can
// substitute scripted judgments.
package oracle

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/abelbrown/newsdedup/internal/record"
)

var (
	// ErrOracleFailure means a comparison could not be obtained: the call timed
	// out, the backend errored, or the reply could not be read as yes/no.
	ErrOracleFailure = errors.New("oracle failure")

	// ErrOracleMismatch means a batched reply did not carry exactly one judgment
	// per enumerated pair. This is an alignment bug, not a transient fault, and
	// is never retried or treated as "not duplicate".
	ErrOracleMismatch = errors.New("oracle judgment count mismatch")
)

// Pairwise judges two texts (titles or snippets) at a time.
type Pairwise interface {
	JudgeSame(ctx context.Context, a, b string) (bool, error)
}

// Batched judges every unordered pair of records in one call. The result has
// length n(n-1)/2 in row-major (i, j), i < j, order.
type Batched interface {
	JudgeAllPairs(ctx context.Context, records []record.Record) ([]bool, error)
}

// Oracle is a comparator offering both shapes.
type Oracle interface {
	Pairwise
	Batched
}

// PairCount returns n(n-1)/2, the number of unordered pairs over n records.
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// Counter wraps an Oracle and counts calls. Create one per request.
type Counter struct {
	inner Oracle
	calls atomic.Int64
}

// Count wraps o.
func Count(o Oracle) *Counter {
	return &Counter{inner: o}
}

func (c *Counter) JudgeSame(ctx context.Context, a, b string) (bool, error) {
	c.calls.Add(1)
	return c.inner.JudgeSame(ctx, a, b)
}

func (c *Counter) JudgeAllPairs(ctx context.Context, records []record.Record) ([]bool, error) {
	if len(records) >= 2 {
		c.calls.Add(1)
	}
	return c.inner.JudgeAllPairs(ctx, records)
}

// Calls returns the number of oracle round trips made so far.
func (c *Counter) Calls() int {
	return int(c.calls.Load())
}

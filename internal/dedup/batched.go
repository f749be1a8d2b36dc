package dedup

import (
	"context"
	"fmt"

	"github.com/abelbrown/newsdedup/internal/logging"
	"github.com/abelbrown/newsdedup/internal/oracle"
	"github.com/abelbrown/newsdedup/internal/record"
)

// Pair is an unordered pair of record indices with I < J.
type Pair struct {
	I, J int
}

// Pairs enumerates all pairs over n records in row-major order:
// (0,1), (0,2), ..., (0,n-1), (1,2), ... This is the order batched
// judgments are returned in.
func Pairs(n int) []Pair {
	pairs := make([]Pair, 0, oracle.PairCount(n))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, Pair{I: i, J: j})
		}
	}
	return pairs
}

func (e *Engine) batched(ctx context.Context, o oracle.Batched, records []record.Record) (Result, error) {
	n := len(records)
	if n > e.maxBatch {
		return Result{}, fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, n, e.maxBatch)
	}
	if n < 2 {
		return Result{Kept: record.Clone(records)}, nil
	}

	judgments, err := o.JudgeAllPairs(ctx, records)
	if err != nil {
		return Result{}, fmt.Errorf("batched comparison of %d records: %w", n, err)
	}

	pairs := Pairs(n)
	if len(judgments) != len(pairs) {
		return Result{}, fmt.Errorf("%w: expected %d judgments, got %d", oracle.ErrOracleMismatch, len(pairs), len(judgments))
	}

	var owner []int
	switch e.policy {
	case PolicyTransitive:
		owner = transitive(n, pairs, judgments)
	default:
		owner = firstSeen(n, pairs, judgments)
	}

	logging.Debug("Batched judgments applied", "records", n, "pairs", len(pairs), "policy", e.policy)
	return resultFrom(records, owner), nil
}

// firstSeen drops j for each duplicate pair (i, j) whose i survives. In
// row-major order every pair (h, i) is seen before any (i, j), so i's fate is
// settled by the time (i, j) is considered.
func firstSeen(n int, pairs []Pair, judgments []bool) []int {
	owner := identity(n)
	for k, p := range pairs {
		if !judgments[k] {
			continue
		}
		if owner[p.I] != p.I || owner[p.J] != p.J {
			continue
		}
		owner[p.J] = p.I
	}
	return owner
}

// transitive merges connected components of duplicate edges with union-find;
// the lowest index of each component is kept.
func transitive(n int, pairs []Pair, judgments []bool) []int {
	parent := identity(n)

	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	for k, p := range pairs {
		if !judgments[k] {
			continue
		}
		a, b := find(p.I), find(p.J)
		if a == b {
			continue
		}
		if a < b {
			parent[b] = a
		} else {
			parent[a] = b
		}
	}

	owner := make([]int, n)
	for i := range owner {
		owner[i] = find(i)
	}
	return owner
}

func identity(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

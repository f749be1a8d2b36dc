package dedup

import (
	"context"
	"fmt"
	"slices"

	"github.com/abelbrown/newsdedup/internal/oracle"
	"github.com/abelbrown/newsdedup/internal/record"
)

// pairwise walks records in input order. A candidate is compared only with
// records already accepted, stopping at the first duplicate, so the result
// depends on input order. Worst case n(n-1)/2 oracle calls.
func pairwise(ctx context.Context, o oracle.Pairwise, records []record.Record, field Field) (Result, error) {
	owner := make([]int, len(records))
	accepted := make([]int, 0, len(records))

	for i, candidate := range records {
		owner[i] = i
		for _, a := range accepted {
			same, err := o.JudgeSame(ctx, field.of(records[a]), field.of(candidate))
			if err != nil {
				return Result{}, fmt.Errorf("compare %s of record %d with record %d: %w", field, i, a, err)
			}
			if same {
				owner[i] = a
				break
			}
		}
		if owner[i] == i {
			accepted = append(accepted, i)
		}
	}

	return resultFrom(records, owner), nil
}

// resultFrom builds a Result from owner, where owner[i] is the index of the
// record that i collapsed onto (itself when kept). Representatives always
// precede their members.
func resultFrom(records []record.Record, owner []int) Result {
	kept := make([]record.Record, 0, len(records))
	members := make(map[int][]int)
	var reps []int

	for i, o := range owner {
		if o == i {
			kept = append(kept, records[i])
			continue
		}
		if _, ok := members[o]; !ok {
			reps = append(reps, o)
			members[o] = []int{o}
		}
		members[o] = append(members[o], i)
	}

	slices.Sort(reps)
	groups := make([]Group, 0, len(reps))
	for _, r := range reps {
		groups = append(groups, Group{Representative: r, Members: members[r]})
	}
	return Result{Kept: kept, Groups: groups}
}

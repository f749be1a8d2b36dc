package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownPeriod is returned by ParsePeriod for values outside the form's options.
var ErrUnknownPeriod = errors.New("unknown period")

// Period is the recency filter selected next to the keywords.
type Period int

const (
	PeriodAll Period = iota
	PeriodLast3Months
	PeriodLast6Months
	PeriodLast12Months
)

// ParsePeriod maps form values ("all", "3months", "6months", "12months") to a Period.
// The empty string means PeriodAll.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return PeriodAll, nil
	case "3months":
		return PeriodLast3Months, nil
	case "6months":
		return PeriodLast6Months, nil
	case "12months":
		return PeriodLast12Months, nil
	}
	return PeriodAll, fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// String returns the form value for p.
func (p Period) String() string {
	switch p {
	case PeriodLast3Months:
		return "3months"
	case PeriodLast6Months:
		return "6months"
	case PeriodLast12Months:
		return "12months"
	}
	return "all"
}

// Months returns the window length, 0 for PeriodAll.
func (p Period) Months() int {
	switch p {
	case PeriodLast3Months:
		return 3
	case PeriodLast6Months:
		return 6
	case PeriodLast12Months:
		return 12
	}
	return 0
}

// Periods lists every period in display order.
func Periods() []Period {
	return []Period{PeriodAll, PeriodLast3Months, PeriodLast6Months, PeriodLast12Months}
}

// Style selects how keywords are combined.
type Style int

const (
	// StyleJuxtaposed joins keywords with spaces (implicit AND).
	StyleJuxtaposed Style = iota
	// StyleBoolean quotes each keyword and joins them with " AND ".
	StyleBoolean
)

// ParseStyle accepts "juxtaposed"/"plain" and "boolean"/"and".
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "juxtaposed", "plain":
		return StyleJuxtaposed, nil
	case "boolean", "and":
		return StyleBoolean, nil
	}
	return StyleJuxtaposed, fmt.Errorf("unknown query style %q", s)
}

func (s Style) String() string {
	if s == StyleBoolean {
		return "boolean"
	}
	return "juxtaposed"
}

// Syntax holds the provider-specific recency modifier.
type Syntax struct {
	// Recency returns the modifier appended for p, or "" for none.
	Recency func(p Period) string
}

// DefaultSyntax uses the "when:" operator understood by Google search and Google News.
var DefaultSyntax = Syntax{
	Recency: func(p Period) string {
		if m := p.Months(); m > 0 {
			return "when:" + strconv.Itoa(m) + "m"
		}
		return ""
	},
}

// Query is the user's three keyword slots plus a period.
type Query struct {
	Keywords [3]string
	Period   Period
}

// NewQuery trims the keywords.
func NewQuery(k1, k2, k3 string, period Period) Query {
	return Query{
		Keywords: [3]string{strings.TrimSpace(k1), strings.TrimSpace(k2), strings.TrimSpace(k3)},
		Period:   period,
	}
}

// Terms returns the non-blank keywords in slot order.
func (q Query) Terms() []string {
	var terms []string
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			terms = append(terms, k)
		}
	}
	return terms
}

// Empty reports whether every keyword slot is blank.
func (q Query) Empty() bool {
	return len(q.Terms()) == 0
}

// Build renders the query as one provider expression. Three blank keywords
// produce "" (PeriodAll) or the bare recency modifier.
func (q Query) Build(style Style, syntax Syntax) string {
	terms := q.Terms()

	var expr string
	switch style {
	case StyleBoolean:
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + strings.ReplaceAll(t, `"`, "") + `"`
		}
		expr = strings.Join(quoted, " AND ")
	default:
		expr = strings.Join(terms, " ")
	}

	if syntax.Recency != nil {
		if mod := syntax.Recency(q.Period); mod != "" {
			expr = strings.TrimSpace(expr + " " + mod)
		}
	}
	return expr
}

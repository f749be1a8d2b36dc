// Package record provides the normalized search result type and query construction.
//
// Records have no stable external ID. Two records are only ever "the same" by an
// oracle judgment, never by field equality.
package record

import "strings"

// UnknownDate is the sentinel stored in Record.Date when the provider gave no date.
const UnknownDate = "unknown"

// Record is one normalized search result. Treat it as immutable once fetched.
type Record struct {
	Title   string
	Snippet string
	URL     string
	Date    string // "unknown" when absent
}

// New builds a Record with trimmed fields and the date sentinel applied.
func New(title, snippet, url, date string) Record {
	date = strings.TrimSpace(date)
	if date == "" {
		date = UnknownDate
	}
	return Record{
		Title:   strings.TrimSpace(title),
		Snippet: collapseSpace(snippet),
		URL:     strings.TrimSpace(url),
		Date:    date,
	}
}

// HasDate reports whether the record carries a real date.
func (r Record) HasDate() bool {
	return r.Date != "" && r.Date != UnknownDate
}

// Clone returns a copy of records. A nil input stays nil.
func Clone(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// collapseSpace trims and folds runs of whitespace (search snippets carry
// hard line breaks from the result page).
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

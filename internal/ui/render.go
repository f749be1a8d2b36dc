package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/newsdedup/internal/coord"
	"github.com/abelbrown/newsdedup/internal/record"
)

// RenderOutcome draws the raw and deduplicated lists for one request. Records
// dropped as duplicates are struck through in the raw list.
func RenderOutcome(out coord.Outcome, width int) string {
	var b strings.Builder

	if out.Err != nil {
		b.WriteString(ErrorStyle.Render("Search failed: " + out.Err.Error()))
		b.WriteString("\n")
		return b.String()
	}
	if !out.Searched() {
		b.WriteString(HelpStyle.Render("Enter at least one keyword."))
		b.WriteString("\n")
		return b.String()
	}

	dropped := droppedSet(out)

	b.WriteString(SectionHeader.Render(fmt.Sprintf("Results (%d)  %s", len(out.Raw), out.Expression)))
	b.WriteString("\n")
	writeRecords(&b, out.Raw, dropped, width)

	if !out.DedupAvailable() {
		b.WriteString(SectionHeader.Render("Without duplicates"))
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render("Deduplication unavailable: " + out.DedupErr.Error()))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(SectionHeader.Render(fmt.Sprintf("Without duplicates (%d)", len(out.Deduped))))
	b.WriteString("\n")
	writeRecords(&b, out.Deduped, nil, width)

	summary := fmt.Sprintf("%s kept %d of %d · %d comparisons · %s",
		out.Strategy, len(out.Deduped), len(out.Raw), out.OracleCalls, out.Elapsed.Round(time.Millisecond))
	b.WriteString("\n")
	b.WriteString(KeptCount.Render(summary))
	b.WriteString("\n")
	return b.String()
}

// droppedSet returns the raw indices removed by deduplication.
func droppedSet(out coord.Outcome) map[int]bool {
	if !out.DedupAvailable() {
		return nil
	}
	dropped := make(map[int]bool)
	for _, g := range out.Groups {
		for _, m := range g.Members {
			if m != g.Representative {
				dropped[m] = true
			}
		}
	}
	return dropped
}

func writeRecords(b *strings.Builder, recs []record.Record, dropped map[int]bool, width int) {
	if len(recs) == 0 {
		b.WriteString(ResultMeta.Render("No results."))
		b.WriteString("\n")
		return
	}
	for i, r := range recs {
		title := truncate(r.Title, width-6)
		if dropped[i] {
			b.WriteString(ResultTitle.Render(DroppedMark.Render(fmt.Sprintf("%2d. %s", i+1, title))))
		} else {
			b.WriteString(ResultTitle.Render(fmt.Sprintf("%2d. %s", i+1, title)))
		}
		b.WriteString("\n")
		b.WriteString(ResultMeta.Render(truncate(r.Date+"  "+r.URL, width-4)))
		b.WriteString("\n")
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

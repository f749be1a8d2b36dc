package oracle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/abelbrown/newsdedup/internal/record"
)

const pairwiseSystemPrompt = `You compare two news search results, which may be written in Japanese or English.
Decide whether both describe the same underlying news event (the same incident, announcement or report,
even if different outlets wrote them). Answer with a single word: yes or no.`

const batchedSystemPrompt = `You compare pairs of news search results, which may be written in Japanese or English.
For each numbered pair decide whether both items describe the same underlying news event.
Use the title first, then the snippet; use the dates only to break ties (far-apart dates suggest different events).
Reply with exactly one line per pair, in the order given, and nothing else.
Each line must be "yes" or "no".`

// pairwisePrompt renders the user prompt for one comparison.
func pairwisePrompt(a, b string) string {
	return fmt.Sprintf("Text A: %s\nText B: %s\n\nSame event? (yes/no)", a, b)
}

// batchedPrompt lists every pair in enumeration order.
func batchedPrompt(records []record.Record) string {
	var b strings.Builder
	pairs := PairCount(len(records))
	fmt.Fprintf(&b, "There are %d pairs. Answer with %d lines.\n\n", pairs, pairs)

	k := 1
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			fmt.Fprintf(&b, "Pair %d:\n", k)
			writeItem(&b, "A", records[i])
			writeItem(&b, "B", records[j])
			b.WriteString("\n")
			k++
		}
	}
	return b.String()
}

func writeItem(b *strings.Builder, label string, r record.Record) {
	date := r.Date
	if date == "" {
		date = record.UnknownDate
	}
	fmt.Fprintf(b, "  %s title: %s\n  %s snippet: %s\n  %s date: %s\n", label, r.Title, label, r.Snippet, label, date)
}

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// "1.", "1)", "Pair 1:", "- ", "* " prefixes some models add despite instructions
	linePrefix = regexp.MustCompile(`(?i)^(?:pair\s*)?(?:\d+\s*[.):\-]\s*|[-*•]\s+)`)
	// whole words only: "unknown" and "cannot" are not answers
	yesWord = regexp.MustCompile(`\byes\b|はい`)
	noWord  = regexp.MustCompile(`\bno\b|いいえ`)
)

// stripThink removes reasoning blocks emitted by thinking models.
func stripThink(s string) string {
	return thinkBlock.ReplaceAllString(s, "")
}

// parseVerdict reads a free-text pairwise reply. ok is false when the reply
// carries neither answer.
func parseVerdict(content string) (same bool, ok bool) {
	text := strings.ToLower(strings.TrimSpace(stripThink(content)))
	if text == "" {
		return false, false
	}

	first := strings.Trim(strings.Fields(text)[0], `.,!:;"'`)
	switch first {
	case "yes", "y", "true", "はい":
		return true, true
	case "no", "n", "false", "いいえ":
		return false, true
	}

	hasYes, hasNo := yesWord.MatchString(text), noWord.MatchString(text)
	switch {
	case hasYes && !hasNo:
		return true, true
	case hasNo && !hasYes:
		return false, true
	}
	return false, false
}

// ParseJudgments turns a batched reply into one judgment per non-blank line.
// A line containing the word "yes" (any case) marks its pair as a duplicate. The count
// must equal want exactly; anything else is ErrOracleMismatch.
func ParseJudgments(content string, want int) ([]bool, error) {
	var judgments []bool
	for _, line := range strings.Split(stripThink(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = linePrefix.ReplaceAllString(line, "")
		judgments = append(judgments, yesWord.MatchString(strings.ToLower(line)))
	}

	if len(judgments) != want {
		return nil, fmt.Errorf("%w: expected %d judgments, got %d", ErrOracleMismatch, want, len(judgments))
	}
	return judgments, nil
}

package handler

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ella-systems/ella-agent/internal/ws"
)

// hedges are filler words a gap statement carries that a question should
// not ("deployment target is unclear" -> "Deployment target?").
var hedges = []string{
	"is unclear",
	"unclear",
	"is not specified",
	"not specified",
	"is undefined",
	"undefined",
	"is unknown",
	"unknown",
	"is missing",
	"missing",
	"needs clarification",
}

// gapToQuestion mechanically rewrites a gap statement as a question.
func gapToQuestion(gap string) string {
	q := gap
	for _, h := range hedges {
		q = strings.ReplaceAll(q, h, "")
	}
	q = strings.Join(strings.Fields(q), " ")
	q = strings.TrimRight(q, " .,:;-")
	if q == "" {
		q = gap
	}

	runes := []rune(q)
	runes[0] = unicode.ToUpper(runes[0])
	q = string(runes)

	if !strings.HasSuffix(q, "?") {
		q += "?"
	}
	return q
}

// buildQuestions converts remaining gaps into a question batch. IDs are
// positional (gap_1, gap_2, ...) over the record's remaining-gap order,
// which is also how answers are matched back on answers_received.
func buildQuestions(remaining []string) []ws.Question {
	questions := make([]ws.Question, 0, len(remaining))
	for i, gap := range remaining {
		questions = append(questions, ws.Question{
			ID:   fmt.Sprintf("gap_%d", i+1),
			Text: gapToQuestion(gap),
		})
	}
	return questions
}

// filledSummary renders the per-gap completion summary.
func filledSummary(filled []FilledGap) string {
	var b strings.Builder
	for i, f := range filled {
		fmt.Fprintf(&b, "%d. %s\n   ✓ %s\n", i+1, f.Gap, f.Resolution)
	}
	return strings.TrimRight(b.String(), "\n")
}

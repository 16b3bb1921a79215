package handler

import (
	"context"
	"fmt"

	"github.com/ella-systems/ella-agent/internal/engine"
)

// onAnswersReceived merges the user's answers into the analysis record
// and re-enters the confidence branch. The merge is deterministic: answer
// IDs are positional over the record's remaining-gap order, a non-empty
// answer moves its gap to filled with source "user", an empty or missing
// answer leaves the gap open.
func (h *PlanHandler) onAnswersReceived(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	rec, ok := loadRecord(h.session, pc.ProjectID)
	if !ok {
		// Answers without a prior analysis are a no-op; confidence is
		// untouched.
		h.logger.Warn().Str("project", pc.ProjectID).Msg("answers received with no analysis record, ignored")
		return nil
	}

	payload, err := engine.DecodePayload[engine.AnswersPayload](ev)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed answers payload, ignored")
		return nil
	}

	filled, remaining := mergeAnswers(rec.RemainingGaps, payload.Answers)

	confidence, reasoning := h.score(ctx,
		rescorePrompt(rec.Description, rec.Gaps, append(rec.FilledGaps, filled...), remaining))

	rec.FilledGaps = append(rec.FilledGaps, filled...)
	rec.RemainingGaps = remaining
	rec.Confidence = confidence
	rec.Reasoning = reasoning
	if err := saveRecord(h.session, pc.ProjectID, rec); err != nil {
		h.logger.Error().Err(err).Msg("record save failed")
	}
	h.setConfidence(ctx, pc, confidence)

	h.logger.Info().
		Str("project", pc.ProjectID).
		Int("answered", len(filled)).
		Int("remaining", len(remaining)).
		Int("confidence", confidence).
		Msg("answers merged")

	if confidence >= h.threshold {
		return h.announceReady(ctx, pc, rec.FilledGaps)
	}
	if len(remaining) == 0 {
		// Everything answered but the scorer still is not convinced; run
		// another research round rather than re-asking empty questions.
		return h.runGapFill(ctx, pc)
	}
	return h.askRemaining(ctx, pc, rec)
}

// mergeAnswers pairs answers (keyed gap_1..gap_n over the remaining-gap
// order) with their gaps. Deterministic given the same record and answers.
func mergeAnswers(remaining []string, answers map[string]string) ([]FilledGap, []string) {
	var filled []FilledGap
	var open []string
	for i, gap := range remaining {
		id := fmt.Sprintf("gap_%d", i+1)
		if answer, ok := answers[id]; ok && answer != "" {
			filled = append(filled, FilledGap{Gap: gap, Resolution: answer, Source: "user"})
			continue
		}
		open = append(open, gap)
	}
	return filled, open
}

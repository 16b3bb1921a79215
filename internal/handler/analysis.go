package handler

import (
	"context"

	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/llm"
)

// onStartAnalysis runs the first pass of the readiness loop: analyze the
// description, score it, and either declare ready or enter research.
func (h *PlanHandler) onStartAnalysis(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	payload, _ := engine.DecodePayload[engine.AnalysisPayload](ev)
	description := payload.Description
	if description == "" && pc.Planning != nil {
		description = pc.Planning.InitialDescription
	}

	h.messenger.SendFiller(pc.ProjectID)

	resp, err := h.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemIdentity},
			{Role: llm.RoleUser, Content: initialAnalysisPrompt(description)},
		},
	})
	if err != nil {
		// The one failure users see directly. No record is written, so a
		// later answers_received for this project is a no-op.
		h.logger.Error().Str("project", pc.ProjectID).Err(err).Msg("initial analysis failed")
		if h.notifier != nil {
			h.notifier.AnalysisFailed(pc.ProjectID, err)
		}
		return h.messenger.SendMessage(ctx, pc.ProjectID, analysisFailedMessage)
	}

	analysis := parseAnalysis(resp.Content)
	confidence, reasoning := h.score(ctx, confidencePrompt(description, analysis.Gaps))

	rec := AnalysisRecord{
		Description:   description,
		Gaps:          analysis.Gaps,
		RemainingGaps: analysis.Gaps,
		Confidence:    confidence,
		Reasoning:     reasoning,
	}
	if err := saveRecord(h.session, pc.ProjectID, rec); err != nil {
		h.logger.Error().Err(err).Msg("record save failed")
	}

	h.setConfidence(ctx, pc, confidence)
	pc.AppendMessage("assistant", analysis.Message)
	if err := h.messenger.SendMessage(ctx, pc.ProjectID, analysis.Message); err != nil {
		h.logger.Warn().Err(err).Msg("message delivery failed")
	}

	h.logger.Info().
		Str("project", pc.ProjectID).
		Int("gaps", len(analysis.Gaps)).
		Int("confidence", confidence).
		Msg("initial analysis complete")

	if confidence >= h.threshold {
		return h.announceReady(ctx, pc, nil)
	}
	return h.runGapFill(ctx, pc)
}

// score invokes the scoring capability. Malformed output falls back to a
// conservative 30 so the loop keeps a trustworthy number.
func (h *PlanHandler) score(ctx context.Context, prompt string) (int, string) {
	resp, err := h.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemIdentity},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("confidence scoring failed")
		return fallbackConfidence, "scoring unavailable"
	}
	return parseConfidence(resp.Content)
}

// announceReady tells the user the project cleared the threshold,
// summarizing filled gaps when research produced any.
func (h *PlanHandler) announceReady(ctx context.Context, pc *engine.Context, filled []FilledGap) error {
	msg := "Great news: the project description is complete enough to start implementation."
	if len(filled) > 0 {
		msg += " Here's what I filled in:\n" + filledSummary(filled)
	}
	pc.AppendMessage("assistant", msg)
	return h.messenger.SendMessage(ctx, pc.ProjectID, msg)
}

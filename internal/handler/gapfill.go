package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/llm"
	"github.com/ella-systems/ella-agent/internal/tool"
)

// runGapFill runs one research round: offer the model the tool catalog,
// execute whatever it calls (in parallel), ask for a final verdict,
// rescore, and either announce readiness or suspend on user questions.
// Resumption after suspension comes only from a later answers_received.
func (h *PlanHandler) runGapFill(ctx context.Context, pc *engine.Context) error {
	rec, ok := loadRecord(h.session, pc.ProjectID)
	if !ok {
		h.logger.Warn().Str("project", pc.ProjectID).Msg("gap fill aborted, no analysis record")
		return nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemIdentity},
		{Role: llm.RoleUser, Content: researchPrompt(rec.Description, rec.RemainingGaps)},
	}

	resp, err := h.llm.Chat(ctx, llm.ChatRequest{
		Messages:   messages,
		Tools:      h.registry.Catalog(),
		ToolChoice: llm.ToolChoiceAuto,
	})
	if err != nil {
		h.logger.Error().Str("project", pc.ProjectID).Err(err).Msg("research round failed")
		return nil
	}

	verdict := resp.Content
	if resp.HasToolCalls() {
		h.messenger.SendFiller(pc.ProjectID)

		calls := tool.ParseCalls(resp)
		h.injectProjectID(pc.ProjectID, calls)
		results := h.executor.ExecuteAll(ctx, calls)

		// Exactly one follow-up round: full conversation, no tools, so
		// the model must produce its final verdict now.
		followUp := append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		followUp = append(followUp, tool.ResultMessages(results)...)

		final, err := h.llm.Chat(ctx, llm.ChatRequest{Messages: followUp})
		if err != nil {
			h.logger.Error().Str("project", pc.ProjectID).Err(err).Msg("research follow-up failed")
			return nil
		}
		verdict = final.Content
	}

	outcome := parseGapFill(verdict)
	remaining := remainingAfter(rec.RemainingGaps, outcome.FilledGaps)

	confidence, reasoning := h.score(ctx,
		rescorePrompt(rec.Description, rec.Gaps, outcome.FilledGaps, remaining))

	rec.FilledGaps = append(rec.FilledGaps, outcome.FilledGaps...)
	rec.UnfillableGaps = outcome.UnfillableGaps
	rec.RemainingGaps = remaining
	rec.Confidence = confidence
	rec.Reasoning = reasoning
	if err := saveRecord(h.session, pc.ProjectID, rec); err != nil {
		h.logger.Error().Err(err).Msg("record save failed")
	}
	h.setConfidence(ctx, pc, confidence)

	h.logger.Info().
		Str("project", pc.ProjectID).
		Int("filled", len(outcome.FilledGaps)).
		Int("remaining", len(remaining)).
		Int("confidence", confidence).
		Msg("research round complete")

	if confidence >= h.threshold {
		return h.announceReady(ctx, pc, rec.FilledGaps)
	}
	return h.askRemaining(ctx, pc, rec)
}

// injectProjectID fills the project_id param on tools that scope to a
// project, so the model cannot research the wrong one.
func (h *PlanHandler) injectProjectID(projectID string, calls []tool.Call) {
	for i, call := range calls {
		params := make(map[string]any)
		if len(call.Params) > 0 {
			// Leave malformed params alone; the executor reports them.
			if err := json.Unmarshal(call.Params, &params); err != nil {
				continue
			}
		}
		def, ok := h.registry.Get(call.Name)
		if !ok {
			continue
		}
		for _, p := range def.Definition().Params {
			if p.Name == "project_id" {
				params["project_id"] = projectID
				raw, err := json.Marshal(params)
				if err == nil {
					calls[i].Params = raw
				}
				break
			}
		}
	}
}

// askRemaining reports partial progress and converts each remaining gap
// into a clarifying question, then suspends until answers_received.
func (h *PlanHandler) askRemaining(ctx context.Context, pc *engine.Context, rec AnalysisRecord) error {
	progress := fmt.Sprintf(
		"I researched your project and resolved %d of %d open questions. A few things still need your input:",
		len(rec.FilledGaps), len(rec.Gaps))

	questions := buildQuestions(rec.RemainingGaps)
	pc.AppendMessage("assistant", progress)
	if h.notifier != nil {
		h.notifier.ProjectStalled(pc.ProjectID, len(questions))
	}
	return h.messenger.AskQuestions(ctx, pc.ProjectID, progress, questions)
}

// remainingAfter returns the gaps not covered by filled, preserving order.
func remainingAfter(gaps []string, filled []FilledGap) []string {
	covered := make(map[string]bool, len(filled))
	for _, f := range filled {
		covered[f.Gap] = true
	}
	remaining := make([]string, 0, len(gaps))
	for _, g := range gaps {
		if !covered[g] {
			remaining = append(remaining, g)
		}
	}
	return remaining
}

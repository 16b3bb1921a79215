// Package handler implements the per-stage event handlers. PlanHandler
// carries the confidence-driven gap-filling loop; the later stages are
// pass-through dispatchers.
package handler

import (
	"fmt"
	"strings"
)

const systemIdentity = `You are E.L.L.A., an engineering readiness assistant. You assess whether a project description contains enough information to begin implementation. You are precise, concise, and always answer in the exact JSON format requested.`

func initialAnalysisPrompt(description string) string {
	return fmt.Sprintf(`Analyze this project description for implementation readiness:

%s

Identify every piece of missing information that would block an engineer from starting. Consider: target users, core features, data model, integrations, deployment target, authentication, scale expectations.

Respond with JSON only:
{"gaps": ["<specific missing piece>", ...], "message": "<one short friendly paragraph for the user summarizing what you found>"}`, description)
}

func confidencePrompt(description string, gaps []string) string {
	return fmt.Sprintf(`Rate the implementation readiness of this project from 0 to 100, where 100 means an engineer could start building today.

Description:
%s

Known information gaps:
%s

Respond with JSON only:
{"confidence": <integer 0-100>, "reasoning": "<one sentence>"}`, description, bulletList(gaps))
}

func rescorePrompt(description string, originalGaps []string, filled []FilledGap, remaining []string) string {
	var filledLines []string
	for _, f := range filled {
		filledLines = append(filledLines, fmt.Sprintf("%s -> %s (source: %s)", f.Gap, f.Resolution, f.Source))
	}
	return fmt.Sprintf(`Re-rate the implementation readiness of this project from 0 to 100 given the research below.

Description:
%s

Original gaps:
%s

Filled gaps:
%s

Remaining gaps:
%s

Respond with JSON only:
{"confidence": <integer 0-100>, "reasoning": "<one sentence>"}`,
		description, bulletList(originalGaps), bulletList(filledLines), bulletList(remaining))
}

func researchPrompt(description string, gaps []string) string {
	return fmt.Sprintf(`You are researching open questions about a project before implementation starts.

Project description:
%s

Open gaps:
%s

Use the available tools to resolve as many gaps as you can from project memory and public sources. When you are done, respond with JSON only:
{"filledGaps": [{"gap": "<original gap>", "resolution": "<what you found>", "source": "<where>"}], "unfillableGaps": ["<gap that needs the user>"]}`,
		description, bulletList(gaps))
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// User-visible fallback copy.
const (
	analysisFailedMessage = "I encountered an issue analyzing your description. Could you provide more details about what you want to build?"
	genericGapMessage     = "I looked over your description and need a bit more information before implementation can start."
)

package handler

import (
	"encoding/json"
	"strings"
)

// extractJSON strips markdown code fences so fenced model output parses.
// Returns the trimmed inner text; callers still handle parse failure.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	// Some models wrap JSON in prose; take the outermost object if present.
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

type analysisResult struct {
	Gaps    []string `json:"gaps"`
	Message string   `json:"message"`
}

// parseAnalysis decodes the initial-analysis response. Malformed output
// (bad JSON, missing gaps array, missing message) degrades to a
// conservative single-gap result instead of failing.
func parseAnalysis(content string) analysisResult {
	var out analysisResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil || out.Gaps == nil || out.Message == "" {
		return analysisResult{
			Gaps:    []string{"The description needs more detail before implementation can start"},
			Message: genericGapMessage,
		}
	}
	return out
}

const fallbackConfidence = 30

// parseConfidence decodes a scoring response. The scorer's contract is
// strict: confidence must be numeric and within [0,100]; anything else
// yields the fallback so downstream branching stays trustworthy.
func parseConfidence(content string) (int, string) {
	var out struct {
		Confidence json.Number `json:"confidence"`
		Reasoning  string      `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return fallbackConfidence, "unparseable scorer output"
	}
	f, err := out.Confidence.Float64()
	if err != nil || f < 0 || f > 100 {
		return fallbackConfidence, "scorer confidence out of range"
	}
	return int(f), out.Reasoning
}

type gapFillResult struct {
	FilledGaps     []FilledGap `json:"filledGaps"`
	UnfillableGaps []string    `json:"unfillableGaps"`
}

// parseGapFill decodes the research verdict. Any parse failure degrades
// to an empty result; the loop then treats every gap as still open.
func parseGapFill(content string) gapFillResult {
	var out gapFillResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return gapFillResult{FilledGaps: []FilledGap{}, UnfillableGaps: []string{}}
	}
	if out.FilledGaps == nil {
		out.FilledGaps = []FilledGap{}
	}
	if out.UnfillableGaps == nil {
		out.UnfillableGaps = []string{}
	}
	return out
}

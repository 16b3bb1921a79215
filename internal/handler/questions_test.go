package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGapToQuestionStripsHedges(t *testing.T) {
	cases := map[string]string{
		"deployment target is unclear":         "Deployment target?",
		"authentication model not specified":   "Authentication model?",
		"target user base is missing":          "Target user base?",
		"scale expectations undefined":         "Scale expectations?",
		"does the app need offline support":    "Does the app need offline support?",
		"which database should be used?":       "Which database should be used?",
	}
	for gap, want := range cases {
		assert.Equal(t, want, gapToQuestion(gap), "gap %q", gap)
	}
}

func TestBuildQuestionsAssignsPositionalIDs(t *testing.T) {
	qs := buildQuestions([]string{"a is unclear", "b is missing", "c undefined"})
	require.Len(t, qs, 3)
	assert.Equal(t, "gap_1", qs[0].ID)
	assert.Equal(t, "gap_2", qs[1].ID)
	assert.Equal(t, "gap_3", qs[2].ID)
}

func TestMergeAnswersDeterministic(t *testing.T) {
	remaining := []string{"gap a", "gap b", "gap c"}
	answers := map[string]string{
		"gap_1": "answer a",
		"gap_2": "", // empty answer leaves the gap open
		// gap_3 missing entirely
	}

	filled, open := mergeAnswers(remaining, answers)
	require.Len(t, filled, 1)
	assert.Equal(t, "gap a", filled[0].Gap)
	assert.Equal(t, "answer a", filled[0].Resolution)
	assert.Equal(t, "user", filled[0].Source)
	assert.Equal(t, []string{"gap b", "gap c"}, open)

	// Same inputs, same outputs.
	filled2, open2 := mergeAnswers(remaining, answers)
	assert.Equal(t, filled, filled2)
	assert.Equal(t, open, open2)
}

func TestFilledSummaryFormat(t *testing.T) {
	got := filledSummary([]FilledGap{
		{Gap: "deployment target", Resolution: "AWS ECS", Source: "user"},
		{Gap: "auth model", Resolution: "OIDC via Auth0", Source: "research"},
	})
	want := "1. deployment target\n   ✓ AWS ECS\n2. auth model\n   ✓ OIDC via Auth0"
	assert.Equal(t, want, got)
}

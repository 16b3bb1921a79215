package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ella-systems/ella-agent/internal/memory"
)

// sessionKeyAnalysis is the session-memory key holding the live
// gap-analysis record for a project.
const sessionKeyAnalysis = "initial_analysis"

// FilledGap records how one gap was resolved.
type FilledGap struct {
	Gap        string `json:"gap"`
	Resolution string `json:"resolution"`
	Source     string `json:"source"` // "research" or "user"
}

// AnalysisRecord is the live gap-analysis state for a project. Each
// round replaces the record in full; there is no partial merge.
type AnalysisRecord struct {
	Description    string      `json:"description"`
	Gaps           []string    `json:"gaps"` // original gap list, never mutated
	RemainingGaps  []string    `json:"remaining_gaps"`
	FilledGaps     []FilledGap `json:"filled_gaps,omitempty"`
	UnfillableGaps []string    `json:"unfillable_gaps,omitempty"`
	Confidence     int         `json:"confidence"`
	Reasoning      string      `json:"reasoning,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

func saveRecord(session *memory.SessionStore, projectID string, rec AnalysisRecord) error {
	rec.Timestamp = time.Now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal analysis record: %w", err)
	}
	session.Set(projectID, sessionKeyAnalysis, string(raw))
	return nil
}

func loadRecord(session *memory.SessionStore, projectID string) (AnalysisRecord, bool) {
	doc, ok := session.Get(projectID, sessionKeyAnalysis)
	if !ok {
		return AnalysisRecord{}, false
	}
	var rec AnalysisRecord
	if err := json.Unmarshal([]byte(doc.Content), &rec); err != nil {
		return AnalysisRecord{}, false
	}
	return rec, true
}

package engine

import (
	"time"
)

// PlanningMessage is one role-tagged line of the planning conversation
// held in working state. Append-only.
type PlanningMessage struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// PlanningData is the planning stage's working state.
type PlanningData struct {
	CurrentScreen      int               `json:"current_screen"` // 1..3
	Messages           []PlanningMessage `json:"messages"`
	Confidence         int               `json:"confidence"` // 0..100
	InitialDescription string            `json:"initial_description"`
}

// Context is a project's mutable state, owned by the engine. The engine
// is the sole writer of Stage; the handler owning the current stage is
// the sole writer of everything else. Contexts are created once and never
// deleted here.
type Context struct {
	ProjectID     string
	ProjectName   string
	DriveFolderID string
	Stage         Stage
	Planning      *PlanningData
	Artifacts     []string
	CreatedAt     time.Time
}

// AppendMessage records a planning conversation line.
func (c *Context) AppendMessage(role, content string) {
	if c.Planning == nil {
		return
	}
	c.Planning.Messages = append(c.Planning.Messages, PlanningMessage{
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	})
}

// AddArtifact appends an artifact reference.
func (c *Context) AddArtifact(ref string) {
	c.Artifacts = append(c.Artifacts, ref)
}

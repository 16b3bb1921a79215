// Package engine implements the per-project stage machine: a context store,
// a handler registry keyed by stage, and event dispatch with a closed
// transition table.
package engine

// Stage is one phase of a project's lifecycle.
type Stage string

const (
	StagePlanning       Stage = "planning"
	StageImplementation Stage = "implementation"
	StageReview         Stage = "review"
	StageTesting        Stage = "testing"
	StageComplete       Stage = "complete"
)

// stageOrder defines the forward-only lifecycle sequence.
var stageOrder = []Stage{
	StagePlanning,
	StageImplementation,
	StageReview,
	StageTesting,
	StageComplete,
}

// Index returns the stage's position in the lifecycle, or -1 for an
// unknown stage.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Index() >= 0 }

func (s Stage) String() string { return string(s) }

// transitionKey pairs the current stage with the event that may advance it.
type transitionKey struct {
	stage Stage
	event string
}

// transitions is the closed table of stage advances. Any (stage, event)
// pair not listed is a no-op for transition purposes. Each synthetic
// completion event matches at most one row, so the re-entry cascade
// advances exactly one step and terminates.
var transitions = map[transitionKey]Stage{
	{StagePlanning, EventPlanningComplete}:             StageImplementation,
	{StageImplementation, EventImplementationComplete}: StageReview,
	{StageReview, EventReviewComplete}:                 StageTesting,
	{StageTesting, EventTestsComplete}:                 StageComplete,
}

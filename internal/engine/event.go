package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names. The set is closed; dispatch ignores anything else.
const (
	// Lifecycle
	EventContextCreated     = "context_created"
	EventClientConnected    = "client_connected"
	EventClientDisconnected = "client_disconnected"
	EventWebSocketMessage   = "websocket_message"

	// Planning
	EventStartInitialAnalysis = "start_initial_analysis"
	EventAnswersReceived      = "answers_received"
	EventScreenComplete       = "screen_complete"
	EventUserResponse         = "user_response"
	EventPlanningComplete     = "planning_complete"

	// Implementation / review / testing
	EventStoryComplete          = "story_complete"
	EventImplementationComplete = "implementation_complete"
	EventReviewComplete         = "review_complete"
	EventTestsComplete          = "tests_complete"
)

// Event is an immutable fact routed to the handler of the project's
// current stage. Payload is JSON whose shape is fixed per event name.
type Event struct {
	Name      string          `json:"name"`
	ProjectID string          `json:"project_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an Event, filling payload and timestamp defaults.
// payload may be nil, a json.RawMessage, or any marshalable value.
func NewEvent(name, projectID string, payload any) Event {
	return Event{
		Name:      name,
		ProjectID: projectID,
		Payload:   marshalPayload(payload),
		Timestamp: time.Now().UTC(),
	}
}

func marshalPayload(payload any) json.RawMessage {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`)
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage(`{}`)
		}
		return p
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return json.RawMessage(`{}`)
		}
		return raw
	}
}

// Normalize fills in defaults on an externally constructed event.
func (e Event) Normalize() Event {
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage(`{}`)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// ---- payload shapes, one per event name ----

// TransitionPayload accompanies synthetic <stage>_complete events emitted
// by the engine on a transition.
type TransitionPayload struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

// AnalysisPayload accompanies start_initial_analysis.
type AnalysisPayload struct {
	Description string `json:"description"`
}

// AnswersPayload accompanies answers_received. Keys are question IDs
// (gap_1, gap_2, ...) and values the user's free-text answers.
type AnswersPayload struct {
	Answers map[string]string `json:"answers"`
}

// ScreenPayload accompanies screen_complete.
type ScreenPayload struct {
	Screen int `json:"screen"`
}

// UserResponsePayload accompanies user_response and websocket_message.
type UserResponsePayload struct {
	Content string `json:"content"`
	Ref     string `json:"ref,omitempty"`
}

// ClientPayload accompanies client_connected / client_disconnected.
type ClientPayload struct {
	ClientID string `json:"client_id"`
}

// DecodePayload unmarshals an event payload into its declared shape.
func DecodePayload[T any](e Event) (T, error) {
	var out T
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return out, nil
}

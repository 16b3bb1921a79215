package ws

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/store"
)

// Question is a clarifying question pushed to the client. Answers come
// back keyed by ID.
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Messenger is the agent's outbound voice. Every durable message is
// written to the chat transcript before any client sees it, so a client
// that reconnects replays exactly what was delivered.
type Messenger struct {
	hub    *Hub
	store  *store.Store
	logger zerolog.Logger
}

// NewMessenger wires a hub to the chat store.
func NewMessenger(hub *Hub, st *store.Store, logger zerolog.Logger) *Messenger {
	return &Messenger{
		hub:    hub,
		store:  st,
		logger: logger.With().Str("component", "messenger").Logger(),
	}
}

// SendMessage persists an assistant message and broadcasts it.
func (m *Messenger) SendMessage(ctx context.Context, projectID, content string) error {
	if _, err := m.store.AppendChat(ctx, projectID, store.ChatRoleAssistant, content); err != nil {
		return err
	}
	m.hub.Broadcast(projectID, Envelope{
		Type:    TypeMessage,
		Payload: map[string]string{"content": content},
	})
	return nil
}

// AskQuestions persists the question text and broadcasts the structured
// question list so the client can render an answer form.
func (m *Messenger) AskQuestions(ctx context.Context, projectID, intro string, questions []Question) error {
	text := intro
	for _, q := range questions {
		text += "\n- " + q.Text
	}
	if _, err := m.store.AppendChat(ctx, projectID, store.ChatRoleAssistant, text); err != nil {
		return err
	}
	m.hub.Broadcast(projectID, Envelope{
		Type: TypeQuestion,
		Payload: map[string]any{
			"intro":     intro,
			"questions": questions,
		},
	})
	return nil
}

var fillers = []string{
	"Digging into that now...",
	"Give me a moment, checking a few sources.",
	"Still on it, pulling together what I found.",
	"One sec, cross-referencing your project notes.",
}

// SendFiller broadcasts a short holding message while research runs.
// Fillers are ephemeral and are not written to the transcript.
func (m *Messenger) SendFiller(projectID string) {
	m.hub.Broadcast(projectID, Envelope{
		Type:    TypeFiller,
		Payload: map[string]string{"content": fillers[rand.Intn(len(fillers))]},
	})
}

// NotifyScreenChange broadcasts a planning screen advance, carrying the
// artifacts produced so far so the client can render them.
func (m *Messenger) NotifyScreenChange(projectID string, screen int, artifacts []string) {
	if artifacts == nil {
		artifacts = []string{}
	}
	m.hub.Broadcast(projectID, Envelope{
		Type: TypeScreenChange,
		Payload: map[string]any{
			"screen":    screen,
			"artifacts": artifacts,
		},
	})
}

// NotifyStageChange broadcasts a stage transition.
func (m *Messenger) NotifyStageChange(projectID, from, to string) {
	m.hub.Broadcast(projectID, Envelope{
		Type:    TypeStageChange,
		Payload: map[string]string{"from": from, "to": to},
	})
}

// Ack confirms receipt of an inbound client frame.
func (m *Messenger) Ack(projectID, ref string) {
	m.hub.Broadcast(projectID, Envelope{
		Type:    TypeAck,
		Payload: map[string]string{"ref": ref},
	})
}

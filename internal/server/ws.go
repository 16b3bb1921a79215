package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/ella-systems/ella-agent/internal/engine"
)

// inboundFrame is what clients send over the socket.
type inboundFrame struct {
	Type    string            `json:"type"` // "message", "answers", "screen_complete"
	Ref     string            `json:"ref,omitempty"`
	Content string            `json:"content,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`
	Screen  int               `json:"screen,omitempty"`
}

func (s *Server) registerWebSocket() {
	// Upgrade gate: verify the project-scoped token before the protocol
	// switch so rejects are plain HTTP errors.
	s.app.Use("/ws/:id", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		projectID := c.Params("id")
		subject, err := s.deps.Issuer.VerifyProjectToken(c.Query("token"))
		if err != nil || subject != projectID {
			return fiber.ErrUnauthorized
		}
		c.Locals("project_id", projectID)
		return c.Next()
	})

	s.app.Get("/ws/:id", websocket.New(func(conn *websocket.Conn) {
		projectID, _ := conn.Locals("project_id").(string)
		clientID := uuid.NewString()

		client := s.deps.Hub.Register(clientID, projectID, conn)
		defer s.deps.Hub.Unregister(client)

		ctx := context.Background()
		s.deps.Engine.EmitEvent(ctx, engine.NewEvent(engine.EventClientConnected, projectID,
			engine.ClientPayload{ClientID: clientID}))
		defer s.deps.Engine.EmitEvent(ctx, engine.NewEvent(engine.EventClientDisconnected, projectID,
			engine.ClientPayload{ClientID: clientID}))

		for {
			var frame inboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.dispatchFrame(projectID, frame)
		}
	}))
}

// dispatchFrame maps a client frame onto an engine event. Dispatch is
// asynchronous; the read loop must never block on LLM work.
func (s *Server) dispatchFrame(projectID string, frame inboundFrame) {
	var ev engine.Event
	switch frame.Type {
	case "answers":
		ev = engine.NewEvent(engine.EventAnswersReceived, projectID,
			engine.AnswersPayload{Answers: frame.Answers})
	case "screen_complete":
		ev = engine.NewEvent(engine.EventScreenComplete, projectID,
			engine.ScreenPayload{Screen: frame.Screen})
	case "message":
		ev = engine.NewEvent(engine.EventWebSocketMessage, projectID,
			engine.UserResponsePayload{Content: frame.Content, Ref: frame.Ref})
	default:
		s.logger.Debug().Str("type", frame.Type).Msg("unknown frame type ignored")
		return
	}
	go s.deps.Engine.EmitEvent(context.Background(), ev)
}

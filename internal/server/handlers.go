package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ella-systems/ella-agent/internal/engine"
	aerrors "github.com/ella-systems/ella-agent/internal/errors"
	"github.com/ella-systems/ella-agent/internal/store"
)

type createProjectRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DriveFolderID string `json:"drive_folder_id"`
}

type projectResponse struct {
	store.Project
	WSToken string `json:"ws_token,omitempty"`
}

// createProject persists the project, creates its engine context and
// kicks off the initial analysis in the background.
func (s *Server) createProject(c *fiber.Ctx) error {
	var req createProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}

	p := &store.Project{Name: req.Name, Description: req.Description}
	if err := s.deps.Store.CreateProject(c.Context(), p); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "create project failed")
	}

	if _, err := s.deps.Engine.CreateContext(p.ID, p.Name, req.DriveFolderID, req.Description); err != nil {
		if errors.Is(err, aerrors.ErrConflict) {
			return fiber.NewError(fiber.StatusConflict, "project context already exists")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "create context failed")
	}

	token, err := s.deps.Issuer.IssueProjectToken(p.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "token issue failed")
	}

	// Analysis can take minutes; run it off the request path. Both events
	// go through one goroutine so creation is announced before analysis.
	go func() {
		ctx := context.Background()
		s.deps.Engine.EmitEvent(ctx, engine.NewEvent(engine.EventContextCreated, p.ID, nil))
		if req.Description != "" {
			s.deps.Engine.EmitEvent(ctx, engine.NewEvent(engine.EventStartInitialAnalysis, p.ID,
				engine.AnalysisPayload{Description: req.Description}))
		}
	}()

	return c.Status(fiber.StatusCreated).JSON(projectResponse{Project: *p, WSToken: token})
}

func (s *Server) listProjects(c *fiber.Ctx) error {
	projects, err := s.deps.Store.ListProjects(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "list projects failed")
	}
	if projects == nil {
		projects = []store.Project{}
	}
	return c.JSON(fiber.Map{"projects": projects})
}

func (s *Server) getProject(c *fiber.Ctx) error {
	p, err := s.deps.Store.GetProject(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, aerrors.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "project not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "get project failed")
	}

	// The engine's view is the live one; the store lags by one hook call.
	if stage, ok := s.deps.Engine.CurrentStage(p.ID); ok {
		p.Stage = stage.String()
	}
	return c.JSON(p)
}

func (s *Server) getChat(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	msgs, err := s.deps.Store.ChatHistory(c.Context(), c.Params("id"), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "chat history failed")
	}
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) getArtifacts(c *fiber.Ctx) error {
	arts, err := s.deps.Store.ListArtifacts(c.Context(), c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "list artifacts failed")
	}
	if arts == nil {
		arts = []store.Artifact{}
	}
	return c.JSON(fiber.Map{"artifacts": arts})
}

type postEventRequest struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// postEvent accepts an externally constructed event and dispatches it
// asynchronously. 202: acceptance is not processing.
func (s *Server) postEvent(c *fiber.Ctx) error {
	var req postEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "event name is required")
	}

	projectID := c.Params("id")
	ev := engine.NewEvent(req.Name, projectID, req.Payload)
	go s.deps.Engine.EmitEvent(context.Background(), ev)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

type postAnswersRequest struct {
	Answers map[string]string `json:"answers"`
}

// postAnswers is the REST path for answering clarifying questions; the
// WebSocket channel carries the same event.
func (s *Server) postAnswers(c *fiber.Ctx) error {
	var req postAnswersRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Answers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "answers are required")
	}

	projectID := c.Params("id")
	ev := engine.NewEvent(engine.EventAnswersReceived, projectID, engine.AnswersPayload{Answers: req.Answers})
	go s.deps.Engine.EmitEvent(context.Background(), ev)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

func (s *Server) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) readiness(c *fiber.Ctx) error {
	if s.deps.Checker != nil && !s.deps.Checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

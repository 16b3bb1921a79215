package handler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/store"
)

// The post-planning stages are pass-through dispatchers today: they
// acknowledge their activation event, record an artifact, and wait for an
// external completion signal. They exist to exercise the engine's
// polymorphism and as extension points.

// ImplementationHandler owns the implementation stage.
type ImplementationHandler struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewImplementationHandler(st *store.Store, logger zerolog.Logger) *ImplementationHandler {
	return &ImplementationHandler{store: st, logger: logger.With().Str("component", "impl_handler").Logger()}
}

func (h *ImplementationHandler) Stage() engine.Stage { return engine.StageImplementation }

func (h *ImplementationHandler) Handle(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	switch ev.Name {
	case engine.EventPlanningComplete:
		h.logger.Info().Str("project", pc.ProjectID).Msg("implementation stage active")
		return saveStageArtifact(ctx, h.store, pc, "plan", "planning stage signed off")
	case engine.EventStoryComplete:
		h.logger.Info().Str("project", pc.ProjectID).Msg("story completed")
		return nil
	default:
		return nil
	}
}

// ReviewHandler owns the review stage.
type ReviewHandler struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewReviewHandler(st *store.Store, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{store: st, logger: logger.With().Str("component", "review_handler").Logger()}
}

func (h *ReviewHandler) Stage() engine.Stage { return engine.StageReview }

func (h *ReviewHandler) Handle(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	if ev.Name == engine.EventImplementationComplete {
		h.logger.Info().Str("project", pc.ProjectID).Msg("review stage active")
		return saveStageArtifact(ctx, h.store, pc, "implementation", "implementation stage signed off")
	}
	return nil
}

// ExecutorHandler owns the testing stage.
type ExecutorHandler struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewExecutorHandler(st *store.Store, logger zerolog.Logger) *ExecutorHandler {
	return &ExecutorHandler{store: st, logger: logger.With().Str("component", "executor_handler").Logger()}
}

func (h *ExecutorHandler) Stage() engine.Stage { return engine.StageTesting }

func (h *ExecutorHandler) Handle(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	if ev.Name == engine.EventReviewComplete {
		h.logger.Info().Str("project", pc.ProjectID).Msg("testing stage active")
		return saveStageArtifact(ctx, h.store, pc, "review", "review stage signed off")
	}
	return nil
}

// CompleteHandler owns the terminal stage; it only logs arrival.
type CompleteHandler struct {
	logger zerolog.Logger
}

func NewCompleteHandler(logger zerolog.Logger) *CompleteHandler {
	return &CompleteHandler{logger: logger.With().Str("component", "complete_handler").Logger()}
}

func (h *CompleteHandler) Stage() engine.Stage { return engine.StageComplete }

func (h *CompleteHandler) Handle(_ context.Context, pc *engine.Context, ev engine.Event) error {
	if ev.Name == engine.EventTestsComplete {
		h.logger.Info().Str("project", pc.ProjectID).Msg("project complete")
	}
	return nil
}

func saveStageArtifact(ctx context.Context, st *store.Store, pc *engine.Context, kind, content string) error {
	a := &store.Artifact{ProjectID: pc.ProjectID, Kind: kind, Content: content}
	if err := st.SaveArtifact(ctx, a); err != nil {
		return err
	}
	pc.AddArtifact(a.ID)
	return nil
}

package handler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/llm"
	"github.com/ella-systems/ella-agent/internal/memory"
	"github.com/ella-systems/ella-agent/internal/metrics"
	"github.com/ella-systems/ella-agent/internal/notify"
	"github.com/ella-systems/ella-agent/internal/store"
	"github.com/ella-systems/ella-agent/internal/tool"
	"github.com/ella-systems/ella-agent/internal/ws"
)

const lastScreen = 3

// EventEmitter is the engine capability handlers use to chain events.
type EventEmitter interface {
	EmitEvent(ctx context.Context, ev engine.Event)
}

// PlanHandler owns the planning stage: initial gap analysis, confidence
// scoring, autonomous research, and user clarification, looping until the
// readiness threshold is met.
type PlanHandler struct {
	llm       llm.Client
	registry  *tool.Registry
	executor  *tool.Executor
	session   *memory.SessionStore
	messenger *ws.Messenger
	store     *store.Store
	emitter   EventEmitter
	notifier  *notify.Notifier
	threshold int
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// PlanConfig wires the planning handler's collaborators.
type PlanConfig struct {
	LLM       llm.Client
	Registry  *tool.Registry
	Executor  *tool.Executor
	Session   *memory.SessionStore
	Messenger *ws.Messenger
	Store     *store.Store
	Emitter   EventEmitter
	Notifier  *notify.Notifier // may be nil
	Threshold int              // readiness confidence, 0..100
	Metrics   *metrics.Metrics
}

// NewPlanHandler constructs the planning handler.
func NewPlanHandler(cfg PlanConfig, logger zerolog.Logger) *PlanHandler {
	return &PlanHandler{
		llm:       cfg.LLM,
		registry:  cfg.Registry,
		executor:  cfg.Executor,
		session:   cfg.Session,
		messenger: cfg.Messenger,
		store:     cfg.Store,
		emitter:   cfg.Emitter,
		notifier:  cfg.Notifier,
		threshold: cfg.Threshold,
		metrics:   cfg.Metrics,
		logger:    logger.With().Str("component", "plan_handler").Logger(),
	}
}

// Stage returns the stage this handler owns.
func (h *PlanHandler) Stage() engine.Stage { return engine.StagePlanning }

// Handle dispatches by event name. Unrecognized names are ignored.
func (h *PlanHandler) Handle(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	switch ev.Name {
	case engine.EventContextCreated:
		return h.onContextCreated(ctx, pc)
	case engine.EventStartInitialAnalysis:
		return h.onStartAnalysis(ctx, pc, ev)
	case engine.EventAnswersReceived:
		return h.onAnswersReceived(ctx, pc, ev)
	case engine.EventScreenComplete:
		return h.onScreenComplete(ctx, pc, ev)
	case engine.EventUserResponse, engine.EventWebSocketMessage:
		return h.onUserResponse(ctx, pc, ev)
	case engine.EventClientConnected, engine.EventClientDisconnected:
		h.logClient(pc, ev)
		return nil
	case engine.EventPlanningComplete:
		h.logger.Info().Str("project", pc.ProjectID).Msg("planning stage finished")
		return nil
	default:
		return nil
	}
}

func (h *PlanHandler) onContextCreated(ctx context.Context, pc *engine.Context) error {
	// Idempotent: a context may be announced more than once.
	if pc.Planning == nil {
		pc.Planning = &engine.PlanningData{CurrentScreen: 1}
	}
	return h.messenger.SendMessage(ctx, pc.ProjectID,
		"Hi, I'm E.L.L.A. Tell me about your project and I'll check whether we're ready to start building.")
}

func (h *PlanHandler) onScreenComplete(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	payload, err := engine.DecodePayload[engine.ScreenPayload](ev)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed screen_complete payload, ignored")
		return nil
	}
	if pc.Planning == nil {
		return nil
	}
	if payload.Screen > pc.Planning.CurrentScreen {
		pc.Planning.CurrentScreen = payload.Screen
	}
	h.messenger.NotifyScreenChange(pc.ProjectID, pc.Planning.CurrentScreen, pc.Artifacts)
	if payload.Screen >= lastScreen {
		h.emitter.EmitEvent(ctx, engine.NewEvent(engine.EventPlanningComplete, pc.ProjectID, nil))
	}
	return nil
}

func (h *PlanHandler) onUserResponse(ctx context.Context, pc *engine.Context, ev engine.Event) error {
	payload, err := engine.DecodePayload[engine.UserResponsePayload](ev)
	if err != nil || payload.Content == "" {
		return nil
	}
	pc.AppendMessage(store.ChatRoleUser, payload.Content)
	if _, err := h.store.AppendChat(ctx, pc.ProjectID, store.ChatRoleUser, payload.Content); err != nil {
		h.logger.Warn().Err(err).Msg("chat persist failed")
	}
	if payload.Ref != "" {
		h.messenger.Ack(pc.ProjectID, payload.Ref)
	}
	return nil
}

func (h *PlanHandler) logClient(pc *engine.Context, ev engine.Event) {
	payload, _ := engine.DecodePayload[engine.ClientPayload](ev)
	h.logger.Debug().
		Str("project", pc.ProjectID).
		Str("client", payload.ClientID).
		Str("event", ev.Name).
		Msg("client presence")
}

func (h *PlanHandler) setConfidence(ctx context.Context, pc *engine.Context, confidence int) {
	if pc.Planning != nil {
		pc.Planning.Confidence = confidence
	}
	if h.metrics != nil {
		h.metrics.ConfidenceScore.WithLabelValues(pc.ProjectID).Set(float64(confidence))
	}
	if err := h.store.UpdateProjectConfidence(ctx, pc.ProjectID, confidence); err != nil {
		h.logger.Warn().Err(err).Msg("confidence persist failed")
	}
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	aerrors "github.com/ella-systems/ella-agent/internal/errors"
	"github.com/ella-systems/ella-agent/internal/metrics"
)

// Handler reacts to events for one stage. Handle is awaited by the engine
// before transition rules are evaluated, so a handler's state changes are
// visible to the transition check. Unrecognized event names are ignored,
// never an error.
type Handler interface {
	Stage() Stage
	Handle(ctx context.Context, pc *Context, ev Event) error
}

// TransitionHook observes stage changes (persistence, client notify).
type TransitionHook func(ctx context.Context, projectID string, from, to Stage)

// slot serializes all work for one project. Events are queued; one drain
// loop at a time processes them, so handlers for the same project never
// run concurrently and re-entrant emits from inside a handler cannot
// deadlock.
type slot struct {
	mu      sync.Mutex
	pc      *Context
	queue   []Event
	running bool
}

// Engine owns the context store and the handler registry.
type Engine struct {
	mu       sync.RWMutex
	slots    map[string]*slot
	handlers map[Stage]Handler

	hooks   []TransitionHook
	metrics *metrics.Metrics
	logger  zerolog.Logger
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTransitionHook registers a hook invoked after each stage change.
func WithTransitionHook(h TransitionHook) EngineOption {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

// New constructs an engine with no handlers registered.
func New(logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		slots:    make(map[string]*slot),
		handlers: make(map[Stage]Handler),
		logger:   logger.With().Str("component", "engine").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RegisterHandler binds a handler to its stage. Panics on duplicate; the
// handler set is fixed at startup.
func (e *Engine) RegisterHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.handlers[h.Stage()]; exists {
		panic(fmt.Sprintf("handler already registered for stage %s", h.Stage()))
	}
	e.handlers[h.Stage()] = h
}

// CreateContext initializes state for a new project at the planning stage.
// Fails if a context already exists; deduplication is the caller's job.
func (e *Engine) CreateContext(projectID, projectName, driveFolderID, initialDescription string) (*Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.slots[projectID]; exists {
		return nil, fmt.Errorf("context for project %s: %w", projectID, aerrors.ErrConflict)
	}

	pc := &Context{
		ProjectID:     projectID,
		ProjectName:   projectName,
		DriveFolderID: driveFolderID,
		Stage:         StagePlanning,
		Planning: &PlanningData{
			CurrentScreen:      1,
			InitialDescription: initialDescription,
		},
		CreatedAt: time.Now().UTC(),
	}
	e.slots[projectID] = &slot{pc: pc}

	e.logger.Info().Str("project", projectID).Str("name", projectName).Msg("context created")
	return pc, nil
}

// GetContext returns the live context for a project, or nil. Callers
// outside the dispatch path should treat it as read-only.
func (e *Engine) GetContext(projectID string) *Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.slots[projectID]; ok {
		return s.pc
	}
	return nil
}

// CurrentStage returns the project's stage, and whether the project exists.
func (e *Engine) CurrentStage(projectID string) (Stage, bool) {
	e.mu.RLock()
	s, ok := e.slots[projectID]
	e.mu.RUnlock()
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc.Stage, true
}

// EmitEvent routes an event to the handler for the project's current
// stage, then evaluates transition rules. Events for unknown projects or
// stages with no handler are dropped with a log line, never an error.
// When called re-entrantly from inside a handler the event is queued and
// processed by the already-running drain loop for that project.
func (e *Engine) EmitEvent(ctx context.Context, ev Event) {
	if e.closed.Load() {
		e.logger.Warn().Str("event", ev.Name).Msg("engine closed, event dropped")
		return
	}
	ev = ev.Normalize()

	e.mu.RLock()
	s, ok := e.slots[ev.ProjectID]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn().Str("event", ev.Name).Str("project", ev.ProjectID).Msg("event for unknown project dropped")
		if e.metrics != nil {
			e.metrics.EventsDropped.WithLabelValues("unknown_project").Inc()
		}
		return
	}

	s.mu.Lock()
	s.queue = append(s.queue, ev)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	e.wg.Add(1)
	defer e.wg.Done()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		e.dispatch(ctx, s, next)
	}
}

// dispatch runs one event through the current stage's handler and, if a
// transition rule matches, advances the stage and synchronously re-enters
// with the synthetic completion event.
func (e *Engine) dispatch(ctx context.Context, s *slot, ev Event) {
	s.mu.Lock()
	stage := s.pc.Stage
	s.mu.Unlock()

	handler, ok := e.handlers[stage]
	if !ok {
		e.logger.Warn().Str("event", ev.Name).Str("stage", stage.String()).Msg("no handler for stage, event dropped")
		if e.metrics != nil {
			e.metrics.EventsDropped.WithLabelValues("no_handler").Inc()
		}
		return
	}

	if e.metrics != nil {
		e.metrics.EventsTotal.WithLabelValues(ev.Name, stage.String()).Inc()
	}
	e.logger.Debug().Str("event", ev.Name).Str("project", ev.ProjectID).Str("stage", stage.String()).Msg("dispatch")

	if err := handler.Handle(ctx, s.pc, ev); err != nil {
		e.logger.Error().Str("event", ev.Name).Str("project", ev.ProjectID).Err(err).Msg("handler failed")
	}

	next, ok := transitions[transitionKey{stage, ev.Name}]
	if !ok {
		return
	}

	s.mu.Lock()
	from := s.pc.Stage
	s.pc.Stage = next
	s.mu.Unlock()

	e.logger.Info().Str("project", ev.ProjectID).Str("from", from.String()).Str("to", next.String()).Msg("stage transition")
	if e.metrics != nil {
		e.metrics.StageTransitions.WithLabelValues(from.String(), next.String()).Inc()
	}
	for _, hook := range e.hooks {
		hook(ctx, ev.ProjectID, from, next)
	}

	synthetic := NewEvent(fmt.Sprintf("%s_complete", from), ev.ProjectID, TransitionPayload{From: from, To: next})
	e.dispatch(ctx, s, synthetic)
}

// Shutdown stops accepting events and waits for in-flight dispatch loops,
// bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closed.Store(true)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

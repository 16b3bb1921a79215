package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aerrors "github.com/ella-systems/ella-agent/internal/errors"
)

// recordingHandler captures every event it receives.
type recordingHandler struct {
	stage Stage

	mu     sync.Mutex
	events []Event
	fn     func(ctx context.Context, pc *Context, ev Event) error
}

func (h *recordingHandler) Stage() Stage { return h.stage }

func (h *recordingHandler) Handle(ctx context.Context, pc *Context, ev Event) error {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(ctx, pc, ev)
	}
	return nil
}

func (h *recordingHandler) received() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

func newTestEngine(t *testing.T) (*Engine, map[Stage]*recordingHandler) {
	t.Helper()
	e := New(zerolog.Nop())
	handlers := make(map[Stage]*recordingHandler)
	for _, st := range []Stage{StagePlanning, StageImplementation, StageReview, StageTesting, StageComplete} {
		h := &recordingHandler{stage: st}
		handlers[st] = h
		e.RegisterHandler(h)
	}
	return e, handlers
}

func TestCreateContextInitializesPlanning(t *testing.T) {
	e, _ := newTestEngine(t)

	pc, err := e.CreateContext("p1", "Acme", "folder1", "a todo app")
	require.NoError(t, err)
	assert.Equal(t, StagePlanning, pc.Stage)
	require.NotNil(t, pc.Planning)
	assert.Equal(t, 1, pc.Planning.CurrentScreen)
	assert.Equal(t, "a todo app", pc.Planning.InitialDescription)
}

func TestCreateContextDuplicateFails(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	_, err = e.CreateContext("p1", "Acme", "f", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, aerrors.ErrConflict))
}

func TestEmitEventUnknownProjectIsDropped(t *testing.T) {
	e, handlers := newTestEngine(t)

	assert.NotPanics(t, func() {
		e.EmitEvent(context.Background(), NewEvent(EventUserResponse, "ghost", nil))
	})
	for _, h := range handlers {
		assert.Empty(t, h.received())
	}
}

func TestEmitEventUnknownNameDoesNotTransition(t *testing.T) {
	e, handlers := newTestEngine(t)
	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	e.EmitEvent(context.Background(), NewEvent("never_heard_of_it", "p1", nil))

	st, ok := e.CurrentStage("p1")
	require.True(t, ok)
	assert.Equal(t, StagePlanning, st)
	// Handler still saw the event; transition table did not match.
	assert.Len(t, handlers[StagePlanning].received(), 1)
}

func TestTransitionCascade(t *testing.T) {
	e, handlers := newTestEngine(t)
	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	e.EmitEvent(context.Background(), NewEvent(EventPlanningComplete, "p1", nil))

	st, _ := e.CurrentStage("p1")
	assert.Equal(t, StageImplementation, st)

	// The implementation handler received the synthetic completion event.
	got := handlers[StageImplementation].received()
	require.Len(t, got, 1)
	assert.Equal(t, EventPlanningComplete, got[0].Name)

	payload, err := DecodePayload[TransitionPayload](got[0])
	require.NoError(t, err)
	assert.Equal(t, StagePlanning, payload.From)
	assert.Equal(t, StageImplementation, payload.To)
}

func TestStageMonotonicity(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	ctx := context.Background()
	steps := []struct {
		event string
		want  Stage
	}{
		{EventPlanningComplete, StageImplementation},
		{EventImplementationComplete, StageReview},
		{EventReviewComplete, StageTesting},
		{EventTestsComplete, StageComplete},
	}

	prev := StagePlanning.Index()
	for _, step := range steps {
		e.EmitEvent(ctx, NewEvent(step.event, "p1", nil))
		st, _ := e.CurrentStage("p1")
		assert.Equal(t, step.want, st)
		assert.Greater(t, st.Index(), prev)
		prev = st.Index()
	}

	// Completion events for earlier stages never move the stage backward.
	e.EmitEvent(ctx, NewEvent(EventPlanningComplete, "p1", nil))
	st, _ := e.CurrentStage("p1")
	assert.Equal(t, StageComplete, st)
}

func TestTriggeringEventOutOfOrderIsNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	// tests_complete at planning matches no table row.
	e.EmitEvent(context.Background(), NewEvent(EventTestsComplete, "p1", nil))
	st, _ := e.CurrentStage("p1")
	assert.Equal(t, StagePlanning, st)
}

func TestReentrantEmitFromHandlerDoesNotDeadlock(t *testing.T) {
	e := New(zerolog.Nop())

	planning := &recordingHandler{stage: StagePlanning}
	planning.fn = func(ctx context.Context, pc *Context, ev Event) error {
		if ev.Name == EventScreenComplete {
			// A handler finishing its last screen emits the stage
			// completion itself.
			e.EmitEvent(ctx, NewEvent(EventPlanningComplete, pc.ProjectID, nil))
		}
		return nil
	}
	e.RegisterHandler(planning)
	e.RegisterHandler(&recordingHandler{stage: StageImplementation})

	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		e.EmitEvent(context.Background(), NewEvent(EventScreenComplete, "p1", ScreenPayload{Screen: 3}))
		close(done)
	}()

	select {
	case <-done:
	case <-contextDone(t):
		t.Fatal("re-entrant emit deadlocked")
	}

	st, _ := e.CurrentStage("p1")
	assert.Equal(t, StageImplementation, st)
}

func TestHandlerErrorIsSwallowed(t *testing.T) {
	e := New(zerolog.Nop())
	h := &recordingHandler{stage: StagePlanning}
	h.fn = func(context.Context, *Context, Event) error { return errors.New("boom") }
	e.RegisterHandler(h)
	e.RegisterHandler(&recordingHandler{stage: StageImplementation})

	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		e.EmitEvent(context.Background(), NewEvent(EventPlanningComplete, "p1", nil))
	})
	// The transition still happens; handler errors are logged, not fatal.
	st, _ := e.CurrentStage("p1")
	assert.Equal(t, StageImplementation, st)
}

func TestTransitionHookFires(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	e := New(zerolog.Nop(), WithTransitionHook(func(_ context.Context, projectID string, from, to Stage) {
		mu.Lock()
		calls = append(calls, projectID+":"+from.String()+">"+to.String())
		mu.Unlock()
	}))
	e.RegisterHandler(&recordingHandler{stage: StagePlanning})
	e.RegisterHandler(&recordingHandler{stage: StageImplementation})

	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)
	e.EmitEvent(context.Background(), NewEvent(EventPlanningComplete, "p1", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, "p1:planning>implementation", calls[0])
}

func TestNormalizeFillsDefaults(t *testing.T) {
	ev := Event{Name: EventUserResponse, ProjectID: "p1"}.Normalize()
	assert.Equal(t, json.RawMessage(`{}`), ev.Payload)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestShutdownDropsNewEvents(t *testing.T) {
	e, handlers := newTestEngine(t)
	_, err := e.CreateContext("p1", "Acme", "f", "")
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(context.Background()))

	e.EmitEvent(context.Background(), NewEvent(EventUserResponse, "p1", nil))
	assert.Empty(t, handlers[StagePlanning].received())
}

func contextDone(t *testing.T) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx.Done()
}

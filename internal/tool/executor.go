package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/llm"
	"github.com/ella-systems/ella-agent/internal/metrics"
)

const defaultCallTimeout = 60 * time.Second

// Executor runs tool calls against a registry. Calls in a batch run
// concurrently; a failing or panicking tool yields a failed Result, never
// an executor error.
type Executor struct {
	registry *Registry
	metrics  *metrics.Metrics
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewExecutor creates an executor. metrics may be nil.
func NewExecutor(registry *Registry, m *metrics.Metrics, logger zerolog.Logger) *Executor {
	return &Executor{
		registry: registry,
		metrics:  m,
		timeout:  defaultCallTimeout,
		logger:   logger.With().Str("component", "tool").Logger(),
	}
}

// ExecuteAll runs every call concurrently and returns one Result per call,
// in the same positions as the input. No ordering is guaranteed between
// the executions themselves.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *Executor) executeOne(ctx context.Context, call Call) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("tool", call.Name).Interface("panic", r).Msg("tool panicked")
			res = Errf(call, "tool %s panicked: %v", call.Name, r)
		}
		if e.metrics != nil {
			outcome := "ok"
			if !res.Success {
				outcome = "error"
			}
			e.metrics.ToolExecutions.WithLabelValues(call.Name, outcome).Inc()
		}
	}()

	t, ok := e.registry.Get(call.Name)
	if !ok {
		e.logger.Warn().Str("tool", call.Name).Msg("unknown tool requested")
		return Errf(call, "unknown tool: %s", call.Name)
	}

	params, err := validateParams(t.Definition(), call.Params)
	if err != nil {
		e.logger.Warn().Str("tool", call.Name).Err(err).Msg("invalid tool params")
		return Errf(call, "invalid params: %v", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	data, err := t.Execute(callCtx, params)
	if err != nil {
		e.logger.Warn().Str("tool", call.Name).Err(err).Msg("tool failed")
		return Errf(call, "%v", err)
	}

	e.logger.Debug().
		Str("tool", call.Name).
		Dur("elapsed", time.Since(start)).
		Msg("tool executed")
	return Ok(call, data)
}

// ParseCalls converts the model's requested tool calls into executor Calls.
func ParseCalls(resp *llm.ChatResponse) []Call {
	calls := make([]Call, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, Call{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Params: json.RawMessage(tc.Function.Arguments),
		})
	}
	return calls
}

// ResultMessages converts results into role "tool" messages for the
// follow-up model round. Failures are reported in-band so the model can
// route around them.
func ResultMessages(results []Result) []llm.Message {
	msgs := make([]llm.Message, 0, len(results))
	for _, r := range results {
		content := r.Data
		if !r.Success {
			content = fmt.Sprintf(`{"error":%q}`, r.Error)
		}
		msgs = append(msgs, llm.ToolResultMessage(r.ID, r.Name, content))
	}
	return msgs
}

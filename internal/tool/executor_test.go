package tool

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ella-systems/ella-agent/internal/llm"
)

type fakeTool struct {
	def   Definition
	fn    func(ctx context.Context, params map[string]any) (string, error)
	calls atomic.Int32
}

func (f *fakeTool) Definition() Definition { return f.def }

func (f *fakeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, params)
}

func echoTool(name string) *fakeTool {
	return &fakeTool{
		def: Definition{
			Name: name,
			Params: []Param{
				{Name: "text", Type: TypeString, Required: true},
			},
		},
		fn: func(_ context.Context, params map[string]any) (string, error) {
			return params["text"].(string), nil
		},
	}
}

func newExecutor(t *testing.T, tools ...Tool) *Executor {
	t.Helper()
	reg := NewRegistry()
	for _, tl := range tools {
		reg.Register(tl)
	}
	return NewExecutor(reg, nil, zerolog.Nop())
}

func TestExecuteAllRunsConcurrently(t *testing.T) {
	slow := &fakeTool{
		def: Definition{Name: "slow"},
		fn: func(ctx context.Context, _ map[string]any) (string, error) {
			select {
			case <-time.After(100 * time.Millisecond):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	e := newExecutor(t, slow)

	calls := make([]Call, 4)
	for i := range calls {
		calls[i] = Call{ID: "c", Name: "slow", Params: json.RawMessage(`{}`)}
	}

	start := time.Now()
	results := e.ExecuteAll(context.Background(), calls)
	elapsed := time.Since(start)

	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Success)
	}
	// Four sequential runs would take 400ms+.
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestExecuteUnknownToolFailsSoftly(t *testing.T) {
	e := newExecutor(t)

	results := e.ExecuteAll(context.Background(), []Call{
		{ID: "1", Name: "does_not_exist", Params: json.RawMessage(`{}`)},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unknown tool")
}

func TestExecuteValidatesRequiredParams(t *testing.T) {
	echo := echoTool("echo")
	e := newExecutor(t, echo)

	results := e.ExecuteAll(context.Background(), []Call{
		{ID: "1", Name: "echo", Params: json.RawMessage(`{}`)},
		{ID: "2", Name: "echo", Params: json.RawMessage(`{"text": 42}`)},
		{ID: "3", Name: "echo", Params: json.RawMessage(`{"text": "hi"}`)},
	})

	require.Len(t, results, 3)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "missing required param")
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "expected string")
	assert.True(t, results[2].Success)
	assert.Equal(t, "hi", results[2].Data)

	// Only the valid call reached the tool.
	assert.Equal(t, int32(1), echo.calls.Load())
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	boom := &fakeTool{
		def: Definition{Name: "boom"},
		fn: func(_ context.Context, _ map[string]any) (string, error) {
			panic("kaboom")
		},
	}
	e := newExecutor(t, boom)

	results := e.ExecuteAll(context.Background(), []Call{
		{ID: "1", Name: "boom", Params: json.RawMessage(`{}`)},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "panicked")
}

func TestExecuteMalformedArgumentsJSON(t *testing.T) {
	e := newExecutor(t, echoTool("echo"))

	results := e.ExecuteAll(context.Background(), []Call{
		{ID: "1", Name: "echo", Params: json.RawMessage(`{not json`)},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool("dup"))
	assert.Panics(t, func() { reg.Register(echoTool("dup")) })
}

func TestCatalogIsSortedAndComplete(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool("zeta"))
	reg.Register(echoTool("alpha"))

	catalog := reg.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "alpha", catalog[0].Function.Name)
	assert.Equal(t, "zeta", catalog[1].Function.Name)
	assert.Equal(t, "function", catalog[0].Type)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(catalog[0].Function.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestParseCallsAndResultMessages(t *testing.T) {
	resp := &llm.ChatResponse{
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "echo", Arguments: `{"text":"a"}`}},
		},
	}

	calls := ParseCalls(resp)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "echo", calls[0].Name)

	msgs := ResultMessages([]Result{
		Ok(calls[0], `{"out":"a"}`),
		Errf(Call{ID: "call_2", Name: "echo"}, "boom"),
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleTool, msgs[0].Role)
	assert.Equal(t, "call_1", msgs[0].ToolCallID)
	assert.Contains(t, msgs[1].Content, "boom")
}

// Package tool defines the research tools the planning loop can call and
// the registry + executor that dispatch them. Every tool declares its
// parameters up front; params are validated against that declaration before
// the tool runs, so a malformed model call never reaches tool code.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ella-systems/ella-agent/internal/llm"
)

// Param types accepted in a tool declaration.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Param declares one tool parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Definition is a tool's declared interface.
type Definition struct {
	Name        string
	Description string
	Params      []Param
}

// Tool is the interface all research tools implement. Execute receives
// params already validated against the Definition.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Call is a single tool invocation requested by the model.
type Call struct {
	ID     string
	Name   string
	Params json.RawMessage
}

// Result is the outcome of one tool call. Exactly one of Data or Error is
// meaningful, selected by Success.
type Result struct {
	ID      string
	Name    string
	Success bool
	Data    string
	Error   string
}

// Ok builds a successful result.
func Ok(call Call, data string) Result {
	return Result{ID: call.ID, Name: call.Name, Success: true, Data: data}
}

// Errf builds a failed result.
func Errf(call Call, format string, args ...any) Result {
	return Result{ID: call.ID, Name: call.Name, Success: false, Error: fmt.Sprintf(format, args...)}
}

// Registry holds all registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate name; registration happens
// once at startup and a duplicate is a programming error.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Definition().Name
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool already registered: %s", name))
	}
	r.tools[name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Catalog returns every tool as an llm.ToolDefinition, sorted by name so
// the model sees a stable catalog.
func (r *Registry) Catalog() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, toLLMDefinition(t.Definition()))
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

func toLLMDefinition(d Definition) llm.ToolDefinition {
	props := make(map[string]any, len(d.Params))
	var required []string
	for _, p := range d.Params {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tool schema marshal: %v", err))
	}
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  raw,
		},
	}
}

// validateParams decodes raw JSON arguments and checks them against the
// declaration: required params present, declared types respected. Unknown
// params are passed through untouched.
func validateParams(d Definition, raw json.RawMessage) (map[string]any, error) {
	params := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments json: %w", err)
		}
	}

	for _, p := range d.Params {
		val, present := params[p.Name]
		if !present || val == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required param %q", p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, val) {
			return nil, fmt.Errorf("param %q: expected %s", p.Name, p.Type)
		}
	}
	return params, nil
}

func typeMatches(declared string, val any) bool {
	switch declared {
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeNumber:
		_, ok := val.(float64)
		return ok
	case TypeBoolean:
		_, ok := val.(bool)
		return ok
	case TypeArray:
		_, ok := val.([]any)
		return ok
	case TypeObject:
		_, ok := val.(map[string]any)
		return ok
	}
	return false
}

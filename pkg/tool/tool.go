// Package tool holds the explicit registry of tools the model may call.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"llm-knowledge-be/pkg/llm"
)

type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON schema of the arguments object.
	Schema() json.RawMessage
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Parameters      json.RawMessage
	Fn              func(ctx context.Context, args map[string]any) (any, error)
}

func (f Func) Name() string            { return f.ToolName }
func (f Func) Description() string     { return f.ToolDescription }
func (f Func) Schema() json.RawMessage { return f.Parameters }

func (f Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t.Name() == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

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

// Definitions returns the model facing definitions for the named tools,
// skipping names that are not registered.
func (r *Registry) Definitions(names []string) []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.Tool, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		schema := t.Schema()
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schema,
			},
		})
	}
	return defs
}

// Execute runs the named tool. A panic inside the tool is returned as an
// error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result any, err error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()
	return t.Execute(ctx, args)
}

// Package engine drives the agent: a registry-bound tool-calling loop over
// the Claude API, fed by the memory coordinator and guarded by the response
// validator.
package engine

import (
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/vitalplane/agentmem/core"
)

// ToolRegistry resolves tools by name. It is populated once at startup;
// the loop never binds tools dynamically per call.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]core.Tool
	names []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]core.Tool)}
}

// Register adds a tool. Duplicate names are an error.
func (r *ToolRegistry) Register(tool core.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("register tool: %w: empty name", core.ErrInvalidInput)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool: duplicate name %q", name)
	}
	r.tools[name] = tool
	r.names = append(r.names, name)
	return nil
}

// RegisterAll registers tools, stopping at the first error.
func (r *ToolRegistry) RegisterAll(tools ...core.Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the tool with the given name.
func (r *ToolRegistry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ToAPITools converts the registry to Claude tool parameters.
func (r *ToolRegistry) ToAPITools() []anthropic.ToolUnionParam {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]anthropic.ToolUnionParam, 0, len(r.names))
	for _, name := range r.names {
		tool := r.tools[name]
		schema := tool.InputSchema()

		param := anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(tool.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schemaProperties(schema),
				Required:   schemaRequired(schema),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func schemaProperties(schema map[string]any) any {
	if schema == nil {
		return map[string]any{}
	}
	if props, ok := schema["properties"]; ok {
		return props
	}
	return map[string]any{}
}

func schemaRequired(schema map[string]any) []string {
	if schema == nil {
		return nil
	}
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

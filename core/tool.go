package core

import "context"

// Tool is a callable capability the agent can invoke. Tools are resolved from
// a registry by name once at startup, never by dynamic lookup per call.
//
// With respect to this subsystem tools are pure reads: they query health data
// and never mutate memory state.
type Tool interface {
	// Name is the unique tool identifier presented to the LLM.
	Name() string

	// Description tells the LLM when to use the tool. Tool selection guidance
	// lives entirely in prompt and description text.
	Description() string

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema() map[string]any

	// Execute runs the tool and returns its result as a string.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolDefinition declares a tool's name, description, and argument schema
// separately from its behavior, so tool catalogs can be described as data.
type ToolDefinition struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
}

// ToolFunc is the behavior bound to a ToolDefinition.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// funcTool pairs a definition with a function.
type funcTool struct {
	def ToolDefinition
	fn  ToolFunc
}

// NewFuncTool creates a Tool from a definition and a function.
func NewFuncTool(def ToolDefinition, fn ToolFunc) Tool {
	return &funcTool{def: def, fn: fn}
}

func (t *funcTool) Name() string               { return t.def.ToolName }
func (t *funcTool) Description() string        { return t.def.ToolDescription }
func (t *funcTool) InputSchema() map[string]any { return t.def.Schema }

func (t *funcTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

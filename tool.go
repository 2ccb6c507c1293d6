package mesh

import (
	"context"
	"encoding/json"
)

// Stage declares when a tool runs.
type Stage string

const (
	// StagePreProcess tools are callable by the model through tool calls
	// during the reason/act loop.
	StagePreProcess Stage = "pre_process"
	// StagePostProcess tools run automatically, in registration order, once
	// after the agent produces its final answer. They read the agent through
	// the AgentView carried in the context, not model-provided arguments.
	StagePostProcess Stage = "post_process"
)

// Tool is one agent capability.
type Tool interface {
	Definition() ToolDefinition
	Stage() Stage
	// Execute runs the tool. It must not panic; failures are reported as
	// ToolResult{Status: "error"}.
	Execute(ctx context.Context, args json.RawMessage) ToolResult
}

// Registry resolves tool names to instances. Populate it at startup from
// configuration; it is read-only afterwards.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its definition name. Registering the same name
// twice replaces the earlier tool.
func (r *Registry) Register(t Tool) {
	name := t.Definition().Name
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Resolve maps configured tool names to instances, preserving order.
// An unknown name fails with *ErrConfig.
func (r *Registry) Resolve(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, &ErrConfig{Kind: "tool", Name: name}
		}
		out = append(out, t)
	}
	return out, nil
}

// AgentView is the read-only view of an agent handed to post-process tools.
// Passing a capability instead of the agent itself keeps tools free of a
// back-pointer into the team structures.
type AgentView interface {
	Name() string
	Subtask() string
	FinalAnswer() string
	Actions() []AgentAction
}

type agentViewKey struct{}

// WithAgentView returns a context carrying the view for post-process tools.
func WithAgentView(ctx context.Context, v AgentView) context.Context {
	return context.WithValue(ctx, agentViewKey{}, v)
}

// AgentViewFromContext extracts the view stored by WithAgentView.
func AgentViewFromContext(ctx context.Context) (AgentView, bool) {
	v, ok := ctx.Value(agentViewKey{}).(AgentView)
	return v, ok
}

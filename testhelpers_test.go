package mesh

import (
	"context"
	"encoding/json"
	"sync"
)

// scriptedModel plays back canned streams and decision responses.
type scriptedModel struct {
	mu sync.Mutex

	// streams are played in order, one per CallStream.
	streams [][]Chunk
	// decisions are played in order, one per Call.
	decisions []ModelResponse
	// errs short-circuit Call when set for the matching index.
	decisionErrs []error

	streamCalls   int
	callCalls     int
	streamReqs    []ModelRequest
	decisionReqs  []ModelRequest
	streamRetErrs []error
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Call(_ context.Context, req ModelRequest) (ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.callCalls
	m.callCalls++
	m.decisionReqs = append(m.decisionReqs, req)
	if i < len(m.decisionErrs) && m.decisionErrs[i] != nil {
		return ModelResponse{}, m.decisionErrs[i]
	}
	if i < len(m.decisions) {
		return m.decisions[i], nil
	}
	return ModelResponse{Content: `{"id": -1}`}, nil
}

func (m *scriptedModel) CallStream(_ context.Context, req ModelRequest, ch chan<- Chunk) error {
	m.mu.Lock()
	i := m.streamCalls
	m.streamCalls++
	m.streamReqs = append(m.streamReqs, req)
	var chunks []Chunk
	if i < len(m.streams) {
		chunks = m.streams[i]
	}
	var retErr error
	if i < len(m.streamRetErrs) {
		retErr = m.streamRetErrs[i]
	}
	m.mu.Unlock()

	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return retErr
}

// finalStream is a stream ending in a plain text answer.
func finalStream(parts ...string) []Chunk {
	var chunks []Chunk
	for _, p := range parts {
		chunks = append(chunks, Chunk{Type: ChunkDelta, Delta: p})
	}
	return append(chunks, Chunk{Type: ChunkFinish, FinishReason: "stop"})
}

// toolStream is a stream requesting one tool call with args streamed in
// fragments.
func toolStream(id, name string, fragments ...string) []Chunk {
	chunks := []Chunk{{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 0, ID: id, Name: name}}}
	for _, f := range fragments {
		chunks = append(chunks, Chunk{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 0, ArgumentsFragment: f}})
	}
	return append(chunks, Chunk{Type: ChunkFinish, FinishReason: "tool_calls"})
}

// captureEmitter records emitted events in order.
type captureEmitter struct {
	mu     sync.Mutex
	types  []EventType
	events []any
}

func (c *captureEmitter) fn() EmitFunc {
	return func(t EventType, data any) {
		c.mu.Lock()
		c.types = append(c.types, t)
		c.events = append(c.events, data)
		c.mu.Unlock()
	}
}

func (c *captureEmitter) count(t EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, typ := range c.types {
		if typ == t {
			n++
		}
	}
	return n
}

func (c *captureEmitter) last(t EventType) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.types) - 1; i >= 0; i-- {
		if c.types[i] == t {
			return c.events[i], true
		}
	}
	return nil, false
}

// echoTool replies with its own arguments.
type echoTool struct {
	mu    sync.Mutex
	calls []json.RawMessage
}

func (t *echoTool) Definition() ToolDefinition {
	return ToolDefinition{Name: "echo", Description: "echoes arguments"}
}

func (t *echoTool) Stage() Stage { return StagePreProcess }

func (t *echoTool) Execute(_ context.Context, args json.RawMessage) ToolResult {
	t.mu.Lock()
	t.calls = append(t.calls, args)
	t.mu.Unlock()
	return SuccessResult(string(args))
}

// failTool always reports an error result.
type failTool struct{}

func (failTool) Definition() ToolDefinition {
	return ToolDefinition{Name: "fail", Description: "always fails"}
}

func (failTool) Stage() Stage { return StagePreProcess }

func (failTool) Execute(context.Context, json.RawMessage) ToolResult {
	return ErrorResult("it broke")
}

// postRecorder captures the agent view it is handed after the final answer.
type postRecorder struct {
	mu      sync.Mutex
	views   []AgentView
	answers []string
}

func (t *postRecorder) Definition() ToolDefinition {
	return ToolDefinition{Name: "recorder", Description: "records final answers"}
}

func (t *postRecorder) Stage() Stage { return StagePostProcess }

func (t *postRecorder) Execute(ctx context.Context, _ json.RawMessage) ToolResult {
	view, ok := AgentViewFromContext(ctx)
	if !ok {
		return ErrorResult("no agent view")
	}
	t.mu.Lock()
	t.views = append(t.views, view)
	t.answers = append(t.answers, view.FinalAnswer())
	t.mu.Unlock()
	return SuccessResult("recorded")
}

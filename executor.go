package mesh

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// EmitFunc receives executor and orchestrator events. The task worker wraps
// one around the Bus to stamp task ids and translate to client frames.
type EmitFunc func(EventType, any)

// Executor runs one agent's reason/act loop: stream the model response,
// accumulate tool calls across deltas, execute tools, feed results back,
// bound steps, and trim context to the model window.
type Executor struct {
	agent  *Agent
	team   *TeamContext // optional; enforces the team step budget
	emit   EmitFunc
	logger *slog.Logger
	tracer Tracer

	lastUsage Usage
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTeam binds the executor to a team context for step accounting.
func WithTeam(t *TeamContext) ExecutorOption {
	return func(e *Executor) { e.team = t }
}

// WithEmitter sets the event emitter.
func WithEmitter(fn EmitFunc) ExecutorOption {
	return func(e *Executor) { e.emit = fn }
}

// WithExecutorLogger sets a structured logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithExecutorTracer sets a tracer for turn spans.
func WithExecutorTracer(t Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an executor for agent.
func NewExecutor(agent *Agent, opts ...ExecutorOption) *Executor {
	e := &Executor{
		agent:  agent,
		emit:   func(EventType, any) {},
		logger: nopLogger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// partialToolCall accumulates one streamed tool call. Models stream tool
// calls incrementally: each delta carries an index, and arguments arrive as
// string fragments that concatenate into the final JSON.
type partialToolCall struct {
	ID   string
	Name string
	Args strings.Builder
}

// Run executes the loop for userMessage and returns the agent's final
// answer. With clearHistory the agent starts from a clean conversation,
// making the run independent of prior state.
func (e *Executor) Run(ctx context.Context, userMessage string, clearHistory bool) (string, error) {
	a := e.agent
	if clearHistory {
		a.ClearHistory()
	}
	if a.SystemPrompt != "" && len(a.messages) == 0 {
		a.messages = append(a.messages, SystemMessage(a.SystemPrompt))
	}
	a.messages = append(a.messages, UserMessage(userMessage))

	for turn := 1; ; turn++ {
		if err := e.beginTurn(ctx, turn); err != nil {
			e.emit(EventError, ErrorData{Message: err.Error()})
			return "", err
		}

		content, toolCalls, err := e.streamTurn(ctx, turn)
		if err != nil {
			var status int
			if pe, ok := err.(*ErrProvider); ok {
				status = pe.Status
			}
			e.emit(EventError, ErrorData{Message: err.Error(), Status: status})
			return "", err
		}

		if len(toolCalls) == 0 {
			a.messages = append(a.messages, AssistantMessage(content))
			a.finalAnswer = content
			a.capture(AgentAction{Type: ActionMessage, Thought: content})
			e.emit(EventAgentResult, AgentResultData{AgentID: a.ID, Result: content})
			e.runPostProcess(ctx)
			return content, nil
		}

		a.messages = append(a.messages, ChatMessage{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		})
		if content != "" {
			a.capture(AgentAction{Type: ActionThought, Thought: content})
		}

		// Execute in call-index order; each call gets its own tool message.
		for _, tc := range toolCalls {
			result := e.runToolCall(ctx, tc, content)
			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(`{"status":"error","error_message":"result not serializable"}`)
			}
			a.messages = append(a.messages, ToolResultMessage(tc.ID, string(payload)))
		}
	}
}

// beginTurn enforces both step budgets, charges the team counter, and
// emits turn_start.
func (e *Executor) beginTurn(ctx context.Context, turn int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a := e.agent
	if a.MaxSteps > 0 && turn > a.MaxSteps {
		return &ErrStepLimit{Scope: "agent", Limit: a.MaxSteps}
	}
	if e.team != nil {
		if e.team.CurrentSteps >= e.team.MaxSteps {
			return &ErrStepLimit{Scope: "team", Limit: e.team.MaxSteps}
		}
		e.team.CurrentSteps++
	}
	e.emit(EventTurnStart, TurnStartData{Turn: turn, AgentID: a.ID, AgentName: a.Name})
	return nil
}

// streamTurn issues one model call and folds the chunk stream into the
// assistant content and the accumulated tool calls.
func (e *Executor) streamTurn(ctx context.Context, turn int) (string, []ToolCall, error) {
	a := e.agent

	a.messages = trimMessages(a.messages, a.ModelName, e.lastUsage, e.logger)

	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "agent.turn",
			StringAttr("agent.name", a.Name),
			StringAttr("llm.model", a.ModelName),
			IntAttr("agent.turn", turn))
		defer span.End()
	}

	req := ModelRequest{
		Model:    a.ModelName,
		Messages: append([]ChatMessage(nil), a.messages...),
		Tools:    preProcessDefinitions(a.Tools),
	}

	ch := make(chan Chunk, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Model.CallStream(ctx, req, ch)
	}()

	var content strings.Builder
	var partials []*partialToolCall
	var streamErr error
	for chunk := range ch {
		switch chunk.Type {
		case ChunkDelta:
			content.WriteString(chunk.Delta)
			e.emit(EventMessageUpdate, MessageUpdateData{AgentID: a.ID, Delta: chunk.Delta})

		case ChunkToolCall:
			idx := chunk.Tool.Index
			for len(partials) <= idx {
				partials = append(partials, &partialToolCall{})
			}
			p := partials[idx]
			if chunk.Tool.ID != "" {
				p.ID = chunk.Tool.ID
			}
			if chunk.Tool.Name != "" {
				p.Name = chunk.Tool.Name
			}
			p.Args.WriteString(chunk.Tool.ArgumentsFragment)

		case ChunkFinish:
			if chunk.Usage != nil {
				e.lastUsage = *chunk.Usage
			}

		case ChunkError:
			if streamErr == nil {
				streamErr = &ErrProvider{Provider: a.Model.Name(), Status: chunk.Status, Message: chunk.Message}
			}
		}
	}
	if err := <-errCh; err != nil && streamErr == nil {
		streamErr = err
	}
	if streamErr != nil {
		if span != nil {
			span.Error(streamErr)
		}
		return "", nil, streamErr
	}

	toolCalls := make([]ToolCall, 0, len(partials))
	for _, p := range partials {
		if p.Name == "" && p.ID == "" && p.Args.Len() == 0 {
			continue
		}
		id := p.ID
		if id == "" {
			id = NewID()
		}
		toolCalls = append(toolCalls, ToolCall{ID: id, Name: p.Name, Arguments: p.Args.String()})
	}
	if span != nil {
		span.SetAttr(IntAttr("llm.tool_calls", len(toolCalls)))
	}
	return content.String(), toolCalls, nil
}

// runToolCall parses arguments, resolves the tool, and executes it.
// Failures never abort the loop: they come back as error results so the
// agent can react on the next turn.
func (e *Executor) runToolCall(ctx context.Context, tc ToolCall, thought string) ToolResult {
	a := e.agent

	args := json.RawMessage(tc.Arguments)
	if strings.TrimSpace(tc.Arguments) == "" {
		args = json.RawMessage(`{}`)
	}

	var result ToolResult
	var tool Tool
	switch {
	case !json.Valid(args):
		// Malformed model JSON: synthesize the failure, skip the tool.
		e.logger.Warn("executor: malformed tool arguments", "tool", tc.Name, "agent", a.Name)
		result = ErrorResult("invalid tool arguments: not valid JSON")
		args = json.RawMessage(`{}`)
	default:
		switch found := findTool(a.Tools, tc.Name); {
		case found == nil:
			result = ErrorResult("unknown tool: " + tc.Name)
		case found.Stage() != StagePreProcess:
			e.logger.Warn("executor: post-process tool called directly", "tool", tc.Name)
			result = ErrorResult("tool " + tc.Name + " is a post-process tool and cannot be called directly")
		default:
			tool = found
		}
	}

	e.emit(EventToolExecutionStart, ToolExecutionStartData{
		AgentID:    a.ID,
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Arguments:  args,
		Thought:    thought,
	})

	start := time.Now()
	if tool != nil {
		var span Span
		toolCtx := ctx
		if e.tracer != nil {
			toolCtx, span = e.tracer.Start(ctx, "tool.execute", StringAttr("tool.name", tc.Name))
		}
		result = tool.Execute(toolCtx, args)
		if span != nil {
			span.SetAttr(StringAttr("tool.status", result.Status))
			span.End()
		}
	}
	result.ToolName = tc.Name
	result.Input = args
	result.Duration = time.Since(start).Seconds()

	a.capture(AgentAction{Type: ActionToolUse, Thought: thought, Result: &result})

	output := result.Output
	if result.Status == StatusError {
		output = result.ErrorMessage
	}
	e.emit(EventToolExecutionEnd, ToolExecutionEndData{
		AgentID:    a.ID,
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Status:     result.Status,
		Result:     output,
		Duration:   result.Duration,
	})
	return result
}

// runPostProcess runs the agent's post-process tools in registration order
// after the final answer. They read the agent through the context view;
// failures are logged, never fatal.
func (e *Executor) runPostProcess(ctx context.Context) {
	a := e.agent
	viewCtx := WithAgentView(ctx, a.View())
	for _, t := range a.Tools {
		if t.Stage() != StagePostProcess {
			continue
		}
		name := t.Definition().Name
		result := t.Execute(viewCtx, nil)
		result.ToolName = name
		a.capture(AgentAction{Type: ActionToolUse, Result: &result})
		if result.Status == StatusError {
			e.logger.Warn("executor: post-process tool failed", "tool", name, "err", result.ErrorMessage)
		} else {
			e.logger.Debug("executor: post-process tool done", "tool", name)
		}
	}
}

// preProcessDefinitions returns the definitions advertised to the model.
// Post-process tools are never callable through tool calls.
func preProcessDefinitions(tools []Tool) []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range tools {
		if t.Stage() == StagePreProcess {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

func findTool(tools []Tool, name string) Tool {
	for _, t := range tools {
		if t.Definition().Name == name {
			return t
		}
	}
	return nil
}

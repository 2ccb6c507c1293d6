package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRunFinalAnswer(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{finalStream("The answer ", "is 42.")}}
	agent := NewAgent("Solo", model, "gpt-4", WithSystemPrompt("be brief"))
	emitter := &captureEmitter{}

	answer, err := NewExecutor(agent, WithEmitter(emitter.fn())).Run(context.Background(), "what is it?", true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "The answer is 42." {
		t.Errorf("answer = %q", answer)
	}
	if agent.FinalAnswer() != answer {
		t.Errorf("final answer = %q", agent.FinalAnswer())
	}

	msgs := agent.Messages()
	if len(msgs) != 3 || msgs[0].Role != "system" || msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Fatalf("messages = %+v", msgs)
	}

	if emitter.count(EventMessageUpdate) != 2 {
		t.Errorf("message updates = %d, want 2", emitter.count(EventMessageUpdate))
	}
	if data, ok := emitter.last(EventAgentResult); !ok {
		t.Error("no agent_result emitted")
	} else if data.(AgentResultData).Result != answer {
		t.Errorf("agent_result = %+v", data)
	}
}

func TestRunToolThenFinal(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		toolStream("call_1", "echo", `{"que`, `ry":"x"}`),
		finalStream("done"),
	}}
	tool := &echoTool{}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(tool))
	emitter := &captureEmitter{}

	answer, err := NewExecutor(agent, WithEmitter(emitter.fn())).Run(context.Background(), "go", true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "done" {
		t.Errorf("answer = %q", answer)
	}

	// Fragments reassembled before execution.
	if len(tool.calls) != 1 || string(tool.calls[0]) != `{"query":"x"}` {
		t.Fatalf("tool calls = %v", tool.calls)
	}

	// Conversation: user, assistant(tool_calls), tool, assistant.
	msgs := agent.Messages()
	if len(msgs) != 4 {
		t.Fatalf("messages = %d: %+v", len(msgs), msgs)
	}
	if len(msgs[1].ToolCalls) != 1 || msgs[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant tool calls = %+v", msgs[1].ToolCalls)
	}
	if msgs[2].Role != "tool" || msgs[2].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", msgs[2])
	}
	var result ToolResult
	if err := json.Unmarshal([]byte(msgs[2].Content), &result); err != nil {
		t.Fatalf("tool message content: %v", err)
	}
	if result.Status != StatusSuccess || result.ToolName != "echo" {
		t.Errorf("tool result = %+v", result)
	}

	// The second request must carry the tool exchange.
	second := model.streamReqs[1]
	if len(second.Messages) != 3 {
		t.Errorf("second request messages = %d, want 3", len(second.Messages))
	}
	if len(second.Tools) != 1 || second.Tools[0].Name != "echo" {
		t.Errorf("second request tools = %+v", second.Tools)
	}

	if emitter.count(EventToolExecutionStart) != 1 || emitter.count(EventToolExecutionEnd) != 1 {
		t.Error("tool execution events missing")
	}
}

func TestRunMalformedToolArguments(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		toolStream("call_1", "echo", `{"broken":`),
		finalStream("recovered"),
	}}
	tool := &echoTool{}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(tool))

	answer, err := NewExecutor(agent).Run(context.Background(), "go", true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q", answer)
	}
	if len(tool.calls) != 0 {
		t.Errorf("tool invoked with malformed arguments: %v", tool.calls)
	}

	var result ToolResult
	msgs := agent.Messages()
	if err := json.Unmarshal([]byte(msgs[2].Content), &result); err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusError || !strings.Contains(result.ErrorMessage, "not valid JSON") {
		t.Errorf("result = %+v", result)
	}
}

func TestRunEmptyToolArguments(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		toolStream("call_1", "echo"),
		finalStream("ok"),
	}}
	tool := &echoTool{}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(tool))

	if _, err := NewExecutor(agent).Run(context.Background(), "go", true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tool.calls) != 1 || string(tool.calls[0]) != "{}" {
		t.Errorf("tool calls = %v, want single {}", tool.calls)
	}
}

func TestRunUnknownTool(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		toolStream("call_1", "missing", `{}`),
		finalStream("ok"),
	}}
	agent := NewAgent("Solo", model, "gpt-4")

	if _, err := NewExecutor(agent).Run(context.Background(), "go", true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var result ToolResult
	json.Unmarshal([]byte(agent.Messages()[2].Content), &result)
	if result.Status != StatusError || !strings.Contains(result.ErrorMessage, "unknown tool") {
		t.Errorf("result = %+v", result)
	}
}

func TestRunPostProcessToolNotCallable(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		toolStream("call_1", "recorder", `{}`),
		finalStream("ok"),
	}}
	rec := &postRecorder{}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(rec))

	if _, err := NewExecutor(agent).Run(context.Background(), "go", true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var result ToolResult
	json.Unmarshal([]byte(agent.Messages()[2].Content), &result)
	if result.Status != StatusError || !strings.Contains(result.ErrorMessage, "post-process") {
		t.Errorf("result = %+v", result)
	}
	// Direct call rejected, but it still runs after the final answer.
	if len(rec.answers) != 1 || rec.answers[0] != "ok" {
		t.Errorf("post-process answers = %v", rec.answers)
	}
}

func TestRunPostProcessAfterFinalAnswer(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{finalStream("final text")}}
	rec := &postRecorder{}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(rec))

	if _, err := NewExecutor(agent).Run(context.Background(), "go", true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.views) != 1 {
		t.Fatalf("post-process ran %d times, want 1", len(rec.views))
	}
	if rec.views[0].Name() != "Solo" || rec.answers[0] != "final text" {
		t.Errorf("view = %s / %s", rec.views[0].Name(), rec.answers[0])
	}
}

func TestRunToolErrorDoesNotAbort(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		toolStream("call_1", "fail", `{}`),
		finalStream("handled"),
	}}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(failTool{}))

	answer, err := NewExecutor(agent).Run(context.Background(), "go", true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "handled" {
		t.Errorf("answer = %q", answer)
	}
}

func TestRunAgentStepLimit(t *testing.T) {
	// Every turn requests another tool call; the agent never finishes.
	streams := make([][]Chunk, 5)
	for i := range streams {
		streams[i] = toolStream("c", "echo", `{}`)
	}
	model := &scriptedModel{streams: streams}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(&echoTool{}), WithMaxSteps(3))
	emitter := &captureEmitter{}

	_, err := NewExecutor(agent, WithEmitter(emitter.fn())).Run(context.Background(), "go", true)
	var serr *ErrStepLimit
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *ErrStepLimit", err)
	}
	if serr.Scope != "agent" || serr.Limit != 3 {
		t.Errorf("step limit = %+v", serr)
	}
	if emitter.count(EventTurnStart) != 3 {
		t.Errorf("turn starts = %d, want 3", emitter.count(EventTurnStart))
	}
	if emitter.count(EventError) != 1 {
		t.Errorf("error events = %d, want 1", emitter.count(EventError))
	}
}

func TestRunTeamStepLimit(t *testing.T) {
	streams := make([][]Chunk, 5)
	for i := range streams {
		streams[i] = toolStream("c", "echo", `{}`)
	}
	model := &scriptedModel{streams: streams}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(&echoTool{}))
	team := &TeamContext{Name: "t", MaxSteps: 2}
	emitter := &captureEmitter{}

	_, err := NewExecutor(agent, WithTeam(team), WithEmitter(emitter.fn())).Run(context.Background(), "go", true)
	var serr *ErrStepLimit
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *ErrStepLimit", err)
	}
	if serr.Scope != "team" || serr.Limit != 2 {
		t.Errorf("step limit = %+v", serr)
	}
	// Two turns charged, the third refused.
	if team.CurrentSteps != 2 {
		t.Errorf("team steps = %d, want 2", team.CurrentSteps)
	}
	if emitter.count(EventTurnStart) != 2 {
		t.Errorf("turn starts = %d, want 2", emitter.count(EventTurnStart))
	}
}

func TestRunStreamErrorChunk(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{{
		{Type: ChunkDelta, Delta: "partial"},
		{Type: ChunkError, Status: 429, Message: "rate limited"},
	}}}
	agent := NewAgent("Solo", model, "gpt-4")
	emitter := &captureEmitter{}

	_, err := NewExecutor(agent, WithEmitter(emitter.fn())).Run(context.Background(), "go", true)
	var perr *ErrProvider
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ErrProvider", err)
	}
	if perr.Status != 429 {
		t.Errorf("status = %d", perr.Status)
	}
	data, ok := emitter.last(EventError)
	if !ok || data.(ErrorData).Status != 429 {
		t.Errorf("error event = %+v", data)
	}
}

func TestRunStreamTransportError(t *testing.T) {
	model := &scriptedModel{
		streams:       [][]Chunk{nil},
		streamRetErrs: []error{&ErrTransport{Provider: "scripted", Err: errors.New("refused")}},
	}
	agent := NewAgent("Solo", model, "gpt-4")

	_, err := NewExecutor(agent).Run(context.Background(), "go", true)
	var terr *ErrTransport
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *ErrTransport", err)
	}
}

func TestRunMultipleToolCallsInOrder(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		{
			{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 0, ID: "a", Name: "echo"}},
			{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 1, ID: "b", Name: "echo"}},
			{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 0, ArgumentsFragment: `{"n":1}`}},
			{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 1, ArgumentsFragment: `{"n":2}`}},
			{Type: ChunkFinish, FinishReason: "tool_calls"},
		},
		finalStream("ok"),
	}}
	tool := &echoTool{}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(tool))

	if _, err := NewExecutor(agent).Run(context.Background(), "go", true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tool.calls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(tool.calls))
	}
	if string(tool.calls[0]) != `{"n":1}` || string(tool.calls[1]) != `{"n":2}` {
		t.Errorf("call order = %v", tool.calls)
	}
	// One tool message per call, matched by id.
	msgs := agent.Messages()
	if msgs[2].ToolCallID != "a" || msgs[3].ToolCallID != "b" {
		t.Errorf("tool message ids = %s, %s", msgs[2].ToolCallID, msgs[3].ToolCallID)
	}
}

func TestRunSynthesizesMissingToolCallID(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{
		{
			{Type: ChunkToolCall, Tool: ToolCallDelta{Index: 0, Name: "echo", ArgumentsFragment: `{}`}},
			{Type: ChunkFinish, FinishReason: "tool_calls"},
		},
		finalStream("ok"),
	}}
	agent := NewAgent("Solo", model, "gpt-4", WithTools(&echoTool{}))

	if _, err := NewExecutor(agent).Run(context.Background(), "go", true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if id := agent.Messages()[1].ToolCalls[0].ID; id == "" {
		t.Error("tool call id not synthesized")
	}
}

func TestRunClearHistory(t *testing.T) {
	model := &scriptedModel{streams: [][]Chunk{finalStream("one"), finalStream("two")}}
	agent := NewAgent("Solo", model, "gpt-4", WithSystemPrompt("sys"))
	exec := NewExecutor(agent)

	if _, err := exec.Run(context.Background(), "first", true); err != nil {
		t.Fatal(err)
	}
	if _, err := exec.Run(context.Background(), "second", true); err != nil {
		t.Fatal(err)
	}

	msgs := agent.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages after clear-history rerun = %d, want 3", len(msgs))
	}
	if msgs[1].Content != "second" {
		t.Errorf("user message = %q", msgs[1].Content)
	}
	if len(agent.Actions()) != 1 {
		t.Errorf("actions = %d, want 1", len(agent.Actions()))
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{streams: [][]Chunk{finalStream("never")}}
	agent := NewAgent("Solo", model, "gpt-4")

	if _, err := NewExecutor(agent).Run(ctx, "go", true); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

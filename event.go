package mesh

import (
	"encoding/json"
	"time"
)

// EventType identifies an execution event.
type EventType string

const (
	// Executor-level events.
	EventTurnStart          EventType = "turn_start"
	EventMessageUpdate      EventType = "message_update"
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionEnd   EventType = "tool_execution_end"

	// Orchestrator / worker events delivered to clients.
	EventTaskSubmit    EventType = "user_task_submit"
	EventAgentDecision EventType = "agent_decision"
	EventAgentThinking EventType = "agent_thinking"
	EventToolDecision  EventType = "tool_decision"
	EventToolExecute   EventType = "tool_execute"
	EventAgentResult   EventType = "agent_result"
	EventTaskResult    EventType = "task_result"
	EventError         EventType = "error"
)

// Event is one execution event routed through the Bus. Data holds one of
// the payload structs below. Events are owned by their producer until
// published, then read-only to subscribers.
type Event struct {
	Type      EventType `json:"event"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, taskID string, data any) Event {
	return Event{Type: t, TaskID: taskID, Timestamp: time.Now(), Data: data}
}

// --- Executor payloads ---

type TurnStartData struct {
	Turn      int    `json:"turn"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

type MessageUpdateData struct {
	AgentID string `json:"agent_id"`
	Delta   string `json:"delta"`
}

type ToolExecutionStartData struct {
	AgentID    string          `json:"agent_id"`
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Thought    string          `json:"thought,omitempty"`
}

type ToolExecutionEndData struct {
	AgentID    string  `json:"agent_id"`
	ToolCallID string  `json:"tool_call_id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Result     string  `json:"result"`
	Duration   float64 `json:"duration"`
}

// --- Client-facing payloads ---

type TaskSubmitData struct {
	Status string `json:"status"` // "success" or "failed"
	TaskID string `json:"task_id,omitempty"`
	Msg    string `json:"msg"`
}

type AgentDecisionData struct {
	TaskID      string `json:"task_id"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	AgentAvatar string `json:"agent_avatar"`
	SubTask     string `json:"sub_task"`
}

type AgentThinkingData struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Thought string `json:"thought"`
}

type ToolDecisionData struct {
	TaskID     string          `json:"task_id"`
	AgentID    string          `json:"agent_id"`
	ToolID     string          `json:"tool_id"`
	ToolName   string          `json:"tool_name"`
	Thought    string          `json:"thought,omitempty"`
	Parameters json.RawMessage `json:"parameters"`
}

type ToolExecuteData struct {
	TaskID        string  `json:"task_id"`
	AgentID       string  `json:"agent_id"`
	ToolID        string  `json:"tool_id"`
	ToolName      string  `json:"tool_name"`
	Status        string  `json:"status"`
	ExecutionTime float64 `json:"execution_time"`
	ToolResult    string  `json:"tool_result"`
}

type AgentResultData struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Result  string `json:"result"`
}

type TaskResultData struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"` // "success" or "failed"
}

type ErrorData struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

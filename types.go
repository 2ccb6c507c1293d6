package mesh

import "encoding/json"

// --- Task records ---

// TaskStatus is the lifecycle state of a task row.
type TaskStatus string

const (
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
	TaskPaused  TaskStatus = "paused"
)

// Task is one user-submitted task. Created once by the task worker; status
// mutated only by the worker; never deleted by the core. Timestamps are
// Unix seconds, matching the store schema.
type Task struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"task_status"`
	Name       string     `json:"task_name"`
	Content    string     `json:"task_content"`
	SubmitTime int64      `json:"submit_time"`
	CreatedAt  int64      `json:"created_at,omitempty"`
	UpdatedAt  int64      `json:"updated_at,omitempty"`
}

const taskNameLimit = 50

// TaskName derives the display name for a task from its content: the first
// 50 characters, rune-safe.
func TaskName(content string) string {
	runes := []rune(content)
	if len(runes) <= taskNameLimit {
		return content
	}
	return string(runes[:taskNameLimit])
}

// TaskQuery filters and paginates task listings.
type TaskQuery struct {
	Page         int
	PageSize     int
	Status       TaskStatus // empty = any
	NameContains string     // substring match on task_name
}

// --- LLM protocol types ---

// ChatMessage is one message in a model conversation. Content holds plain
// text; Parts holds multi-part content (text + images) and takes precedence
// when non-empty.
type ChatMessage struct {
	Role       string        `json:"role"` // "system", "user", "assistant", "tool"
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// ContentPart is one entry of a multi-part message.
type ContentPart struct {
	Type  string     `json:"type"` // "text" or "image"
	Text  string     `json:"text,omitempty"`
	Image *ImageData `json:"image,omitempty"`
}

// ImageData holds an image either inline (base64) or by URL.
type ImageData struct {
	MimeType string `json:"mime_type,omitempty"`
	Base64   string `json:"base64,omitempty"`
	URL      string `json:"url,omitempty"`
}

// ToolCall is a model-requested tool invocation. Arguments is the raw JSON
// string exactly as produced by the model; during streaming it is
// concatenated from fragments by call index.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one callable tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Tool execution status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ToolResult is the outcome of one tool execution. Failures are carried in
// Status/ErrorMessage, never as panics or Go errors.
type ToolResult struct {
	ToolName     string          `json:"tool_name"`
	Input        json.RawMessage `json:"input_params,omitempty"`
	Output       string          `json:"output,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Duration     float64         `json:"execution_time_s"`
}

// ErrorResult builds a failed ToolResult.
func ErrorResult(msg string) ToolResult {
	return ToolResult{Status: StatusError, ErrorMessage: msg}
}

// SuccessResult builds a successful ToolResult with the given output.
func SuccessResult(output string) ToolResult {
	return ToolResult{Status: StatusSuccess, Output: output}
}

// ActionType classifies a captured agent action.
type ActionType string

const (
	ActionToolUse ActionType = "tool_use"
	ActionThought ActionType = "thought"
	ActionMessage ActionType = "message"
)

// AgentAction records one step of an agent's reasoning, append-only within
// a turn.
type AgentAction struct {
	AgentName string      `json:"agent_name"`
	Type      ActionType  `json:"action_type"`
	Thought   string      `json:"thought,omitempty"`
	Result    *ToolResult `json:"tool_result,omitempty"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}

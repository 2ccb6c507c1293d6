// Package anthropic implements mesh.Model for the Claude Messages API.
// It separates the system prompt from the message list, maps tool calls to
// tool_use / tool_result content blocks, and normalizes the streaming event
// protocol (content_block_start, content_block_delta, message_delta) to
// mesh chunks.
package anthropic

import "encoding/json"

// --- Request types ---

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []toolDef     `json:"tools,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// message content is always a block list; Claude accepts plain strings too
// but a single encoding keeps tool blocks uniform.
type message struct {
	Role    string         `json:"role"` // "user" or "assistant"
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"` // text, image, tool_use, tool_result

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *imageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type toolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// --- Response types ---

type messagesResponse struct {
	ID         string          `json:"id"`
	Content    []responseBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      usage           `json:"usage"`
	Error      *apiError       `json:"error,omitempty"`
}

type responseBlock struct {
	Type  string          `json:"type"` // "text" or "tool_use"
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- Streaming event types ---

type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *responseBlock `json:"content_block,omitempty"`
	Delta        *streamDelta   `json:"delta,omitempty"`
	Message      *streamMessage `json:"message,omitempty"`
	Usage        *usage         `json:"usage,omitempty"`
	Error        *apiError      `json:"error,omitempty"`
}

type streamDelta struct {
	Type        string `json:"type"` // text_delta or input_json_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type streamMessage struct {
	Usage usage `json:"usage"`
}

package mesh

import (
	"context"
	"strings"
)

// ModelRequest is a provider-agnostic chat completion request.
type ModelRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	Temperature *float64
	MaxTokens   int
	JSONFormat  bool
}

// Usage reports provider token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelResponse is the complete result of a non-streaming call.
type ModelResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// ChunkType identifies a streaming chunk kind.
type ChunkType string

const (
	ChunkDelta    ChunkType = "delta_content"
	ChunkToolCall ChunkType = "delta_tool_call"
	ChunkFinish   ChunkType = "finish_reason"
	ChunkError    ChunkType = "error"
)

// ToolCallDelta is an incremental tool-call update. Providers stream tool
// calls piecewise: the index identifies which call is being updated, and
// ArgumentsFragment strings concatenate into the final JSON arguments.
type ToolCallDelta struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// Chunk is one element of a model stream. Exactly one terminal chunk
// (ChunkFinish or ChunkError) ends every stream.
type Chunk struct {
	Type         ChunkType
	Delta        string        // ChunkDelta
	Tool         ToolCallDelta // ChunkToolCall
	FinishReason string        // ChunkFinish
	Usage        *Usage        // ChunkFinish, when the provider reports it
	Status       int           // ChunkError
	Message      string        // ChunkError
}

// Model is the port over heterogeneous LLM providers. Adapters normalize
// wire formats (system message separation, content blocks, token field
// names) to these shapes.
type Model interface {
	// Name identifies the provider for logs and error values.
	Name() string

	// Call sends a blocking chat request. Non-2xx or unparseable responses
	// return *ErrProvider; connection failures return *ErrTransport.
	Call(ctx context.Context, req ModelRequest) (ModelResponse, error)

	// CallStream sends chunks into ch and closes it when the stream ends.
	// Every started stream emits exactly one terminal chunk before the
	// close. Failures before the stream starts return an error (ch is
	// still closed).
	CallStream(ctx context.Context, req ModelRequest, ch chan<- Chunk) error
}

// ContextWindow returns the context window size in tokens for a model name,
// detected by substring. Unknown models get a conservative default.
func ContextWindow(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude-3") || strings.Contains(m, "claude-sonnet"):
		return 200000
	case strings.Contains(m, "gpt-4"):
		switch {
		case strings.Contains(m, "turbo") || strings.Contains(m, "128k"):
			return 128000
		case strings.Contains(m, "32k"):
			return 32000
		default:
			return 8000
		}
	case strings.Contains(m, "gpt-3.5"):
		if strings.Contains(m, "16k") {
			return 16000
		}
		return 4000
	case strings.Contains(m, "deepseek"):
		return 64000
	default:
		return 10000
	}
}

// DefaultMaxTokens returns the output token cap to request when the caller
// does not set one.
func DefaultMaxTokens(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude-3-5") || strings.Contains(m, "claude-3.5") ||
		strings.Contains(m, "claude-3-7") || strings.Contains(m, "claude-3.7"):
		return 8192
	case strings.Contains(m, "claude-3-opus"):
		return 4096
	default:
		return 4096
	}
}

package openaicompat

import (
	mesh "github.com/nevindra/mesh"
)

// parseResponse converts an OpenAI-format response to a mesh.ModelResponse.
// It extracts content, tool calls, and usage from choices[0].
func parseResponse(resp chatResponse) mesh.ModelResponse {
	var out mesh.ModelResponse

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		out.ToolCalls = parseToolCalls(msg.ToolCalls)
	}
	if resp.Usage != nil {
		out.Usage = mesh.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out
}

// parseToolCalls converts OpenAI tool call requests to mesh ToolCalls.
// Arguments stay the raw JSON string; validation is the executor's job.
func parseToolCalls(tcs []toolCallRequest) []mesh.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]mesh.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		out = append(out, mesh.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

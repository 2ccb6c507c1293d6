package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	mesh "github.com/nevindra/mesh"
)

// streamSSE reads an OpenAI SSE stream from body and forwards raw chunks to
// ch: text deltas, per-index tool-call deltas (arguments as fragments, not
// accumulated here), and exactly one terminal chunk. The channel is closed
// on return.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func streamSSE(ctx context.Context, body io.Reader, ch chan<- mesh.Chunk) error {
	defer close(ch)

	send := func(c mesh.Chunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var finish string
	var finalUsage *mesh.Usage

	for scanner.Scan() {
		line := scanner.Text()

		// SSE lines that carry data start with "data: ".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if chunk.Usage != nil {
			finalUsage = &mesh.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			// Usage-only chunk (some providers send this).
			continue
		}

		c := chunk.Choices[0]
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Delta == nil {
			continue
		}

		if c.Delta.Content != "" {
			if !send(mesh.Chunk{Type: mesh.ChunkDelta, Delta: c.Delta.Content}) {
				return ctx.Err()
			}
		}
		for _, tc := range c.Delta.ToolCalls {
			ok := send(mesh.Chunk{Type: mesh.ChunkToolCall, Tool: mesh.ToolCallDelta{
				Index:             tc.Index,
				ID:                tc.ID,
				Name:              tc.Function.Name,
				ArgumentsFragment: tc.Function.Arguments,
			}})
			if !ok {
				return ctx.Err()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		send(mesh.Chunk{Type: mesh.ChunkError, Message: "stream interrupted: " + err.Error()})
		return nil
	}

	if finish == "" {
		finish = "stop"
	}
	send(mesh.Chunk{Type: mesh.ChunkFinish, FinishReason: finish, Usage: finalUsage})
	return nil
}

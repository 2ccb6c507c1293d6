package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	mesh "github.com/nevindra/mesh"
)

// streamSSE normalizes the Claude streaming event protocol to mesh chunks.
// content_block_start(tool_use) opens a tool slot, input_json_delta carries
// argument fragments for it, text_delta carries content, message_delta holds
// the stop reason and output token count. The channel is closed on return.
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
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	// Claude indexes content blocks, not tool calls. Text blocks take
	// indexes too, so tool slots get their own dense numbering.
	toolIndex := map[int]int{}
	nextTool := 0

	finish := ""
	var finalUsage *mesh.Usage

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			send(mesh.Chunk{Type: mesh.ChunkError, Message: msg})
			return nil

		case "message_start":
			if ev.Message != nil {
				finalUsage = &mesh.Usage{PromptTokens: ev.Message.Usage.InputTokens}
			}

		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				idx := nextTool
				nextTool++
				toolIndex[ev.Index] = idx
				ok := send(mesh.Chunk{Type: mesh.ChunkToolCall, Tool: mesh.ToolCallDelta{
					Index: idx,
					ID:    ev.ContentBlock.ID,
					Name:  ev.ContentBlock.Name,
				}})
				if !ok {
					return ctx.Err()
				}
			}

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					if !send(mesh.Chunk{Type: mesh.ChunkDelta, Delta: ev.Delta.Text}) {
						return ctx.Err()
					}
				}
			case "input_json_delta":
				idx, ok := toolIndex[ev.Index]
				if !ok || ev.Delta.PartialJSON == "" {
					continue
				}
				sent := send(mesh.Chunk{Type: mesh.ChunkToolCall, Tool: mesh.ToolCallDelta{
					Index:             idx,
					ArgumentsFragment: ev.Delta.PartialJSON,
				}})
				if !sent {
					return ctx.Err()
				}
			}

		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				finish = normalizeStopReason(ev.Delta.StopReason)
			}
			if ev.Usage != nil {
				if finalUsage == nil {
					finalUsage = &mesh.Usage{}
				}
				finalUsage.CompletionTokens = ev.Usage.OutputTokens
				finalUsage.TotalTokens = finalUsage.PromptTokens + ev.Usage.OutputTokens
			}

		case "message_stop":
			// Terminal chunk is sent after the loop.
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

// normalizeStopReason maps Claude stop reasons onto the OpenAI-style values
// the rest of the runtime expects.
func normalizeStopReason(r string) string {
	switch r {
	case "end_turn", "stop_sequence":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	}
	return r
}

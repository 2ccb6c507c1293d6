package openaicompat

import (
	"encoding/json"
	"fmt"

	mesh "github.com/nevindra/mesh"
)

// buildBody converts a mesh.ModelRequest into an OpenAI-format request.
// System messages stay in the messages array as role:"system".
func buildBody(req mesh.ModelRequest, model string) chatRequest {
	if req.Model != "" {
		model = req.Model
	}

	var msgs []message
	for _, m := range req.Messages {
		switch {
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			var tcs []toolCallRequest
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, toolCallRequest{
					ID:   tc.ID,
					Type: "function",
					Function: functionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			msg := message{Role: "assistant", ToolCalls: tcs}
			// Include text content if present alongside tool calls.
			if m.Content != "" {
				msg.Content = m.Content
			}
			msgs = append(msgs, msg)

		case m.Role == "tool":
			msgs = append(msgs, message{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})

		case len(m.Parts) > 0:
			var blocks []contentBlock
			for _, p := range m.Parts {
				switch p.Type {
				case "text":
					blocks = append(blocks, contentBlock{Type: "text", Text: p.Text})
				case "image":
					if p.Image == nil {
						continue
					}
					url := p.Image.URL
					if url == "" {
						url = fmt.Sprintf("data:%s;base64,%s", p.Image.MimeType, p.Image.Base64)
					}
					blocks = append(blocks, contentBlock{Type: "image_url", ImageURL: &imageURL{URL: url}})
				}
			}
			msgs = append(msgs, message{Role: m.Role, Content: blocks})

		default:
			msgs = append(msgs, message{Role: m.Role, Content: m.Content})
		}
	}

	body := chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		body.Tools = buildToolDefs(req.Tools)
	}
	if req.JSONFormat {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func buildToolDefs(tools []mesh.ToolDefinition) []toolDef {
	out := make([]toolDef, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		out = append(out, toolDef{
			Type: "function",
			Function: functionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

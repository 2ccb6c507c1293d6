package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	mesh "github.com/nevindra/mesh"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

// Provider implements mesh.Model for the Claude Messages API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Provider instance.
type Option func(*Provider)

// WithBaseURL overrides the API base (e.g. a proxy).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a Claude provider for model.
func New(apiKey, model string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns "anthropic".
func (p *Provider) Name() string { return "anthropic" }

// Call sends a non-streaming request to /messages.
func (p *Provider) Call(ctx context.Context, req mesh.ModelRequest) (mesh.ModelResponse, error) {
	resp, err := p.sendHTTP(ctx, p.buildBody(req, false))
	if err != nil {
		return mesh.ModelResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mesh.ModelResponse{}, p.httpErr(resp)
	}

	var parsed messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return mesh.ModelResponse{}, &mesh.ErrProvider{Provider: p.Name(), Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}

	out := mesh.ModelResponse{
		Usage: mesh.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, mesh.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	return out, nil
}

// CallStream streams /messages SSE events as mesh chunks into ch.
func (p *Provider) CallStream(ctx context.Context, req mesh.ModelRequest, ch chan<- mesh.Chunk) error {
	resp, err := p.sendHTTP(ctx, p.buildBody(req, true))
	if err != nil {
		close(ch)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errResp := p.httpErr(resp).(*mesh.ErrProvider)
		select {
		case ch <- mesh.Chunk{Type: mesh.ChunkError, Status: errResp.Status, Message: errResp.Message}:
		case <-ctx.Done():
		}
		close(ch)
		return nil
	}

	return streamSSE(ctx, resp.Body, ch)
}

// buildBody converts a mesh request to the Messages API shape: system
// prompt extracted into its own field, tool calls and tool results mapped
// to content blocks, and the family-default max_tokens applied when the
// caller sets none.
func (p *Provider) buildBody(req mesh.ModelRequest, stream bool) messagesRequest {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	var system []string
	var msgs []message
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)

		case "tool":
			// Tool results ride in a user message.
			msgs = append(msgs, message{Role: "user", Content: []contentBlock{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}}})

		case "assistant":
			var blocks []contentBlock
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) || len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			msgs = append(msgs, message{Role: "assistant", Content: blocks})

		default:
			msgs = append(msgs, message{Role: m.Role, Content: userBlocks(m)})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = mesh.DefaultMaxTokens(model)
	}

	body := messagesRequest{
		Model:       model,
		System:      strings.Join(system, "\n\n"),
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for _, t := range req.Tools {
		schema := t.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		body.Tools = append(body.Tools, toolDef{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	// The Messages API has no response_format; JSONFormat requests rely on
	// the prompt demanding JSON output.
	return body
}

func userBlocks(m mesh.ChatMessage) []contentBlock {
	if len(m.Parts) == 0 {
		return []contentBlock{{Type: "text", Text: m.Content}}
	}
	var blocks []contentBlock
	for _, part := range m.Parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
		case "image":
			if part.Image == nil {
				continue
			}
			src := &imageSource{}
			if part.Image.URL != "" {
				src.Type = "url"
				src.URL = part.Image.URL
			} else {
				src.Type = "base64"
				src.MediaType = part.Image.MimeType
				src.Data = part.Image.Base64
			}
			blocks = append(blocks, contentBlock{Type: "image", Source: src})
		}
	}
	return blocks
}

func (p *Provider) sendHTTP(ctx context.Context, body messagesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &mesh.ErrProvider{Provider: p.Name(), Message: "marshal request: " + err.Error()}
	}

	url := p.baseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &mesh.ErrProvider{Provider: p.Name(), Message: "create request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	p.logger.Debug("anthropic: request", "model", body.Model, "stream", body.Stream)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &mesh.ErrTransport{Provider: p.Name(), Err: err}
	}
	return resp, nil
}

// httpErr extracts the error.message field when the body carries one.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	msg := string(body)
	var parsed struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	return &mesh.ErrProvider{Provider: p.Name(), Status: resp.StatusCode, Message: msg}
}

// Compile-time interface check.
var _ mesh.Model = (*Provider)(nil)

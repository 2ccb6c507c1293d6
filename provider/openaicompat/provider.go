package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	mesh "github.com/nevindra/mesh"
)

// Provider implements mesh.Model for any OpenAI-compatible API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

// Option configures a Provider instance.
type Option func(*Provider)

// WithName sets the provider name returned by Name() (default "openai").
// Use this to distinguish providers in logs and error values.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates an OpenAI-compatible provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.groq.com/openai/v1", "http://localhost:11434/v1").
// The /chat/completions path is appended automatically.
func New(apiKey, model, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Call sends a non-streaming chat request and returns the parsed response.
func (p *Provider) Call(ctx context.Context, req mesh.ModelRequest) (mesh.ModelResponse, error) {
	resp, err := p.sendHTTP(ctx, buildBody(req, p.model))
	if err != nil {
		return mesh.ModelResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mesh.ModelResponse{}, p.httpErr(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return mesh.ModelResponse{}, &mesh.ErrProvider{Provider: p.name, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return parseResponse(parsed), nil
}

// CallStream streams chunks into ch and closes it. Non-2xx responses
// surface as a terminal error chunk; connection failures before the stream
// starts return *mesh.ErrTransport.
func (p *Provider) CallStream(ctx context.Context, req mesh.ModelRequest, ch chan<- mesh.Chunk) error {
	body := buildBody(req, p.model)
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		close(ch)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		select {
		case ch <- mesh.Chunk{Type: mesh.ChunkError, Status: resp.StatusCode, Message: string(errBody)}:
		case <-ctx.Done():
		}
		close(ch)
		return nil
	}

	// streamSSE closes ch when done.
	return streamSSE(ctx, resp.Body, ch)
}

// sendHTTP marshals the body and posts it to the chat completions endpoint.
func (p *Provider) sendHTTP(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &mesh.ErrProvider{Provider: p.name, Message: "marshal request: " + err.Error()}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &mesh.ErrProvider{Provider: p.name, Message: "create request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	p.logger.Debug("openaicompat: request", "url", url, "model", body.Model, "stream", body.Stream)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &mesh.ErrTransport{Provider: p.name, Err: err}
	}
	return resp, nil
}

// httpErr reads the response body into a provider error.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &mesh.ErrProvider{Provider: p.name, Status: resp.StatusCode, Message: string(body)}
}

// Compile-time interface check.
var _ mesh.Model = (*Provider)(nil)

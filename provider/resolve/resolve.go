// Package resolve maps provider names from configuration to concrete
// mesh.Model implementations.
package resolve

import (
	"log/slog"

	mesh "github.com/nevindra/mesh"
	"github.com/nevindra/mesh/provider/anthropic"
	"github.com/nevindra/mesh/provider/openaicompat"
)

// Config identifies a model endpoint.
type Config struct {
	Provider string // anthropic, claude, openai, deepseek, groq, ollama
	APIKey   string
	Model    string
	BaseURL  string // optional override of the provider default
}

// Option configures resolution.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger passed to the constructed provider.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Default API bases for the OpenAI-compatible providers.
const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com"
	groqBaseURL     = "https://api.groq.com/openai/v1"
	ollamaBaseURL   = "http://localhost:11434/v1"
)

// Model constructs a provider from cfg. Unknown provider names return
// *mesh.ErrConfig.
func Model(cfg Config, opts ...Option) (mesh.Model, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	compat := func(name, defaultBase string) mesh.Model {
		base := cfg.BaseURL
		if base == "" {
			base = defaultBase
		}
		return openaicompat.New(cfg.APIKey, cfg.Model, base,
			openaicompat.WithName(name),
			openaicompat.WithLogger(o.logger))
	}

	switch cfg.Provider {
	case "anthropic", "claude":
		aopts := []anthropic.Option{anthropic.WithLogger(o.logger)}
		if cfg.BaseURL != "" {
			aopts = append(aopts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(cfg.APIKey, cfg.Model, aopts...), nil
	case "openai":
		return compat("openai", openAIBaseURL), nil
	case "deepseek":
		return compat("deepseek", deepSeekBaseURL), nil
	case "groq":
		return compat("groq", groqBaseURL), nil
	case "ollama":
		return compat("ollama", ollamaBaseURL), nil
	}
	return nil, &mesh.ErrConfig{Kind: "provider", Name: cfg.Provider}
}

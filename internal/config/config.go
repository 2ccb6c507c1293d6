// Package config loads runtime configuration from TOML with environment
// overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig           `toml:"server"`
	Database DatabaseConfig         `toml:"database"`
	Observer ObserverConfig         `toml:"observer"`
	Models   map[string]ModelConfig `toml:"models"`
	Teams    map[string]TeamConfig  `toml:"teams"`
}

type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	WorkspacePath string `toml:"workspace_path"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Path   string `toml:"path"`   // sqlite file path
	DSN    string `toml:"dsn"`    // postgres connection string
}

type ObserverConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	// Endpoint is the OTLP HTTP collector base URL. Empty defers to the
	// standard OTEL env vars.
	Endpoint string `toml:"endpoint"`
}

// ModelConfig identifies one model endpoint, referenced by name from
// agents and teams.
type ModelConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	APIBase  string `toml:"api_base"`

	// MaxRetries enables retry on transient provider failures when > 0.
	MaxRetries int `toml:"max_retries"`
	// RPM and TPM cap requests and tokens per minute when > 0.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

// TeamConfig declares a team of agents and its coordination model.
type TeamConfig struct {
	Description string        `toml:"description"`
	Rule        string        `toml:"rule"`
	Model       string        `toml:"model"` // key into Models
	MaxSteps    int           `toml:"max_steps"`
	Agents      []AgentConfig `toml:"agents"`
}

type AgentConfig struct {
	Name         string   `toml:"name"`
	Description  string   `toml:"description"`
	SystemPrompt string   `toml:"system_prompt"`
	Avatar       string   `toml:"avatar"`
	Model        string   `toml:"model"` // key into Models, empty = team model
	MaxSteps     int      `toml:"max_steps"`
	Tools        []string `toml:"tools"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			WorkspacePath: filepath.Join(home, "mesh-workspace"),
		},
		Database: DatabaseConfig{Driver: "sqlite", Path: "mesh.db"},
		Observer: ObserverConfig{ServiceName: "mesh"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "mesh.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("MESH_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MESH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("MESH_WORKSPACE_PATH"); v != "" {
		cfg.Server.WorkspacePath = v
	}
	if v := os.Getenv("MESH_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MESH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MESH_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MESH_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Model API keys fall back to the provider's conventional env var.
	for name, m := range cfg.Models {
		if m.APIKey != "" {
			continue
		}
		switch m.Provider {
		case "anthropic", "claude":
			m.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			m.APIKey = os.Getenv("OPENAI_API_KEY")
		case "deepseek":
			m.APIKey = os.Getenv("DEEPSEEK_API_KEY")
		case "groq":
			m.APIKey = os.Getenv("GROQ_API_KEY")
		}
		cfg.Models[name] = m
	}

	return cfg
}

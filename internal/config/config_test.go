package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "mesh.db" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Server.WorkspacePath == "" {
		t.Error("workspace path not set")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.toml")
	body := `
[server]
port = 9090

[database]
driver = "postgres"
dsn = "postgres://localhost/mesh"

[models.claude]
provider = "anthropic"
model = "claude-3-5-sonnet"
api_key = "sk-test"

[teams.general_team]
description = "general problem solving"
model = "claude"
max_steps = 10

[[teams.general_team.agents]]
name = "Researcher"
description = "finds information"
tools = ["bash", "file_read"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Models["claude"].Provider != "anthropic" {
		t.Errorf("models = %+v", cfg.Models)
	}
	team, ok := cfg.Teams["general_team"]
	if !ok {
		t.Fatalf("teams = %+v", cfg.Teams)
	}
	if team.MaxSteps != 10 || len(team.Agents) != 1 || team.Agents[0].Name != "Researcher" {
		t.Errorf("team = %+v", team)
	}
	if len(team.Agents[0].Tools) != 2 {
		t.Errorf("agent tools = %v", team.Agents[0].Tools)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MESH_PORT", "9191")
	t.Setenv("MESH_DB_DRIVER", "postgres")
	t.Setenv("MESH_DB_DSN", "postgres://env/mesh")
	t.Setenv("MESH_OBSERVER_ENABLED", "1")

	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d, want 9191 from env", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://env/mesh" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if !cfg.Observer.Enabled {
		t.Error("observer not enabled from env")
	}
}

func TestLoadBadPortEnvIgnored(t *testing.T) {
	t.Setenv("MESH_PORT", "not-a-port")
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadObserverEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.toml")
	body := `
[observer]
enabled = true
service_name = "mesh-test"
endpoint = "http://collector:4318"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if !cfg.Observer.Enabled || cfg.Observer.Endpoint != "http://collector:4318" {
		t.Errorf("observer = %+v", cfg.Observer)
	}
	if cfg.Observer.ServiceName != "mesh-test" {
		t.Errorf("service name = %q", cfg.Observer.ServiceName)
	}
}

func TestLoadModelKeyEnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.toml")
	body := `
[models.claude]
provider = "anthropic"
model = "claude-3-5-sonnet"

[models.gpt]
provider = "openai"
model = "gpt-4"
api_key = "explicit"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "ignored")

	cfg := Load(path)
	if cfg.Models["claude"].APIKey != "from-env" {
		t.Errorf("claude key = %q, want env fallback", cfg.Models["claude"].APIKey)
	}
	if cfg.Models["gpt"].APIKey != "explicit" {
		t.Errorf("gpt key = %q, explicit key must win", cfg.Models["gpt"].APIKey)
	}
}

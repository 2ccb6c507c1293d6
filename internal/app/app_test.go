package app

import (
	"errors"
	"path/filepath"
	"testing"

	mesh "github.com/nevindra/mesh"
	"github.com/nevindra/mesh/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.WorkspacePath = dir
	cfg.Database.Path = filepath.Join(dir, "mesh.db")
	cfg.Models = map[string]config.ModelConfig{
		"main": {Provider: "openai", Model: "gpt-4", APIKey: "sk-test"},
	}
	cfg.Teams = map[string]config.TeamConfig{
		"general_team": {
			Description: "general problem solving",
			Model:       "main",
			MaxSteps:    5,
			Agents: []config.AgentConfig{
				{Name: "Solver", Description: "solves things", Tools: []string{"bash", "file_read"}},
				{Name: "Reviewer", Description: "reviews answers"},
			},
		},
	}
	return cfg
}

func TestNewRegistersBundledTools(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names := a.registry.Names()
	want := map[string]bool{"bash": false, "file_read": false, "file_write": false, "report": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Errorf("tool %q not registered", n)
		}
	}
}

func TestBuildTeamFreshAgents(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.buildModels(); err != nil {
		t.Fatalf("buildModels: %v", err)
	}

	t1, err := a.BuildTeam("general_team")
	if err != nil {
		t.Fatalf("BuildTeam: %v", err)
	}
	if len(t1.Agents) != 2 || t1.Agents[0].Name != "Solver" {
		t.Fatalf("team = %+v", t1)
	}
	if len(t1.Agents[0].Tools) != 2 {
		t.Errorf("solver tools = %d, want 2", len(t1.Agents[0].Tools))
	}

	t2, err := a.BuildTeam("general_team")
	if err != nil {
		t.Fatalf("BuildTeam again: %v", err)
	}
	if t1.Agents[0] == t2.Agents[0] {
		t.Error("agents shared between team builds")
	}
	if t1.Agents[0].ID == t2.Agents[0].ID {
		t.Error("agent ids reused between team builds")
	}
}

func TestBuildTeamUnknown(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.buildModels(); err != nil {
		t.Fatalf("buildModels: %v", err)
	}

	_, err = a.BuildTeam("nope")
	var cerr *mesh.ErrConfig
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ErrConfig", err)
	}
	if cerr.Kind != "team" {
		t.Errorf("kind = %q", cerr.Kind)
	}
}

func TestBuildTeamUnknownTool(t *testing.T) {
	cfg := testConfig(t)
	team := cfg.Teams["general_team"]
	team.Agents[0].Tools = []string{"no_such_tool"}
	cfg.Teams["general_team"] = team

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.buildModels(); err != nil {
		t.Fatalf("buildModels: %v", err)
	}

	_, err = a.BuildTeam("general_team")
	var cerr *mesh.ErrConfig
	if !errors.As(err, &cerr) || cerr.Kind != "tool" {
		t.Fatalf("err = %v, want tool config error", err)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	_, err := New(cfg)
	var cerr *mesh.ErrConfig
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ErrConfig", err)
	}
}

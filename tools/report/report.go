// Package report provides a post-process tool that writes an agent's final
// answer to a report file in the workspace.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mesh "github.com/nevindra/mesh"
)

// Tool writes a per-run report from the finished agent's view. It runs in
// the post-process stage, after the agent produced its final answer.
type Tool struct {
	workspacePath string
}

// New creates a report tool writing into workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

var _ mesh.Tool = (*Tool)(nil)

func (t *Tool) Definition() mesh.ToolDefinition {
	return mesh.ToolDefinition{
		Name:        "report",
		Description: "Write the agent's final answer and action log to a report file in the workspace.",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}
}

func (t *Tool) Stage() mesh.Stage { return mesh.StagePostProcess }

func (t *Tool) Execute(ctx context.Context, _ json.RawMessage) mesh.ToolResult {
	view, ok := mesh.AgentViewFromContext(ctx)
	if !ok {
		return mesh.ErrorResult("no agent view in context")
	}

	name := fmt.Sprintf("report-%s-%d.md", sanitize(view.Name()), time.Now().Unix())
	path := filepath.Join(t.workspacePath, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# Report: %s\n\n", view.Name())
	if sub := view.Subtask(); sub != "" {
		fmt.Fprintf(&b, "## Subtask\n\n%s\n\n", sub)
	}
	if actions := view.Actions(); len(actions) > 0 {
		b.WriteString("## Actions\n\n")
		for _, a := range actions {
			line := string(a.Type)
			switch {
			case a.Result != nil:
				line += " " + a.Result.ToolName + " (" + a.Result.Status + ")"
			case a.Thought != "":
				line += " " + firstLine(a.Thought)
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "## Final answer\n\n%s\n", view.FinalAnswer())

	if err := os.MkdirAll(t.workspacePath, 0o755); err != nil {
		return mesh.ErrorResult("mkdir error: " + err.Error())
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return mesh.ErrorResult("write error: " + err.Error())
	}
	return mesh.SuccessResult("report written to " + name)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// sanitize keeps report filenames shell-friendly.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, s)
}

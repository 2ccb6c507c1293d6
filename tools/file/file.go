// Package file provides read and write tools confined to a workspace
// directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mesh "github.com/nevindra/mesh"
)

const maxReadChars = 8000

// ReadTool reads files from the workspace.
type ReadTool struct {
	workspacePath string
}

// WriteTool writes files into the workspace.
type WriteTool struct {
	workspacePath string
}

// NewRead creates a file_read tool rooted at workspacePath.
func NewRead(workspacePath string) *ReadTool {
	return &ReadTool{workspacePath: workspacePath}
}

// NewWrite creates a file_write tool rooted at workspacePath.
func NewWrite(workspacePath string) *WriteTool {
	return &WriteTool{workspacePath: workspacePath}
}

var (
	_ mesh.Tool = (*ReadTool)(nil)
	_ mesh.Tool = (*WriteTool)(nil)
)

func (t *ReadTool) Definition() mesh.ToolDefinition {
	return mesh.ToolDefinition{
		Name:        "file_read",
		Description: "Read a file from the workspace. Returns the file content, truncated if large.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
	}
}

func (t *ReadTool) Stage() mesh.Stage { return mesh.StagePreProcess }

func (t *ReadTool) Execute(_ context.Context, args json.RawMessage) mesh.ToolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mesh.ErrorResult("invalid args: " + err.Error())
	}
	resolved, err := resolvePath(t.workspacePath, params.Path)
	if err != nil {
		return mesh.ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return mesh.ErrorResult("read error: " + err.Error())
	}
	content := string(data)
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + "\n... (truncated)"
	}
	return mesh.SuccessResult(content)
}

func (t *WriteTool) Definition() mesh.ToolDefinition {
	return mesh.ToolDefinition{
		Name:        "file_write",
		Description: "Write content to a file in the workspace. Creates parent directories if needed.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"},"content":{"type":"string","description":"Content to write"}},"required":["path","content"]}`),
	}
}

func (t *WriteTool) Stage() mesh.Stage { return mesh.StagePreProcess }

func (t *WriteTool) Execute(_ context.Context, args json.RawMessage) mesh.ToolResult {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mesh.ErrorResult("invalid args: " + err.Error())
	}
	resolved, err := resolvePath(t.workspacePath, params.Path)
	if err != nil {
		return mesh.ErrorResult(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return mesh.ErrorResult("mkdir error: " + err.Error())
	}
	if err := os.WriteFile(resolved, []byte(params.Content), 0o644); err != nil {
		return mesh.ErrorResult("write error: " + err.Error())
	}
	return mesh.SuccessResult(fmt.Sprintf("Written %d bytes to %s", len(params.Content), params.Path))
}

// resolvePath joins path onto the workspace and rejects anything that
// would escape it.
func resolvePath(workspace, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	resolved := filepath.Join(workspace, path)
	if resolved != workspace && !strings.HasPrefix(resolved, workspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

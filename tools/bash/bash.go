// Package bash provides a shell execution tool confined to a workspace
// directory.
package bash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	mesh "github.com/nevindra/mesh"
)

const (
	defaultTimeout = 30  // seconds
	maxTimeout     = 300 // seconds
	maxOutputChars = 4000
)

// denied commands are matched against every whitespace-separated field of
// the command line, not as substrings, so "firm" does not trip on "rm".
var denied = map[string]struct{}{
	"halt": {}, "poweroff": {}, "shutdown": {}, "reboot": {},
	"rm": {}, "kill": {}, "exit": {}, "sudo": {}, "su": {},
	"userdel": {}, "groupdel": {}, "logout": {}, "alias": {},
}

// Tool executes shell commands in the workspace directory.
type Tool struct {
	workspacePath string
}

// New creates a bash tool rooted at workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

var _ mesh.Tool = (*Tool)(nil)

func (t *Tool) Definition() mesh.ToolDefinition {
	return mesh.ToolDefinition{
		Name:        "bash",
		Description: "Execute a shell command in the workspace directory. Returns combined stdout and stderr. Use for running scripts, inspecting files, or system tasks.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"},"timeout":{"type":"integer","description":"Timeout in seconds (default 30, max 300)"}},"required":["command"]}`),
	}
}

func (t *Tool) Stage() mesh.Stage { return mesh.StagePreProcess }

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) mesh.ToolResult {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return mesh.ErrorResult("invalid args: " + err.Error())
	}
	if strings.TrimSpace(params.Command) == "" {
		return mesh.ErrorResult("command is required")
	}

	if word := deniedWord(params.Command); word != "" {
		return mesh.ErrorResult("command rejected: " + word + " is not allowed")
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", params.Command)
	cmd.Dir = t.workspacePath

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()
	if len(output) > maxOutputChars {
		output = output[:maxOutputChars] + "\n... (truncated)"
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return mesh.ErrorResult(fmt.Sprintf("command timed out after %ds", timeout))
		}
		msg := "exit: " + err.Error()
		if output != "" {
			msg += "\n" + output
		}
		return mesh.ErrorResult(msg)
	}

	if output == "" {
		output = "(no output)"
	}
	return mesh.SuccessResult(output)
}

// deniedWord returns the first denied field of the command line, or "".
func deniedWord(command string) string {
	for _, field := range strings.Fields(command) {
		if _, ok := denied[strings.ToLower(field)]; ok {
			return field
		}
	}
	return ""
}

package bash

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mesh "github.com/nevindra/mesh"
)

func run(t *testing.T, tool *Tool, args string) mesh.ToolResult {
	t.Helper()
	return tool.Execute(context.Background(), json.RawMessage(args))
}

func TestExecuteEchoesOutput(t *testing.T) {
	tool := New(t.TempDir())
	res := run(t, tool, `{"command":"echo hello"}`)
	if res.Status != mesh.StatusSuccess {
		t.Fatalf("status = %q, error = %q", res.Status, res.ErrorMessage)
	}
	if strings.TrimSpace(res.Output) != "hello" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestExecuteRunsInWorkspace(t *testing.T) {
	dir := t.TempDir()
	tool := New(dir)
	res := run(t, tool, `{"command":"pwd"}`)
	if res.Status != mesh.StatusSuccess {
		t.Fatalf("status = %q, error = %q", res.Status, res.ErrorMessage)
	}
	if !strings.Contains(res.Output, dir) {
		t.Errorf("pwd output %q does not contain workspace %q", res.Output, dir)
	}
}

func TestExecuteDeniedCommands(t *testing.T) {
	tool := New(t.TempDir())
	for _, cmd := range []string{"rm -rf data", "sudo apt install x", "echo hi && reboot", "kill -9 1"} {
		args, _ := json.Marshal(map[string]string{"command": cmd})
		res := tool.Execute(context.Background(), args)
		if res.Status != mesh.StatusError {
			t.Errorf("command %q not rejected", cmd)
		}
	}
}

func TestExecuteDenylistMatchesFieldsNotSubstrings(t *testing.T) {
	tool := New(t.TempDir())
	res := run(t, tool, `{"command":"echo format"}`)
	if res.Status != mesh.StatusSuccess {
		t.Errorf("substring of a denied word rejected: %q", res.ErrorMessage)
	}
}

func TestExecuteEmptyCommand(t *testing.T) {
	tool := New(t.TempDir())
	res := run(t, tool, `{"command":"  "}`)
	if res.Status != mesh.StatusError {
		t.Error("empty command not rejected")
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	tool := New(t.TempDir())
	res := run(t, tool, `{"command":"false"}`)
	if res.Status != mesh.StatusError {
		t.Error("non-zero exit reported as success")
	}
}

func TestExecuteTimeout(t *testing.T) {
	tool := New(t.TempDir())
	res := run(t, tool, `{"command":"sleep 5","timeout":1}`)
	if res.Status != mesh.StatusError || !strings.Contains(res.ErrorMessage, "timed out") {
		t.Errorf("result = %+v, want timeout error", res)
	}
}

func TestExecuteTruncatesLongOutput(t *testing.T) {
	tool := New(t.TempDir())
	res := run(t, tool, `{"command":"head -c 10000 /dev/zero | tr '\\0' 'x'"}`)
	if res.Status != mesh.StatusSuccess {
		t.Fatalf("status = %q, error = %q", res.Status, res.ErrorMessage)
	}
	if len(res.Output) > maxOutputChars+100 {
		t.Errorf("output len = %d, want truncated near %d", len(res.Output), maxOutputChars)
	}
	if !strings.HasSuffix(res.Output, "(truncated)") {
		t.Error("missing truncation marker")
	}
}

package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mesh "github.com/nevindra/mesh"
)

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	w := NewWrite(dir)
	res := w.Execute(ctx, json.RawMessage(`{"path":"notes/plan.md","content":"step one"}`))
	if res.Status != mesh.StatusSuccess {
		t.Fatalf("write: %+v", res)
	}

	r := NewRead(dir)
	res = r.Execute(ctx, json.RawMessage(`{"path":"notes/plan.md"}`))
	if res.Status != mesh.StatusSuccess {
		t.Fatalf("read: %+v", res)
	}
	if res.Output != "step one" {
		t.Errorf("content = %q", res.Output)
	}
}

func TestReadMissingFile(t *testing.T) {
	r := NewRead(t.TempDir())
	res := r.Execute(context.Background(), json.RawMessage(`{"path":"nope.txt"}`))
	if res.Status != mesh.StatusError {
		t.Errorf("missing file read succeeded: %+v", res)
	}
}

func TestReadTruncatesLargeFile(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", maxReadChars+500)
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRead(dir)
	res := r.Execute(context.Background(), json.RawMessage(`{"path":"big.txt"}`))
	if res.Status != mesh.StatusSuccess {
		t.Fatalf("read: %+v", res)
	}
	if !strings.HasSuffix(res.Output, "(truncated)") {
		t.Error("missing truncation marker")
	}
}

func TestPathConfinement(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	for _, path := range []string{"/etc/passwd", "../outside.txt", "a/../../outside.txt", ""} {
		args, _ := json.Marshal(map[string]string{"path": path, "content": "x"})
		if res := NewWrite(dir).Execute(ctx, args); res.Status != mesh.StatusError {
			t.Errorf("write path %q not rejected", path)
		}
		if res := NewRead(dir).Execute(ctx, args); res.Status != mesh.StatusError {
			t.Errorf("read path %q not rejected", path)
		}
	}
}

func TestDefinitionsAndStage(t *testing.T) {
	r, w := NewRead("/tmp"), NewWrite("/tmp")
	if r.Definition().Name != "file_read" || w.Definition().Name != "file_write" {
		t.Error("unexpected tool names")
	}
	if r.Stage() != mesh.StagePreProcess || w.Stage() != mesh.StagePreProcess {
		t.Error("file tools must be pre-process")
	}
}

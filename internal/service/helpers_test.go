package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/basel-ax/vybex/internal/domain"
	"go.uber.org/atomic"
)

func writeFixture(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n
}

// fakeProvider records calls and returns a canned outcome
type fakeProvider struct {
	name     string
	calls    atomic.Int32
	images   int
	err      error
	lastReq  *domain.TryOnRequest
	generate func(ctx context.Context, req *domain.TryOnRequest, outputDir string) (*domain.TryOnResult, error)
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) Generate(ctx context.Context, req *domain.TryOnRequest, outputDir string) (*domain.TryOnResult, error) {
	f.calls.Inc()
	f.lastReq = req
	if f.generate != nil {
		return f.generate(ctx, req, outputDir)
	}
	if f.err != nil {
		return nil, f.err
	}
	n := f.images
	if n == 0 {
		n = 1
	}
	images := make([]domain.ResultImage, 0, n)
	for i := 0; i < n; i++ {
		name := filepath.Base(req.SourceImagePath) + "-out-" + string(rune('a'+i)) + ".jpg"
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
			return nil, err
		}
		images = append(images, domain.ResultImage{Filename: name, LocalPath: path, ByteSize: 3})
	}
	return domain.NewTryOnResult(f.Name(), "task-1", images), nil
}

// fakeWaiter is a provider that also tracks tasks
type fakeWaiter struct {
	fakeProvider
	task *domain.TryOnTask
	err  error
}

func (f *fakeWaiter) WaitForTask(_ context.Context, taskID string) (*domain.TryOnTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	task := *f.task
	task.TaskID = taskID
	return &task, nil
}

func mustJSON(t *testing.T, raw string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("bad fixture %s: %v", raw, err)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/infrastructure/kling"
	"go.uber.org/atomic"
)

type fakeTaskClient struct {
	t         *testing.T
	submitErr error
	submits   atomic.Int32
	queries   atomic.Int32
	downloads atomic.Int32
	lastModel string

	// status is called with the 1-based query number
	status   func(n int) (*kling.StatusResponse, error)
	download func(url string) ([]byte, error)
}

func (f *fakeTaskClient) SubmitTask(_ context.Context, req kling.SubmitRequest) (string, error) {
	f.submits.Inc()
	f.lastModel = req.Model
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-1", nil
}

func (f *fakeTaskClient) TaskStatus(ctx context.Context, taskID string) (*kling.StatusResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int(f.queries.Inc())
	return f.status(n)
}

func (f *fakeTaskClient) Download(_ context.Context, url string) ([]byte, error) {
	f.downloads.Inc()
	if f.download != nil {
		return f.download(url)
	}
	return []byte("jpeg:" + url), nil
}

func (f *fakeTaskClient) statusDoc(raw string) *kling.StatusResponse {
	var resp kling.StatusResponse
	mustJSON(f.t, raw, &resp)
	return &resp
}

func (f *fakeTaskClient) processing() *kling.StatusResponse {
	return f.statusDoc(`{"task_id":"task-1","status":"processing"}`)
}

func (f *fakeTaskClient) completed(urls ...string) *kling.StatusResponse {
	quoted := make([]string, len(urls))
	for i, u := range urls {
		quoted[i] = fmt.Sprintf("%q", u)
	}
	return f.statusDoc(`{"task_id":"task-1","status":"completed","data":{"result":{"images":[` + strings.Join(quoted, ",") + `]}}}`)
}

func newAsyncFixture(t *testing.T, interval, timeout time.Duration) (*fakeTaskClient, *AsyncProvider, *domain.TryOnRequest, string) {
	t.Helper()
	in := t.TempDir()
	client := &fakeTaskClient{t: t}
	p := NewAsyncProvider(client, AsyncProviderConfig{CheckInterval: interval, GenerationTimeout: timeout}, nil)
	req := domain.NewTryOnRequest(writeFixture(t, in, "source.jpg"), writeFixture(t, in, "cloth.jpg"), domain.TryOnOptions{})
	return client, p, req, t.TempDir()
}

func TestNewAsyncProvider_Defaults(t *testing.T) {
	p := NewAsyncProvider(&fakeTaskClient{}, AsyncProviderConfig{}, nil)
	if p.interval != 2*time.Second || p.timeout != 5*time.Minute {
		t.Errorf("defaults = %s/%s, want 2s/5m", p.interval, p.timeout)
	}
	if p.Name() != "kling" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestAsyncProvider_Generate_PollsUntilCompleted(t *testing.T) {
	const processingRounds = 3

	client, p, req, out := newAsyncFixture(t, 10*time.Millisecond, 5*time.Second)
	client.status = func(n int) (*kling.StatusResponse, error) {
		if n <= processingRounds {
			return client.processing(), nil
		}
		return client.completed("https://cdn.example/a.jpg", "https://cdn.example/b.jpg"), nil
	}

	result, err := p.Generate(context.Background(), req, out)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if got := client.queries.Load(); got != processingRounds+1 {
		t.Errorf("status queries = %d, want %d", got, processingRounds+1)
	}
	if result.TaskID != "task-1" || result.Provider != "kling" {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Count != 2 || len(result.Images) != 2 {
		t.Fatalf("result has %d/%d images, want 2", result.Count, len(result.Images))
	}
	if result.Images[0].Filename == result.Images[1].Filename {
		t.Errorf("duplicate filename %s", result.Images[0].Filename)
	}
	for i, img := range result.Images {
		if !strings.HasPrefix(img.Filename, "try-on-result-") || !strings.HasSuffix(img.Filename, ".jpg") {
			t.Errorf("image %d filename = %q", i, img.Filename)
		}
		data, err := os.ReadFile(img.LocalPath)
		if err != nil {
			t.Fatalf("image %d not persisted: %v", i, err)
		}
		if int64(len(data)) != img.ByteSize {
			t.Errorf("image %d size = %d, want %d", i, img.ByteSize, len(data))
		}
		if filepath.Dir(img.LocalPath) != out {
			t.Errorf("image %d written to %s, want %s", i, img.LocalPath, out)
		}
	}
	if client.lastModel != "" {
		t.Errorf("model = %q, want empty so the client default applies", client.lastModel)
	}
}

func TestAsyncProvider_Generate_Timeout(t *testing.T) {
	const (
		interval = 100 * time.Millisecond
		timeout  = 300 * time.Millisecond
	)

	client, p, req, out := newAsyncFixture(t, interval, timeout)
	client.status = func(int) (*kling.StatusResponse, error) {
		return client.processing(), nil
	}

	start := time.Now()
	_, err := p.Generate(context.Background(), req, out)
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrPollTimeout) {
		t.Fatalf("Generate() error = %v, want ErrPollTimeout", err)
	}
	if elapsed < timeout {
		t.Errorf("gave up after %s, before the %s deadline", elapsed, timeout)
	}
	// timeout + interval plus scheduling slack
	if elapsed > timeout+interval+200*time.Millisecond {
		t.Errorf("gave up after %s, want at most about %s", elapsed, timeout+interval)
	}
	if got := client.queries.Load(); got < 3 || got > 4 {
		t.Errorf("status queries = %d, want 3 or 4", got)
	}
	if n := countFiles(t, out); n != 0 {
		t.Errorf("%d files written on timeout", n)
	}
}

func TestAsyncProvider_Generate_TimeoutKeepsLastError(t *testing.T) {
	client, p, req, out := newAsyncFixture(t, 10*time.Millisecond, 80*time.Millisecond)
	client.status = func(int) (*kling.StatusResponse, error) {
		return nil, &kling.APIError{StatusCode: http.StatusBadGateway, Message: "upstream hiccup"}
	}

	_, err := p.Generate(context.Background(), req, out)
	if !errors.Is(err, domain.ErrPollTimeout) {
		t.Fatalf("Generate() error = %v, want ErrPollTimeout", err)
	}
	if !strings.Contains(err.Error(), "upstream hiccup") {
		t.Errorf("error %q does not carry the last failure", err)
	}
}

func TestAsyncProvider_Generate_FailsFast(t *testing.T) {
	client, p, req, out := newAsyncFixture(t, time.Second, time.Minute)
	client.status = func(int) (*kling.StatusResponse, error) {
		return client.statusDoc(`{"task_id":"task-1","status":"failed","data":{"error":"garment not detected"}}`), nil
	}

	start := time.Now()
	_, err := p.Generate(context.Background(), req, out)
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrRemoteTaskFailed) {
		t.Fatalf("Generate() error = %v, want ErrRemoteTaskFailed", err)
	}
	if !strings.Contains(err.Error(), "garment not detected") {
		t.Errorf("error %q does not carry the remote reason", err)
	}
	if got := client.queries.Load(); got != 1 {
		t.Errorf("status queries = %d, want 1", got)
	}
	if elapsed >= 500*time.Millisecond {
		t.Errorf("failure surfaced after %s, want well under one interval", elapsed)
	}
	if client.downloads.Load() != 0 {
		t.Error("downloads attempted for a failed task")
	}
}

func TestAsyncProvider_Generate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		submitErr error
		status    func(c *fakeTaskClient, n int) (*kling.StatusResponse, error)
		download  func(url string) ([]byte, error)
		want      error
		wantFiles int
	}{
		{
			name:      "submission rejected",
			submitErr: &kling.APIError{StatusCode: http.StatusBadRequest, Message: "invalid image"},
			want:      domain.ErrSubmission,
		},
		{
			name: "unknown task",
			status: func(*fakeTaskClient, int) (*kling.StatusResponse, error) {
				return nil, &kling.APIError{StatusCode: http.StatusNotFound, Message: "task not found"}
			},
			want: domain.ErrTaskNotFound,
		},
		{
			name: "completed without images",
			status: func(c *fakeTaskClient, _ int) (*kling.StatusResponse, error) {
				return c.completed(), nil
			},
			want: domain.ErrMalformedResponse,
		},
		{
			name: "second download fails",
			status: func(c *fakeTaskClient, _ int) (*kling.StatusResponse, error) {
				return c.completed("https://cdn.example/a.jpg", "https://cdn.example/b.jpg"), nil
			},
			download: func(url string) ([]byte, error) {
				if strings.HasSuffix(url, "b.jpg") {
					return nil, errors.New("connection reset")
				}
				return []byte("ok"), nil
			},
			want:      domain.ErrDownload,
			wantFiles: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, p, req, out := newAsyncFixture(t, 10*time.Millisecond, time.Second)
			client.submitErr = tt.submitErr
			client.download = tt.download
			client.status = func(n int) (*kling.StatusResponse, error) {
				if tt.status == nil {
					t.Fatal("unexpected status query")
				}
				return tt.status(client, n)
			}

			_, err := p.Generate(context.Background(), req, out)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.want)
			}
			if n := countFiles(t, out); n != tt.wantFiles {
				t.Errorf("%d files in output dir, want %d", n, tt.wantFiles)
			}
		})
	}
}

func TestAsyncProvider_Generate_RetriesTransientErrors(t *testing.T) {
	client, p, req, out := newAsyncFixture(t, 10*time.Millisecond, 5*time.Second)
	client.status = func(n int) (*kling.StatusResponse, error) {
		switch n {
		case 1:
			return nil, &kling.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
		case 2:
			return nil, errors.New("dial tcp: connection refused")
		default:
			return client.completed("https://cdn.example/a.jpg"), nil
		}
	}

	result, err := p.Generate(context.Background(), req, out)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Count != 1 {
		t.Errorf("Count = %d, want 1", result.Count)
	}
	if got := client.queries.Load(); got != 3 {
		t.Errorf("status queries = %d, want 3", got)
	}
}

func TestAsyncProvider_Generate_StatusQueryErrors(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		want        error
		wantQueries int32
	}{
		{"credentials rejected", http.StatusUnauthorized, domain.ErrProvider, 1},
		{"forbidden", http.StatusForbidden, domain.ErrProvider, 1},
		{"bad request", http.StatusBadRequest, domain.ErrProvider, 1},
		{"rate limited", http.StatusTooManyRequests, nil, 2},
		{"request timeout", http.StatusRequestTimeout, nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, p, req, out := newAsyncFixture(t, 10*time.Millisecond, 5*time.Second)
			client.status = func(n int) (*kling.StatusResponse, error) {
				if n == 1 {
					return nil, &kling.APIError{StatusCode: tt.code, Message: "nope"}
				}
				return client.completed("https://cdn.example/a.jpg"), nil
			}

			start := time.Now()
			_, err := p.Generate(context.Background(), req, out)
			if tt.want == nil && err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("Generate() error = %v, want %v", err, tt.want)
				}
				var apiErr *kling.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.code {
					t.Errorf("error %v does not carry the %d response", err, tt.code)
				}
				if elapsed := time.Since(start); elapsed >= time.Second {
					t.Errorf("failure surfaced after %s", elapsed)
				}
			}
			if got := client.queries.Load(); got != tt.wantQueries {
				t.Errorf("status queries = %d, want %d", got, tt.wantQueries)
			}
		})
	}
}

func TestAsyncProvider_Generate_Cancelled(t *testing.T) {
	client, p, req, out := newAsyncFixture(t, 20*time.Millisecond, time.Minute)
	client.status = func(int) (*kling.StatusResponse, error) {
		return client.processing(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, req, out)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("Generate() error = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not wrap the context error", err)
	}
}

func TestAsyncProvider_Generate_MissingInput(t *testing.T) {
	client, p, req, out := newAsyncFixture(t, 10*time.Millisecond, time.Second)
	req.SourceImagePath = filepath.Join(t.TempDir(), "missing.jpg")

	_, err := p.Generate(context.Background(), req, out)
	if !errors.Is(err, domain.ErrInputNotFound) {
		t.Fatalf("Generate() error = %v, want ErrInputNotFound", err)
	}
	if client.submits.Load() != 0 {
		t.Error("task submitted for a missing input")
	}
}

func TestAsyncProvider_WaitForTask(t *testing.T) {
	client, p, _, _ := newAsyncFixture(t, 10*time.Millisecond, time.Second)
	client.status = func(n int) (*kling.StatusResponse, error) {
		if n == 1 {
			return client.processing(), nil
		}
		return client.completed("https://cdn.example/a.jpg"), nil
	}

	task, err := p.WaitForTask(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("WaitForTask() error = %v", err)
	}
	if task.TaskID != "task-9" || task.Status != domain.TaskStatusCompleted {
		t.Errorf("unexpected task %+v", task)
	}
	if len(task.ResultImageURLs) != 1 {
		t.Errorf("ResultImageURLs = %v", task.ResultImageURLs)
	}
	if client.downloads.Load() != 0 {
		t.Error("WaitForTask downloaded results")
	}
}

package domain

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle state of a remote try-on task
type TaskStatus string

const (
	TaskStatusSubmitted  TaskStatus = "submitted"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further polling can change the outcome
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TryOnOptions holds the caller-supplied tuning parameters.
// Zero values mean "not set" and are replaced by provider defaults. Seed is a
// pointer because 0 is a valid seed; nil leaves the choice to the provider.
type TryOnOptions struct {
	Category      string
	Steps         int
	GuidanceScale float64
	Seed          *int
	Model         string
}

// TryOnRequest represents one generation call
type TryOnRequest struct {
	SourceImagePath    string
	ReferenceImagePath string
	Category           Category
	Options            TryOnOptions
}

// NewTryOnRequest builds a request with a normalized category
func NewTryOnRequest(sourcePath, referencePath string, opts TryOnOptions) *TryOnRequest {
	return &TryOnRequest{
		SourceImagePath:    sourcePath,
		ReferenceImagePath: referencePath,
		Category:           NormalizeCategory(opts.Category),
		Options:            opts,
	}
}

// TryOnTask represents one in-flight job on an asynchronous provider
type TryOnTask struct {
	TaskID          string
	Status          TaskStatus
	SubmittedAt     time.Time
	ResultImageURLs []string
	FailureReason   string
}

// ResultImage is one generated image persisted on local disk
type ResultImage struct {
	Filename  string `json:"filename"`
	LocalPath string `json:"path"`
	SourceURL string `json:"url,omitempty"`
	ByteSize  int64  `json:"size"`
}

// TryOnResult is the uniform outcome of a successful generation
type TryOnResult struct {
	Provider string        `json:"provider"`
	TaskID   string        `json:"taskId,omitempty"`
	Images   []ResultImage `json:"images"`
	Count    int           `json:"totalImages"`
}

// NewTryOnResult keeps Count in step with Images
func NewTryOnResult(provider, taskID string, images []ResultImage) *TryOnResult {
	return &TryOnResult{
		Provider: provider,
		TaskID:   taskID,
		Images:   images,
		Count:    len(images),
	}
}

// UploadedImage is an in-memory image received from a client
type UploadedImage struct {
	Role     string
	Filename string
	Data     []byte
}

// TryOnProvider defines the capability every remote provider adapter implements
type TryOnProvider interface {
	// Name identifies the provider in logs and responses
	Name() string

	// Generate produces the try-on images for req and writes them into outputDir
	Generate(ctx context.Context, req *TryOnRequest, outputDir string) (*TryOnResult, error)
}

// TaskWaiter is implemented by providers that track remote tasks
type TaskWaiter interface {
	// WaitForTask polls taskID until it reaches a terminal state
	WaitForTask(ctx context.Context, taskID string) (*TryOnTask, error)
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/imagecodec"
)

// TaskStatusReport is the outcome of a status check
type TaskStatusReport struct {
	TaskID    string            `json:"taskId"`
	Status    domain.TaskStatus `json:"status"`
	ImageURLs []string          `json:"images"`
}

// TryOnService is the entry point used by the route layer. It is written
// against domain.TryOnProvider only; the concrete provider is chosen at startup.
type TryOnService struct {
	provider domain.TryOnProvider
	temp     *TempFileManager
	logger   *slog.Logger
}

// NewTryOnService creates a new try-on service
func NewTryOnService(provider domain.TryOnProvider, temp *TempFileManager, logger *slog.Logger) *TryOnService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TryOnService{
		provider: provider,
		temp:     temp,
		logger:   logger,
	}
}

// ProviderName returns the name of the configured provider
func (s *TryOnService) ProviderName() string {
	return s.provider.Name()
}

// GenerateFromPaths validates both inputs before any remote call and delegates
// to the provider.
func (s *TryOnService) GenerateFromPaths(ctx context.Context, sourcePath, referencePath, outputDir string, opts domain.TryOnOptions) (*domain.TryOnResult, error) {
	if err := imagecodec.RequireFiles(sourcePath, referencePath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	req := domain.NewTryOnRequest(sourcePath, referencePath, opts)
	log := s.logger.With("provider", s.provider.Name(), "category", req.Category)
	log.Info("starting try-on generation")

	result, err := s.provider.Generate(ctx, req, outputDir)
	if err != nil {
		log.Error("try-on generation failed", "error", err)
		return nil, fmt.Errorf("virtual try-on generation failed: %w", err)
	}
	if err := verifyResult(result); err != nil {
		return nil, fmt.Errorf("virtual try-on generation failed: %w", err)
	}

	log.Info("try-on generation finished", "task_id", result.TaskID, "images", result.Count)
	return result, nil
}

// GenerateFromUploads stages both buffers as temporary files, generates from
// them and removes the staged files whatever the outcome.
func (s *TryOnService) GenerateFromUploads(ctx context.Context, source, reference domain.UploadedImage, outputDir string, opts domain.TryOnOptions) (*domain.TryOnResult, error) {
	if source.Role == "" {
		source.Role = "source"
	}
	if reference.Role == "" {
		reference.Role = "reference"
	}

	staged, err := s.temp.Stage(source, reference)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			s.logger.Warn("failed to remove staged uploads", "error", err)
		}
	}()

	paths := staged.Paths()
	return s.GenerateFromPaths(ctx, paths[0], paths[1], outputDir, opts)
}

// CheckStatus blocks until the task is terminal or the poll deadline passes.
// Only providers that track remote tasks support it.
func (s *TryOnService) CheckStatus(ctx context.Context, taskID string) (*TaskStatusReport, error) {
	waiter, ok := s.provider.(domain.TaskWaiter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrStatusUnsupported, s.provider.Name())
	}

	task, err := waiter.WaitForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &TaskStatusReport{
		TaskID:    task.TaskID,
		Status:    task.Status,
		ImageURLs: task.ResultImageURLs,
	}, nil
}

// verifyResult checks that every reported image is a non-empty file on disk
func verifyResult(result *domain.TryOnResult) error {
	if result == nil || result.Count == 0 || result.Count != len(result.Images) {
		return fmt.Errorf("%w: inconsistent result", domain.ErrMalformedResponse)
	}
	for _, img := range result.Images {
		info, err := os.Stat(img.LocalPath)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			return fmt.Errorf("%w: result image %q missing or empty", domain.ErrMalformedResponse, img.LocalPath)
		}
	}
	return nil
}

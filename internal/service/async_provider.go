package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/imagecodec"
	"github.com/basel-ax/vybex/internal/infrastructure/kling"
)

const (
	DefaultCheckInterval     = 2 * time.Second
	DefaultGenerationTimeout = 5 * time.Minute
)

// TaskClient is the submit-then-poll remote contract
type TaskClient interface {
	SubmitTask(ctx context.Context, req kling.SubmitRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*kling.StatusResponse, error)
	Download(ctx context.Context, imageURL string) ([]byte, error)
}

// AsyncProviderConfig tunes the poll loop
type AsyncProviderConfig struct {
	Model             string
	CheckInterval     time.Duration
	GenerationTimeout time.Duration
}

// AsyncProvider implements domain.TryOnProvider for providers that queue a task
// and must be polled until it finishes.
type AsyncProvider struct {
	client   TaskClient
	model    string
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAsyncProvider creates a new asynchronous provider adapter
func NewAsyncProvider(client TaskClient, cfg AsyncProviderConfig, logger *slog.Logger) *AsyncProvider {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncProvider{
		client:   client,
		model:    cfg.Model,
		interval: cfg.CheckInterval,
		timeout:  cfg.GenerationTimeout,
		logger:   logger.With("provider", "kling"),
	}
}

// Name implements domain.TryOnProvider
func (p *AsyncProvider) Name() string {
	return "kling"
}

// Generate submits the task, waits for it and downloads every result image
func (p *AsyncProvider) Generate(ctx context.Context, req *domain.TryOnRequest, outputDir string) (*domain.TryOnResult, error) {
	task, err := p.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	p.logger.Info("try-on task submitted", "task_id", task.TaskID)

	if err := p.pollTask(ctx, task); err != nil {
		return nil, err
	}

	images, err := p.downloadResults(ctx, task, outputDir)
	if err != nil {
		return nil, err
	}

	p.logger.Info("try-on task completed", "task_id", task.TaskID, "images", len(images))
	return domain.NewTryOnResult(p.Name(), task.TaskID, images), nil
}

// WaitForTask implements domain.TaskWaiter. The deadline counts from the call.
func (p *AsyncProvider) WaitForTask(ctx context.Context, taskID string) (*domain.TryOnTask, error) {
	task := &domain.TryOnTask{
		TaskID:      taskID,
		Status:      domain.TaskStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	if err := p.pollTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (p *AsyncProvider) submit(ctx context.Context, req *domain.TryOnRequest) (*domain.TryOnTask, error) {
	if err := imagecodec.RequireFiles(req.SourceImagePath, req.ReferenceImagePath); err != nil {
		return nil, err
	}

	source, err := imagecodec.Encode(req.SourceImagePath)
	if err != nil {
		return nil, err
	}
	reference, err := imagecodec.Encode(req.ReferenceImagePath)
	if err != nil {
		return nil, err
	}

	model := req.Options.Model
	if model == "" {
		model = p.model
	}

	taskID, err := p.client.SubmitTask(ctx, kling.SubmitRequest{
		Model:          model,
		SourceImage:    source,
		ReferenceImage: reference,
		Category:       req.Category.KlingLabel(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSubmission, err)
	}

	return &domain.TryOnTask{
		TaskID:      taskID,
		Status:      domain.TaskStatusSubmitted,
		SubmittedAt: time.Now(),
	}, nil
}

// pollTask queries the task until it is terminal, the deadline measured from
// task.SubmittedAt passes, or ctx is cancelled. Only transport failures, 5xx,
// 408 and 429 are retried; any other error status ends the poll.
func (p *AsyncProvider) pollTask(ctx context.Context, task *domain.TryOnTask) error {
	pollCtx, cancel := context.WithDeadline(ctx, task.SubmittedAt.Add(p.timeout))
	defer cancel()

	var lastErr error
	for attempt := 1; ; attempt++ {
		resp, err := p.client.TaskStatus(pollCtx, task.TaskID)
		if err != nil {
			var apiErr *kling.APIError
			if errors.As(err, &apiErr) && apiErr.IsNotFound() {
				return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, task.TaskID)
			}
			if apiErr != nil && !apiErr.IsRetryable() {
				return fmt.Errorf("%w: task %s: %w", domain.ErrProvider, task.TaskID, err)
			}
			// an aborted in-flight query says nothing about the provider
			if pollCtx.Err() == nil {
				lastErr = err
				p.logger.Warn("transient status check failure", "task_id", task.TaskID, "attempt", attempt, "error", err)
			}
		} else {
			switch domain.TaskStatus(resp.Status) {
			case domain.TaskStatusCompleted:
				urls := resp.Images()
				if len(urls) == 0 {
					return fmt.Errorf("%w: task %s completed without result images", domain.ErrMalformedResponse, task.TaskID)
				}
				task.Status = domain.TaskStatusCompleted
				task.ResultImageURLs = urls
				return nil
			case domain.TaskStatusFailed:
				reason := resp.ErrorMessage()
				if reason == "" {
					reason = "task failed on provider side"
				}
				task.Status = domain.TaskStatusFailed
				task.FailureReason = reason
				return fmt.Errorf("%w: task %s: %s", domain.ErrRemoteTaskFailed, task.TaskID, reason)
			default:
				task.Status = domain.TaskStatusProcessing
				p.logger.Debug("task still processing", "task_id", task.TaskID, "attempt", attempt, "remote_status", resp.Status)
			}
		}

		wait := time.NewTimer(p.interval)
		select {
		case <-pollCtx.Done():
			wait.Stop()
			if ctx.Err() != nil {
				return fmt.Errorf("%w: task %s: %w", domain.ErrCancelled, task.TaskID, ctx.Err())
			}
			if lastErr != nil {
				return fmt.Errorf("%w: task %s after %s, last error: %v", domain.ErrPollTimeout, task.TaskID, p.timeout, lastErr)
			}
			return fmt.Errorf("%w: task %s after %s", domain.ErrPollTimeout, task.TaskID, p.timeout)
		case <-wait.C:
		}
	}
}

func (p *AsyncProvider) downloadResults(ctx context.Context, task *domain.TryOnTask, outputDir string) ([]domain.ResultImage, error) {
	images := make([]domain.ResultImage, 0, len(task.ResultImageURLs))
	for i, imageURL := range task.ResultImageURLs {
		data, err := p.client.Download(ctx, imageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrDownload, imageURL, err)
		}

		filename := imagecodec.NewFilename("try-on-result", i, "jpg")
		path, err := imagecodec.Persist(data, outputDir, filename)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrDownload, imageURL, err)
		}

		images = append(images, domain.ResultImage{
			Filename:  filename,
			LocalPath: path,
			SourceURL: imageURL,
			ByteSize:  int64(len(data)),
		})
	}
	return images, nil
}

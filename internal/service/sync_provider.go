package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/imagecodec"
	"github.com/basel-ax/vybex/internal/infrastructure/segmind"
)

// ImageClient is the single-call remote contract
type ImageClient interface {
	TryOn(ctx context.Context, req segmind.Request) (*segmind.Response, error)
}

// SyncProviderConfig holds the tuning defaults applied when a request leaves them unset
type SyncProviderConfig struct {
	Steps    int
	Guidance float64
	Seed     int
}

// SyncProvider implements domain.TryOnProvider for providers that return the image directly
type SyncProvider struct {
	client   ImageClient
	defaults SyncProviderConfig
	logger   *slog.Logger
}

// NewSyncProvider creates a new synchronous provider adapter
func NewSyncProvider(client ImageClient, cfg SyncProviderConfig, logger *slog.Logger) *SyncProvider {
	if cfg.Steps == 0 {
		cfg.Steps = 25
	}
	if cfg.Guidance == 0 {
		cfg.Guidance = 2.5
	}
	// -1 lets the provider pick
	if cfg.Seed == 0 {
		cfg.Seed = -1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncProvider{
		client:   client,
		defaults: cfg,
		logger:   logger.With("provider", "segmind"),
	}
}

// Name implements domain.TryOnProvider
func (p *SyncProvider) Name() string {
	return "segmind"
}

// Generate implements domain.TryOnProvider. Exactly one file is written on success.
func (p *SyncProvider) Generate(ctx context.Context, req *domain.TryOnRequest, outputDir string) (*domain.TryOnResult, error) {
	if err := imagecodec.RequireFiles(req.SourceImagePath, req.ReferenceImagePath); err != nil {
		return nil, err
	}

	model, err := imagecodec.Encode(req.SourceImagePath)
	if err != nil {
		return nil, err
	}
	cloth, err := imagecodec.Encode(req.ReferenceImagePath)
	if err != nil {
		return nil, err
	}

	payload := segmind.Request{
		ModelImage:        model,
		ClothImage:        cloth,
		Category:          req.Category.SegmindLabel(),
		NumInferenceSteps: req.Options.Steps,
		GuidanceScale:     req.Options.GuidanceScale,
		Seed:              p.defaults.Seed,
	}
	if payload.NumInferenceSteps <= 0 {
		payload.NumInferenceSteps = p.defaults.Steps
	}
	if payload.GuidanceScale <= 0 {
		payload.GuidanceScale = p.defaults.Guidance
	}
	if req.Options.Seed != nil {
		payload.Seed = *req.Options.Seed
	}

	p.logger.Debug("sending try-on request", "category", payload.Category, "steps", payload.NumInferenceSteps)

	resp, err := p.client.TryOn(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	if len(resp.Image) == 0 {
		return nil, fmt.Errorf("%w: empty image payload", domain.ErrMalformedResponse)
	}

	filename := imagecodec.NewFilename("try-on", -1, imagecodec.ExtensionForMimeType(resp.ContentType))
	path, err := imagecodec.Persist(resp.Image, outputDir, filename)
	if err != nil {
		return nil, err
	}

	p.logger.Info("try-on image generated", "filename", filename, "bytes", len(resp.Image))

	return domain.NewTryOnResult(p.Name(), "", []domain.ResultImage{{
		Filename:  filename,
		LocalPath: path,
		ByteSize:  int64(len(resp.Image)),
	}}), nil
}

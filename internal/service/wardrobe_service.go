package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/basel-ax/vybex/internal/domain"
	"github.com/basel-ax/vybex/internal/repository"
)

// WardrobeService renders try-on previews for saved wardrobe items
type WardrobeService struct {
	repo      repository.WardrobeRepository
	tryOn     *TryOnService
	temp      *TempFileManager
	uploadDir string
	tryOnDir  string
	logger    *slog.Logger
}

// NewWardrobeService creates a new wardrobe service
func NewWardrobeService(repo repository.WardrobeRepository, tryOn *TryOnService, temp *TempFileManager, uploadDir, tryOnDir string, logger *slog.Logger) *WardrobeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WardrobeService{
		repo:      repo,
		tryOn:     tryOn,
		temp:      temp,
		uploadDir: uploadDir,
		tryOnDir:  tryOnDir,
		logger:    logger.With("component", "wardrobe"),
	}
}

// Items lists a user's wardrobe
func (s *WardrobeService) Items(ctx context.Context, userID string) ([]domain.WardrobeItem, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Item returns one wardrobe item
func (s *WardrobeService) Item(ctx context.Context, id string) (*domain.WardrobeItem, error) {
	return s.repo.GetItem(ctx, id)
}

// GenerateTryOn dresses the selfie at selfiePath in the item's product and
// records the first generated image on the item.
func (s *WardrobeService) GenerateTryOn(ctx context.Context, itemID, selfiePath string) (*domain.WardrobeItem, *domain.TryOnResult, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}

	productImage, err := s.repo.GetPrimaryProductImage(ctx, item.ProductID)
	if err != nil {
		return nil, nil, err
	}
	garmentPath, err := ResolveUploadPath(s.uploadDir, productImage.ImageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("product image of item %s: %w", itemID, err)
	}

	result, err := s.tryOn.GenerateFromPaths(ctx, selfiePath, garmentPath, s.tryOnDir, domain.TryOnOptions{
		Category: item.ProductCategory,
	})
	if err != nil {
		return nil, nil, err
	}

	url, err := PublicUploadURL(s.uploadDir, result.Images[0].LocalPath)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.UpdateTryOnImage(ctx, itemID, url); err != nil {
		return nil, nil, fmt.Errorf("failed to save try-on image for item %s: %w", itemID, err)
	}
	item.TryOnImageURL = url

	s.logger.Info("wardrobe try-on saved", "item_id", itemID, "url", url)
	return item, result, nil
}

// GenerateTryOnFromUpload is GenerateTryOn for an in-memory selfie. The staged
// copy is removed on every exit path.
func (s *WardrobeService) GenerateTryOnFromUpload(ctx context.Context, itemID string, selfie domain.UploadedImage) (*domain.WardrobeItem, *domain.TryOnResult, error) {
	// fail before staging anything for unknown items
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, nil, err
	}

	selfie.Role = "selfie"
	staged, err := s.temp.Stage(selfie)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := staged.Cleanup(); err != nil {
			s.logger.Warn("failed to remove staged selfie", "error", err)
		}
	}()

	return s.GenerateTryOn(ctx, itemID, staged.Paths()[0])
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/basel-ax/vybex/internal/domain"
)

// WardrobeRepository defines the interface for wardrobe data access
type WardrobeRepository interface {
	GetItem(ctx context.Context, id string) (*domain.WardrobeItem, error)
	ListByUser(ctx context.Context, userID string) ([]domain.WardrobeItem, error)
	GetPrimaryProductImage(ctx context.Context, productID string) (*domain.ProductImage, error)
	UpdateTryOnImage(ctx context.Context, id, url string) error
}

// PostgresWardrobeRepository implements WardrobeRepository for PostgreSQL
type PostgresWardrobeRepository struct {
	db *sql.DB
}

// NewPostgresWardrobeRepository creates a new PostgreSQL wardrobe repository
func NewPostgresWardrobeRepository(db *sql.DB) *PostgresWardrobeRepository {
	return &PostgresWardrobeRepository{db: db}
}

const wardrobeItemColumns = `
	wi.id, wi.user_id, wi.product_id,
	COALESCE(wi.image_url, ''), COALESCE(wi.try_on_image_url, ''),
	COALESCE(wi.notes, ''), COALESCE(wi.color, ''), COALESCE(wi.size, ''),
	wi.added_at, p.name, COALESCE(p.category, ''), b.name
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWardrobeItem(row rowScanner) (*domain.WardrobeItem, error) {
	var item domain.WardrobeItem
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.ImageURL,
		&item.TryOnImageURL,
		&item.Notes,
		&item.Color,
		&item.Size,
		&item.AddedAt,
		&item.ProductName,
		&item.ProductCategory,
		&item.BrandName,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem retrieves a wardrobe item joined with its product and brand
func (r *PostgresWardrobeRepository) GetItem(ctx context.Context, id string) (*domain.WardrobeItem, error) {
	query := `
		SELECT` + wardrobeItemColumns + `
		FROM wardrobe_items wi
		JOIN products p ON wi.product_id = p.id
		JOIN brands b ON p.brand_id = b.id
		WHERE wi.id = $1
	`

	item, err := scanWardrobeItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wardrobe item %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return item, nil
}

// ListByUser retrieves a user's wardrobe, newest first
func (r *PostgresWardrobeRepository) ListByUser(ctx context.Context, userID string) ([]domain.WardrobeItem, error) {
	query := `
		SELECT` + wardrobeItemColumns + `
		FROM wardrobe_items wi
		JOIN products p ON wi.product_id = p.id
		JOIN brands b ON p.brand_id = b.id
		WHERE wi.user_id = $1
		ORDER BY wi.added_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.WardrobeItem, 0)
	for rows.Next() {
		item, err := scanWardrobeItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// GetPrimaryProductImage retrieves the primary image of a product, falling
// back to the first one by display order
func (r *PostgresWardrobeRepository) GetPrimaryProductImage(ctx context.Context, productID string) (*domain.ProductImage, error) {
	query := `
		SELECT id, product_id, image_url, COALESCE(alt_text, ''), is_primary
		FROM product_images
		WHERE product_id = $1
		ORDER BY is_primary DESC, display_order ASC
		LIMIT 1
	`

	var img domain.ProductImage
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&img.ID,
		&img.ProductID,
		&img.ImageURL,
		&img.AltText,
		&img.IsPrimary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no images for product %s", domain.ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}

	return &img, nil
}

// UpdateTryOnImage stores the public URL of the latest try-on preview
func (r *PostgresWardrobeRepository) UpdateTryOnImage(ctx context.Context, id, url string) error {
	query := `
		UPDATE wardrobe_items
		SET try_on_image_url = $1
		WHERE id = $2
	`

	res, err := r.db.ExecContext(ctx, query, url, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: wardrobe item %s", domain.ErrNotFound, id)
	}
	return nil
}

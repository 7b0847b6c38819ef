package domain

import "time"

// WardrobeItem is a product saved by a user, optionally with a try-on preview
type WardrobeItem struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ProductID       string    `json:"product_id"`
	ImageURL        string    `json:"image_url,omitempty"`
	TryOnImageURL   string    `json:"try_on_image_url,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Color           string    `json:"color,omitempty"`
	Size            string    `json:"size,omitempty"`
	AddedAt         time.Time `json:"added_at"`
	ProductName     string    `json:"name"`
	ProductCategory string    `json:"category,omitempty"`
	BrandName       string    `json:"brand_name"`
}

// ProductImage is a catalog image attached to a product
type ProductImage struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	ImageURL  string `json:"image_url"`
	AltText   string `json:"alt_text,omitempty"`
	IsPrimary bool   `json:"is_primary"`
}

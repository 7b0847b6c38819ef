package domain

import "strings"

// Category is the canonical garment placement region
type Category string

const (
	CategoryUpperBody Category = "upper_body"
	CategoryLowerBody Category = "lower_body"
	CategoryDress     Category = "dress"
)

var categoryAliases = map[string]Category{
	"upper_body": CategoryUpperBody,
	"upper body": CategoryUpperBody,
	"lower_body": CategoryLowerBody,
	"lower body": CategoryLowerBody,
	"dress":      CategoryDress,
	"full_body":  CategoryDress,
}

// NormalizeCategory maps a free-form category to its canonical value.
// Unknown and empty input falls back to CategoryUpperBody.
func NormalizeCategory(raw string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return CategoryUpperBody
}

// SegmindLabel returns the literal expected by the Segmind try-on API
func (c Category) SegmindLabel() string {
	switch c {
	case CategoryLowerBody:
		return "Lower body"
	case CategoryDress:
		return "Dress"
	default:
		return "Upper body"
	}
}

// KlingLabel returns the literal expected by the Kling try-on API
func (c Category) KlingLabel() string {
	switch c {
	case CategoryLowerBody, CategoryDress:
		return string(c)
	default:
		return string(CategoryUpperBody)
	}
}

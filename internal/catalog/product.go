// Package catalog defines the product record shape the rest of the
// application trusts. Product master data is owned by an external catalog
// collaborator; everything crossing that boundary goes through Normalize
// so duck-typed payloads never leak past this package.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Product is the normalized catalog record.
// Stores that reference a product cache a denormalized copy of the display
// fields (name, price, image) at the time the entry was added; that copy
// may drift from the catalog's current truth, which is accepted.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Image       string  `json:"image,omitempty"`
	Category    string  `json:"category,omitempty"`
}

// ErrMissingID is returned when external data carries no product identifier.
var ErrMissingID = errors.New("catalog: product has no id")

// Normalize converts a duck-typed external product into a Product.
// Field handling follows the collaborator contract: IDs may arrive as
// numbers or strings; numeric fields are coerced, with missing or invalid
// values defaulting to zero; external feeds that use "title" instead of
// "name" or "image_url" instead of "image" are accepted.
func Normalize(raw map[string]any) (Product, error) {
	id := coerceString(raw["id"])
	if id == "" {
		return Product{}, ErrMissingID
	}

	name := coerceString(raw["name"])
	if name == "" {
		name = coerceString(raw["title"])
	}
	image := coerceString(raw["image"])
	if image == "" {
		image = coerceString(raw["image_url"])
	}

	price := coerceFloat(raw["price"])
	if price < 0 {
		return Product{}, fmt.Errorf("catalog: product %s has negative price %v", id, price)
	}

	return Product{
		ID:          id,
		Name:        name,
		Description: coerceString(raw["description"]),
		Price:       price,
		Stock:       int(coerceFloat(raw["stock"])),
		Image:       image,
		Category:    coerceString(raw["category"]),
	}, nil
}

// coerceString renders ids and labels that may arrive as strings or numbers.
func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; integral ids print without
		// a fraction.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// coerceFloat converts numeric fields, defaulting to 0 on missing or
// invalid values.
func coerceFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

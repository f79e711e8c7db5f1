// Package cart implements the cart state for one client.
//
// Each line caches the product's display fields as they were when the
// line was added; the catalog's current truth may drift and that is
// accepted. Adding a product already in the cart increments the existing
// line's quantity by one; repeated adds never create duplicate lines.
package cart

import (
	"context"
	"errors"

	"github.com/shopfront-dev/shopfront/internal/catalog"
	"github.com/shopfront-dev/shopfront/pkg/reactive"
	"github.com/shopfront-dev/shopfront/pkg/storage"
	"github.com/shopfront-dev/shopfront/pkg/store"
)

// Key is the storage key the cart snapshot persists under.
const Key = "cart"

// ErrNoProductID is returned when Add is given a product without an id.
var ErrNoProductID = errors.New("cart: product has no id")

// Line is one distinct product in the cart.
// Invariants: ProductID is unique within the cart and Quantity >= 1 for
// any line present.
type Line struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	Quantity  int     `json:"quantity"`
}

// Store holds a client's cart.
type Store struct {
	inner *store.Store[[]Line]
}

// New creates a cart store for the given client.
func New(kv storage.KV, clientID string, opts ...store.Option) *Store {
	return &Store{inner: store.New(kv, clientID, Key, []Line(nil), opts...)}
}

// Load hydrates the cart from storage.
func (s *Store) Load(ctx context.Context) error {
	return s.inner.Load(ctx)
}

// Lines returns the current cart snapshot.
func (s *Store) Lines() []Line {
	return s.inner.Get()
}

// Count returns the total quantity across all lines.
func (s *Store) Count() int {
	n := 0
	for _, l := range s.inner.Get() {
		n += l.Quantity
	}
	return n
}

// Subtotal returns the price-times-quantity sum across all lines.
func (s *Store) Subtotal() float64 {
	total := 0.0
	for _, l := range s.inner.Get() {
		total += l.Price * float64(l.Quantity)
	}
	return total
}

// Add puts a product in the cart. If a line for the product already
// exists its quantity is incremented by one; otherwise a new line with
// quantity one is appended, caching the product's display fields.
func (s *Store) Add(ctx context.Context, p catalog.Product) error {
	if p.ID == "" {
		return ErrNoProductID
	}

	return s.inner.Update(ctx, func(lines []Line) []Line {
		next := make([]Line, len(lines))
		copy(next, lines)
		for i, l := range next {
			if l.ProductID == p.ID {
				next[i].Quantity++
				return next
			}
		}
		return append(next, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Quantity:  1,
		})
	})
}

// UpdateQuantity sets the quantity of an existing line. A quantity below
// one removes the line. Updating an absent product is a no-op: a line can
// only be created through Add, which caches the display fields.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	return s.inner.Update(ctx, func(lines []Line) []Line {
		for i, l := range lines {
			if l.ProductID != productID {
				continue
			}
			next := make([]Line, len(lines))
			copy(next, lines)
			if quantity < 1 {
				return append(next[:i], next[i+1:]...)
			}
			next[i].Quantity = quantity
			return next
		}
		return lines
	})
}

// Remove deletes the line for a product. Removing an absent product is a
// no-op, so Remove is idempotent.
func (s *Store) Remove(ctx context.Context, productID string) error {
	return s.inner.Update(ctx, func(lines []Line) []Line {
		for i, l := range lines {
			if l.ProductID == productID {
				next := make([]Line, len(lines))
				copy(next, lines)
				return append(next[:i], next[i+1:]...)
			}
		}
		return lines
	})
}

// Clear empties the cart and deletes its persisted record.
func (s *Store) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// Subscribe registers fn to run after every cart change.
func (s *Store) Subscribe(fn func([]Line)) *reactive.Subscription {
	return s.inner.Subscribe(fn)
}

// ApplyRemote applies a cart snapshot written by another browsing context.
func (s *Store) ApplyRemote(ev storage.Event) {
	s.inner.ApplyRemote(ev)
}

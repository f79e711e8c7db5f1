// Package wishlist implements the saved-products state for one client.
// It is the cart without quantities: a set of product ids with cached
// display fields, persisted as a full snapshot on every mutation.
package wishlist

import (
	"context"
	"errors"

	"github.com/shopfront-dev/shopfront/internal/catalog"
	"github.com/shopfront-dev/shopfront/pkg/reactive"
	"github.com/shopfront-dev/shopfront/pkg/storage"
	"github.com/shopfront-dev/shopfront/pkg/store"
)

// Key is the storage key the wishlist snapshot persists under.
const Key = "wishlist"

// ErrNoProductID is returned when Add is given a product without an id.
var ErrNoProductID = errors.New("wishlist: product has no id")

// Entry is one saved product. ProductID is unique within the wishlist.
type Entry struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
}

// Store holds a client's wishlist.
type Store struct {
	inner *store.Store[[]Entry]
}

// New creates a wishlist store for the given client.
func New(kv storage.KV, clientID string, opts ...store.Option) *Store {
	return &Store{inner: store.New(kv, clientID, Key, []Entry(nil), opts...)}
}

// Load hydrates the wishlist from storage.
func (s *Store) Load(ctx context.Context) error {
	return s.inner.Load(ctx)
}

// Entries returns the current wishlist snapshot.
func (s *Store) Entries() []Entry {
	return s.inner.Get()
}

// Contains reports whether a product is saved. Pure query, no side effect.
func (s *Store) Contains(productID string) bool {
	for _, e := range s.inner.Get() {
		if e.ProductID == productID {
			return true
		}
	}
	return false
}

// Add saves a product. If it is already saved the cached display fields
// are refreshed in place; the entry is never duplicated.
func (s *Store) Add(ctx context.Context, p catalog.Product) error {
	if p.ID == "" {
		return ErrNoProductID
	}

	entry := Entry{ProductID: p.ID, Name: p.Name, Price: p.Price, Image: p.Image}
	return s.inner.Update(ctx, func(entries []Entry) []Entry {
		next := make([]Entry, len(entries))
		copy(next, entries)
		for i, e := range next {
			if e.ProductID == p.ID {
				next[i] = entry
				return next
			}
		}
		return append(next, entry)
	})
}

// Remove deletes the entry for a product. Idempotent.
func (s *Store) Remove(ctx context.Context, productID string) error {
	return s.inner.Update(ctx, func(entries []Entry) []Entry {
		for i, e := range entries {
			if e.ProductID == productID {
				next := make([]Entry, len(entries))
				copy(next, entries)
				return append(next[:i], next[i+1:]...)
			}
		}
		return entries
	})
}

// Clear empties the wishlist and deletes its persisted record.
func (s *Store) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// Subscribe registers fn to run after every wishlist change.
func (s *Store) Subscribe(fn func([]Entry)) *reactive.Subscription {
	return s.inner.Subscribe(fn)
}

// ApplyRemote applies a wishlist snapshot written by another browsing context.
func (s *Store) ApplyRemote(ev storage.Event) {
	s.inner.ApplyRemote(ev)
}

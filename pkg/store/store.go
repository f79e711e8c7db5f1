// Package store provides the persisted, subscribable state container the
// session, cart, and wishlist layers are built on.
//
// A Store wraps a reactive signal and mirrors every mutation to a durable
// storage key, in that order: persist first, then update the in-memory
// snapshot and notify subscribers. Immediately after any successful
// mutating call the persisted snapshot equals the in-memory snapshot.
//
// Example:
//
//	cart := store.New(kv, clientID, "cart", []Line(nil))
//	cart.Load(ctx)
//	cart.Update(ctx, func(lines []Line) []Line { ... })
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront-dev/shopfront/pkg/reactive"
	"github.com/shopfront-dev/shopfront/pkg/storage"
)

// Store is a durable snapshot of type T for one client.
type Store[T any] struct {
	kv       storage.KV
	clientID string
	key      string
	origin   string
	initial  T

	sig *reactive.Signal[T]

	mu        sync.Mutex
	updatedAt time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	origin string
}

// WithOrigin sets the origin stamped on this store's writes. Storage
// events carrying the same origin are ignored by ApplyRemote, so a store
// never re-applies its own writes. Default: a random UUID per store.
func WithOrigin(origin string) Option {
	return func(o *options) {
		if origin != "" {
			o.origin = origin
		}
	}
}

// New creates a store persisting under the given key for the given client.
// The store starts at the initial value; call Load to hydrate from storage.
func New[T any](kv storage.KV, clientID, key string, initial T, opts ...Option) *Store[T] {
	o := &options{origin: uuid.NewString()}
	for _, opt := range opts {
		opt(o)
	}

	return &Store[T]{
		kv:       kv,
		clientID: clientID,
		key:      key,
		origin:   o.origin,
		initial:  initial,
		sig:      reactive.NewSignal(initial),
	}
}

// Load hydrates the in-memory snapshot from storage.
// A missing key leaves the initial value in place.
func (s *Store[T]) Load(ctx context.Context) error {
	data, err := s.kv.Get(ctx, s.clientID, s.key)
	if err != nil {
		return fmt.Errorf("store %q: load: %w", s.key, err)
	}
	if data == nil {
		return nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("store %q: decode snapshot: %w", s.key, err)
	}
	s.sig.Set(value)
	return nil
}

// Get returns the current snapshot.
func (s *Store[T]) Get() T {
	return s.sig.Get()
}

// Set persists and applies a new snapshot.
// On a persistence error the in-memory snapshot is left untouched, so
// memory and storage never diverge.
func (s *Store[T]) Set(ctx context.Context, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, value)
}

// Update atomically applies fn to the current snapshot, persisting the
// result. fn must not mutate its argument's shared references.
func (s *Store[T]) Update(ctx context.Context, fn func(T) T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, fn(s.sig.Get()))
}

// Clear deletes the persisted record and resets the snapshot to the
// store's initial value.
func (s *Store[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.clientID, s.key, s.origin); err != nil {
		return fmt.Errorf("store %q: clear: %w", s.key, err)
	}
	s.updatedAt = time.Now()
	s.sig.Set(s.initial)
	return nil
}

// Subscribe registers fn to run after every snapshot change.
func (s *Store[T]) Subscribe(fn func(T)) *reactive.Subscription {
	return s.sig.Subscribe(fn)
}

// ApplyRemote applies a storage event originating from another browsing
// context. Events for other keys, or stamped with this store's own
// origin, are ignored. Last write wins; there is no merge.
func (s *Store[T]) ApplyRemote(ev storage.Event) {
	if ev.Key != s.key || ev.Origin == s.origin {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.updatedAt = time.Now()
	if ev.Data == nil {
		s.sig.Set(s.initial)
		return
	}

	var value T
	if err := json.Unmarshal(ev.Data, &value); err != nil {
		// A context wrote something this version can't read; keep the
		// local snapshot rather than failing the view.
		return
	}
	s.sig.Set(value)
}

// Key returns the storage key this store persists under.
func (s *Store[T]) Key() string {
	return s.key
}

// Origin returns the origin stamped on this store's writes.
func (s *Store[T]) Origin() string {
	return s.origin
}

// UpdatedAt reports when the snapshot last changed through this store.
// Diagnostic only; cross-context ordering is still last write wins.
func (s *Store[T]) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// write persists value and then applies it. Caller must hold mu.
func (s *Store[T]) write(ctx context.Context, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store %q: encode snapshot: %w", s.key, err)
	}
	if err := s.kv.Set(ctx, s.clientID, s.key, data, s.origin); err != nil {
		return fmt.Errorf("store %q: persist: %w", s.key, err)
	}
	s.updatedAt = time.Now()
	s.sig.Set(value)
	return nil
}

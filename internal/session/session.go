// Package session tracks the current authenticated identity for one
// client and mirrors it to durable storage under the two records the
// storefront has always used: the opaque token and the serialized user.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shopfront-dev/shopfront/internal/identity"
	"github.com/shopfront-dev/shopfront/pkg/reactive"
	"github.com/shopfront-dev/shopfront/pkg/storage"
)

// Storage keys. Both must be present for a client to count as signed in.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// userRecord is the persisted shape under UserKey. The token is not
// duplicated here; it lives under TokenKey.
type userRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Store holds the signed-in identity for one client.
// A nil snapshot means signed out.
type Store struct {
	kv       storage.KV
	clientID string
	origin   string
	provider identity.Provider
	logger   *slog.Logger

	sig *reactive.Signal[*identity.Identity]
	mu  sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithOrigin sets the origin stamped on this store's writes.
func WithOrigin(origin string) Option {
	return func(s *Store) {
		if origin != "" {
			s.origin = origin
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a session store for the given client, authenticating
// through the given provider.
func New(kv storage.KV, clientID string, provider identity.Provider, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		clientID: clientID,
		origin:   uuid.NewString(),
		provider: provider,
		logger:   slog.Default(),
		sig:      reactive.NewSignal[*identity.Identity](nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates the identity from storage. The client counts as signed in
// only when both the token and the user record are present and readable.
func (s *Store) Load(ctx context.Context) error {
	id, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.sig.Set(id)
	return nil
}

// Current returns the signed-in identity, if any.
func (s *Store) Current() (identity.Identity, bool) {
	id := s.sig.Get()
	if id == nil {
		return identity.Identity{}, false
	}
	return *id, true
}

// Authenticated reports whether an identity is present. This is the whole
// of the route-guard predicate.
func (s *Store) Authenticated() bool {
	return s.sig.Get() != nil
}

// Login authenticates through the provider and persists the identity.
func (s *Store) Login(ctx context.Context, email, password string) (identity.Identity, error) {
	id, err := s.provider.Login(ctx, email, password)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := s.apply(ctx, id); err != nil {
		return identity.Identity{}, err
	}
	s.logger.Info("signed in", "client", s.clientID, "user", id.UserID)
	return id, nil
}

// Register creates an account through the provider and persists the
// resulting identity.
func (s *Store) Register(ctx context.Context, email, password, name string) (identity.Identity, error) {
	id, err := s.provider.Register(ctx, email, password, name)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := s.apply(ctx, id); err != nil {
		return identity.Identity{}, err
	}
	s.logger.Info("registered", "client", s.clientID, "user", id.UserID)
	return id, nil
}

// Update carries the profile fields a user may change. Nil fields are
// left as they are.
type Update struct {
	Name  *string
	Email *string
}

// UpdateUser merges fields into the current identity and rewrites the
// persisted user record. No-op when signed out.
func (s *Store) UpdateUser(ctx context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.sig.Get()
	if cur == nil {
		return nil
	}

	id := *cur
	if u.Name != nil {
		id.Name = *u.Name
	}
	if u.Email != nil {
		id.Email = *u.Email
	}

	if err := s.persistUser(ctx, id); err != nil {
		return err
	}
	s.sig.Set(&id)
	return nil
}

// Logout clears the identity and deletes both persisted records.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.clientID, TokenKey, s.origin); err != nil {
		return fmt.Errorf("session: clear token: %w", err)
	}
	if err := s.kv.Delete(ctx, s.clientID, UserKey, s.origin); err != nil {
		return fmt.Errorf("session: clear user: %w", err)
	}
	s.sig.Set(nil)
	return nil
}

// DeleteUser removes the account's local state. Observable behavior is
// identical to Logout.
func (s *Store) DeleteUser(ctx context.Context) error {
	return s.Logout(ctx)
}

// Subscribe registers fn to run whenever the identity changes.
// fn receives nil on sign-out.
func (s *Store) Subscribe(fn func(*identity.Identity)) *reactive.Subscription {
	return s.sig.Subscribe(fn)
}

// ApplyRemote resynchronizes the identity after a storage event from
// another browsing context touching either session key. The event payload
// is ignored; both records are re-read so the two keys are always
// interpreted together.
func (s *Store) ApplyRemote(ctx context.Context, ev storage.Event) {
	if ev.Origin == s.origin {
		return
	}
	if ev.Key != TokenKey && ev.Key != UserKey {
		return
	}

	id, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("session resync failed", "client", s.clientID, "error", err)
		return
	}
	s.sig.Set(id)
}

// apply persists a fresh identity and updates the snapshot.
func (s *Store) apply(ctx context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, s.clientID, TokenKey, []byte(id.Token), s.origin); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}
	if err := s.persistUser(ctx, id); err != nil {
		return err
	}
	s.sig.Set(&id)
	return nil
}

// persistUser rewrites the user record. Caller must hold mu.
func (s *Store) persistUser(ctx context.Context, id identity.Identity) error {
	data, err := json.Marshal(userRecord{ID: id.UserID, Name: id.Name, Email: id.Email})
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	if err := s.kv.Set(ctx, s.clientID, UserKey, data, s.origin); err != nil {
		return fmt.Errorf("session: persist user: %w", err)
	}
	return nil
}

// read interprets the two storage records as one identity.
func (s *Store) read(ctx context.Context) (*identity.Identity, error) {
	token, err := s.kv.Get(ctx, s.clientID, TokenKey)
	if err != nil {
		return nil, fmt.Errorf("session: read token: %w", err)
	}
	userData, err := s.kv.Get(ctx, s.clientID, UserKey)
	if err != nil {
		return nil, fmt.Errorf("session: read user: %w", err)
	}
	if token == nil || userData == nil {
		return nil, nil
	}

	var rec userRecord
	if err := json.Unmarshal(userData, &rec); err != nil {
		return nil, fmt.Errorf("session: decode user: %w", err)
	}

	return &identity.Identity{
		Token:  string(token),
		UserID: rec.ID,
		Name:   rec.Name,
		Email:  rec.Email,
	}, nil
}

package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopfront-dev/shopfront/internal/cart"
	"github.com/shopfront-dev/shopfront/internal/identity"
	"github.com/shopfront-dev/shopfront/internal/session"
	"github.com/shopfront-dev/shopfront/internal/wishlist"
	"github.com/shopfront-dev/shopfront/pkg/storage"
	"github.com/shopfront-dev/shopfront/pkg/store"
)

// State is the live store set for one browsing context: the session,
// cart, and wishlist a single tab reads and writes. All three share one
// write origin so storage events from this context are recognized and
// skipped on the way back in.
type State struct {
	ClientID string
	Session  *session.Store
	Cart     *cart.Store
	Wishlist *wishlist.Store

	origin   string
	stop     func()
	lastUsed time.Time
}

// Idle states are reaped so cookie-less crawlers minting a fresh client
// ID per request can't grow the registry without bound. The durable
// storage behind an evicted State is untouched; the next request simply
// rehydrates.
const (
	stateIdleTTL      = 30 * time.Minute
	stateReapInterval = 5 * time.Minute
)

// Registry tracks one State per browsing context and keeps each State
// converged with the durable storage behind it: when the backend can
// watch for writes, every event is replayed into the context's stores
// and fanned out to the context's other tabs through the hub.
type Registry struct {
	kv       storage.KV
	provider identity.Provider
	hub      *Hub
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*State

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a Registry over kv. hub may be nil when no
// websocket fanout is wanted (tests). The registry reaps idle states in
// the background until Close.
func NewRegistry(kv storage.KV, provider identity.Provider, hub *Hub, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		kv:       kv,
		provider: provider,
		hub:      hub,
		logger:   logger.With("component", "state"),
		states:   make(map[string]*State),
		done:     make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Get returns the State for clientID, hydrating a new one from durable
// storage on first use.
func (r *Registry) Get(ctx context.Context, clientID string) (*State, error) {
	r.mu.Lock()
	if st, ok := r.states[clientID]; ok {
		st.lastUsed = time.Now()
		r.mu.Unlock()
		return st, nil
	}
	r.mu.Unlock()

	st, err := r.build(ctx, clientID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Lost the race: keep the first one and drop ours.
	if existing, ok := r.states[clientID]; ok {
		existing.lastUsed = time.Now()
		if st.stop != nil {
			st.stop()
		}
		return existing, nil
	}
	st.lastUsed = time.Now()
	r.states[clientID] = st
	return st, nil
}

func (r *Registry) build(ctx context.Context, clientID string) (*State, error) {
	origin := uuid.NewString()
	st := &State{
		ClientID: clientID,
		Session:  session.New(r.kv, clientID, r.provider, session.WithOrigin(origin), session.WithLogger(r.logger)),
		Cart:     cart.New(r.kv, clientID, store.WithOrigin(origin)),
		Wishlist: wishlist.New(r.kv, clientID, store.WithOrigin(origin)),
		origin:   origin,
	}

	if err := st.Session.Load(ctx); err != nil {
		return nil, err
	}
	if err := st.Cart.Load(ctx); err != nil {
		return nil, err
	}
	if err := st.Wishlist.Load(ctx); err != nil {
		return nil, err
	}

	if w, ok := r.kv.(storage.Watcher); ok {
		ch, stop := w.Watch(clientID)
		st.stop = stop
		go r.watch(clientID, st, ch)
	}
	return st, nil
}

// watch replays storage events into the context's stores and forwards
// them to the context's connected tabs.
//
// The stores skip events carrying their own origin, but the hub frame
// goes out for every write: all of a browser's tabs share this State,
// so a write made through any of them still has to reach the others.
// Tabs tolerate being told about their own write; they re-read state
// they already have.
func (r *Registry) watch(clientID string, st *State, ch <-chan storage.Event) {
	for ev := range ch {
		st.Session.ApplyRemote(context.Background(), ev)
		st.Cart.ApplyRemote(ev)
		st.Wishlist.ApplyRemote(ev)

		if r.hub != nil {
			r.hub.Publish(clientID, Frame{
				Event: "shopfront:storage",
				Payload: map[string]any{
					"key": ev.Key,
				},
			})
		}
	}
}

// janitor reaps idle states until Close.
func (r *Registry) janitor() {
	ticker := time.NewTicker(stateReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reap(time.Now().Add(-stateIdleTTL))
		}
	}
}

// reap releases every State last used before cutoff.
func (r *Registry) reap(cutoff time.Time) {
	r.mu.Lock()
	var idle []*State
	for clientID, st := range r.states {
		if st.lastUsed.Before(cutoff) {
			delete(r.states, clientID)
			idle = append(idle, st)
		}
	}
	r.mu.Unlock()

	for _, st := range idle {
		if st.stop != nil {
			st.stop()
		}
	}
	if len(idle) > 0 {
		r.logger.Debug("reaped idle states", "count", len(idle))
	}
}

// Release drops the State for clientID and stops its watcher.
func (r *Registry) Release(clientID string) {
	r.mu.Lock()
	st, ok := r.states[clientID]
	if ok {
		delete(r.states, clientID)
	}
	r.mu.Unlock()

	if ok && st.stop != nil {
		st.stop()
	}
}

// Close stops the janitor and releases every State.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	states := r.states
	r.states = make(map[string]*State)
	r.mu.Unlock()

	for _, st := range states {
		if st.stop != nil {
			st.stop()
		}
	}
}

package storage

import (
	"context"
	"sync"
)

// watchBuffer is the per-subscriber event buffer. Events beyond it are
// dropped rather than blocking the writer (best-effort delivery).
const watchBuffer = 16

// MemoryKV is an in-memory storage backend.
// It's the default backend and suitable for single-server deployments.
// For multi-server deployments, use RedisKV.
type MemoryKV struct {
	mu       sync.RWMutex
	clients  map[string]map[string][]byte
	watchers map[string]map[uint64]chan Event
	nextID   uint64
	closed   bool
}

// NewMemoryKV creates a new in-memory storage backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		clients:  make(map[string]map[string][]byte),
		watchers: make(map[string]map[uint64]chan Event),
	}
}

// Get retrieves the value for a client's key.
func (m *MemoryKV) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed{}
	}

	area, ok := m.clients[clientID]
	if !ok {
		return nil, nil
	}
	data, ok := area[key]
	if !ok {
		return nil, nil
	}

	// Return a copy to prevent mutations
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	return dataCopy, nil
}

// Set stores the value for a client's key and notifies watchers.
func (m *MemoryKV) Set(ctx context.Context, clientID, key string, data []byte, origin string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed{}
	}

	area, ok := m.clients[clientID]
	if !ok {
		area = make(map[string][]byte)
		m.clients[clientID] = area
	}

	// Store a copy to prevent mutations
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	area[key] = dataCopy

	// Deliver while holding the lock so cancel can't close a channel
	// mid-send. Sends never block.
	m.deliver(clientID, Event{ClientID: clientID, Key: key, Data: dataCopy, Origin: origin})
	m.mu.Unlock()
	return nil
}

// Delete removes a client's key and notifies watchers with a nil-data event.
func (m *MemoryKV) Delete(ctx context.Context, clientID, key, origin string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed{}
	}

	if area, ok := m.clients[clientID]; ok {
		delete(area, key)
	}

	m.deliver(clientID, Event{ClientID: clientID, Key: key, Origin: origin})
	m.mu.Unlock()
	return nil
}

// Watch subscribes to storage events for a client.
func (m *MemoryKV) Watch(clientID string) (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, watchBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	m.nextID++
	id := m.nextID

	subs, ok := m.watchers[clientID]
	if !ok {
		subs = make(map[uint64]chan Event)
		m.watchers[clientID] = subs
	}
	subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.watchers[clientID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(m.watchers, clientID)
			}
		}
	}
	return ch, cancel
}

// Close shuts down the backend and releases resources.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	for _, subs := range m.watchers {
		for _, ch := range subs {
			close(ch)
		}
	}
	m.clients = nil
	m.watchers = nil
	return nil
}

// Count returns the number of keys stored for a client.
// This is for monitoring/testing purposes.
func (m *MemoryKV) Count(clientID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[clientID])
}

// deliver sends an event to each watcher of a client without blocking.
// Caller must hold mu.
func (m *MemoryKV) deliver(clientID string, ev Event) {
	for _, ch := range m.watchers[clientID] {
		select {
		case ch <- ev:
		default:
			// Slow consumer; drop.
		}
	}
}

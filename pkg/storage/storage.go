package storage

import "context"

// KV defines the interface for durable per-client key-value backends.
// Implementations must be safe for concurrent use.
//
// A client is one browser profile: every browsing context (tab) of that
// client reads and writes the same keys. Writes are full-snapshot and
// last-write-wins; there is no merge.
type KV interface {
	// Get retrieves the value stored for a client's key.
	// Returns (nil, nil) if the key doesn't exist.
	// Returns (nil, err) on backend errors.
	Get(ctx context.Context, clientID, key string) ([]byte, error)

	// Set stores the value for a client's key, overwriting any previous
	// value. The origin identifies the browsing context performing the
	// write so watchers can skip events for their own writes.
	Set(ctx context.Context, clientID, key string, data []byte, origin string) error

	// Delete removes a client's key. Should not return an error if the
	// key doesn't exist.
	Delete(ctx context.Context, clientID, key, origin string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Event describes a write observed on a client's storage area.
// Data is nil for deletes.
type Event struct {
	ClientID string `json:"clientId"`
	Key      string `json:"key"`
	Data     []byte `json:"data,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// Watcher is implemented by backends that can deliver storage events to
// other browsing contexts of the same client. Delivery is best-effort:
// slow consumers may miss events, and no ordering is guaranteed beyond
// what the backend itself provides.
type Watcher interface {
	// Watch returns a channel of events for the given client and a
	// cancel function that releases the subscription.
	Watch(clientID string) (<-chan Event, func())
}

// ErrClosed is returned when operations are attempted on a closed backend.
type ErrClosed struct{}

func (e ErrClosed) Error() string {
	return "storage: backend is closed"
}

package reactive

import (
	"reflect"
	"sync"
	"sync/atomic"
)

var idCounter uint64

func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// Subscriber receives the new value after a signal changes.
type Subscriber[T any] func(T)

// Subscription identifies a registered subscriber and allows removal.
type Subscription struct {
	id     uint64
	cancel func(uint64)
	once   sync.Once
}

// Cancel removes the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(func() { s.cancel(s.id) })
}

// Signal is a reactive value container.
// Subscribers registered with Subscribe are notified whenever the value
// changes. Notification happens synchronously on the mutating goroutine,
// after the new value is visible to readers.
type Signal[T any] struct {
	id uint64

	// value is the current signal value.
	value T

	// mu protects the value.
	mu sync.RWMutex

	// subs are the registered subscribers, keyed by subscription ID.
	subs  map[uint64]Subscriber[T]
	subMu sync.RWMutex

	// equal is the equality function used to determine if the value changed.
	// If nil, uses default equality checking.
	equal func(T, T) bool
}

// NewSignal creates a new signal with the given initial value.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		id:    nextID(),
		value: initial,
		subs:  make(map[uint64]Subscriber[T]),
	}
}

// Get returns the current value.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Peek is an alias for Get kept for call sites that want to signal
// "read without any reactive intent".
func (s *Signal[T]) Peek() T {
	return s.Get()
}

// Set updates the signal's value and notifies subscribers if the value changed.
// Uses the signal's equality function to determine if the value changed.
func (s *Signal[T]) Set(value T) {
	s.mu.Lock()
	changed := !s.equals(s.value, value)
	if changed {
		s.value = value
	}
	newValue := s.value
	s.mu.Unlock()

	if changed {
		s.notify(newValue)
	}
}

// Update atomically reads and updates the signal's value.
// The function receives the current value and returns the new value.
func (s *Signal[T]) Update(fn func(T) T) {
	s.mu.Lock()
	oldValue := s.value
	newValue := fn(oldValue)
	changed := !s.equals(oldValue, newValue)
	if changed {
		s.value = newValue
	}
	s.mu.Unlock()

	if changed {
		s.notify(newValue)
	}
}

// Subscribe registers a subscriber and returns its subscription handle.
// The subscriber is not called with the current value on registration.
func (s *Signal[T]) Subscribe(fn Subscriber[T]) *Subscription {
	if fn == nil {
		return &Subscription{}
	}

	id := nextID()
	s.subMu.Lock()
	s.subs[id] = fn
	s.subMu.Unlock()

	return &Subscription{id: id, cancel: s.unsubscribe}
}

// WithEquals returns the signal configured with a custom equality function.
// This is useful for custom types where reflect.DeepEqual is too expensive
// or has incorrect semantics.
func (s *Signal[T]) WithEquals(fn func(T, T) bool) *Signal[T] {
	s.equal = fn
	return s
}

// ID returns the unique identifier for this signal.
func (s *Signal[T]) ID() uint64 {
	return s.id
}

func (s *Signal[T]) unsubscribe(id uint64) {
	s.subMu.Lock()
	delete(s.subs, id)
	s.subMu.Unlock()
}

// notify calls all subscribers with the new value.
// Uses copy-before-notify to avoid holding locks during callbacks.
func (s *Signal[T]) notify(value T) {
	s.subMu.RLock()
	subs := make([]Subscriber[T], 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(value)
	}
}

// equals checks if two values are equal using the configured equality function.
func (s *Signal[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals provides type-appropriate equality checking.
// Uses == for comparable types and reflect.DeepEqual for others.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int64:
		return av == any(b).(int64)
	case uint64:
		return av == any(b).(uint64)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		// Fall back to reflect.DeepEqual for slices, maps, structs, etc.
		return reflect.DeepEqual(a, b)
	}
}

// Package reactive provides the subscribable value primitive the state
// stores are built on.
//
// A Signal holds a single value. Mutations through Set or Update notify
// every registered subscriber synchronously, so a view that subscribes to a
// store's signal observes each change before the mutating call returns.
package reactive

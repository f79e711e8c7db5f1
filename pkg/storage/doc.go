// Package storage provides the durable per-client key-value area that
// backs the session, cart, and wishlist stores.
//
// The area plays the role browser local storage plays in a client-rendered
// app: origin-scoped, shared across every browsing context of the same
// client, surviving reloads. Backends that also implement Watcher deliver
// change events so contexts sharing a client converge after concurrent
// writes (last write wins).
//
// Three backends are provided: MemoryKV (default, single process),
// RedisKV (shared across processes, events via pub/sub), and SQLKV
// (PostgreSQL, no event delivery).
package storage

// Package store is the persisted key/value layer that anti-reload keeps its
// view state, navigation flag and response cache in.
//
// A store models the browser's per-origin session storage: string values
// under string keys, a capacity ceiling, and no atomicity across keys.
package store

import "errors"

var (
	// ErrQuotaExceeded is returned by Set when the write would take the
	// namespace over its capacity ceiling.
	ErrQuotaExceeded = errors.New("store quota exceeded")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is the interface for a persisted store provider.
// Every provider is scoped to a single namespace (usually one origin)
// chosen when it is created.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the value for the given key.
	// The boolean reports whether the key exists.
	Get(key string) (string, bool, error)
	// Set stores the value under the given key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes the given keys. Missing keys are not an error.
	Remove(keys ...string) error
	// Keys lists every key in the namespace.
	Keys() ([]string, error)
	// Close releases the underlying resources.
	Close() error
}

// Usage returns the number of bytes used by the namespace,
// counted as the sum of key and value lengths.
func Usage(s Store) (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, k := range keys {
		v, ok, err := s.Get(k)
		if err != nil {
			return 0, err
		}
		if ok {
			total += len(k) + len(v)
		}
	}
	return total, nil
}

// Package secretstore persists small string secrets (the session token pair)
// behind a key/value interface with interchangeable backends.
package secretstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("secretstore: not found")

	// ErrDecrypt is returned when a sealed file cannot be opened with the
	// configured passphrase.
	ErrDecrypt = errors.New("secretstore: decrypt failed")
)

// Store is a durable key/value store for secrets.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

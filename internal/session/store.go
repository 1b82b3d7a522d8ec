package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session key not found")
	ErrConflict = errors.New("session key modified concurrently")
)

// UpdateFunc receives the current value and returns the value to store.
// Any error it returns aborts the update and is passed back unchanged.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a TTL'd key-value store for checkout sessions.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns ErrNotFound when the key is absent or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error

	// Update atomically replaces an existing value and resets its TTL.
	// It returns ErrNotFound when the key is absent and ErrConflict when
	// concurrent writers kept winning.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}

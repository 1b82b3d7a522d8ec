package cache

import (
	"context"
	"errors"

	"github.com/fjod/shopcart/internal/domain"
)

// CartCache is a best-effort read cache in front of primary cart storage.
// It is never consulted by mutations.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

package repository

import (
	"context"
	"errors"

	"github.com/fjod/shopcart/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// CartRepository is the primary cart storage.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	// FindOrCreate returns the user's cart, creating an empty one if none exists.
	FindOrCreate(ctx context.Context, userID string) (*domain.Cart, error)

	// GetCart returns ErrCartNotFound when the user has no cart.
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	// Save replaces the cart's items if the stored version still equals
	// cart.Version. On success cart.Version and cart.UpdatedAt are advanced;
	// otherwise ErrVersionConflict is returned and nothing is written.
	Save(ctx context.Context, cart *domain.Cart) error
}

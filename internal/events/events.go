package events

import (
	"context"
	"time"

	"github.com/fjod/shopcart/internal/domain"
)

const (
	TopicCheckoutCompleted     = "checkout-completed"
	EventTypeCheckoutCompleted = "checkout.completed"
)

// CheckoutCompleted is published once per session when it reaches COMPLETED.
// UserID is empty for guest checkouts.
type CheckoutCompleted struct {
	EventID           string                   `json:"event_id"`
	SessionToken      string                   `json:"session_token"`
	UserID            string                   `json:"user_id,omitempty"`
	GuestEmail        string                   `json:"guest_email,omitempty"`
	CartID            string                   `json:"cart_id,omitempty"`
	OrderID           string                   `json:"order_id"`
	PaymentMethodType domain.PaymentMethodType `json:"payment_method_type"`
	Items             []domain.CartItem        `json:"items"`
	Pricing           domain.Pricing           `json:"pricing"`
	CompletedAt       time.Time                `json:"completed_at"`
}

type Publisher interface {
	PublishCheckoutCompleted(ctx context.Context, evt CheckoutCompleted) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishCheckoutCompleted(context.Context, CheckoutCompleted) error {
	return nil
}

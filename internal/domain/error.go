package domain

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindInactive                Kind = "inactive"
	KindInvalidSku              Kind = "invalid_sku"
	KindItemNotFound            Kind = "item_not_found"
	KindInsufficientStock       Kind = "insufficient_stock"
	KindCartFull                Kind = "cart_full"
	KindMaxQuantityExceeded     Kind = "max_quantity_exceeded"
	KindCartEmpty               Kind = "cart_empty"
	KindItemsRequired           Kind = "items_required"
	KindCartUpdateFailed        Kind = "cart_update_failed"
	KindCartNotFound            Kind = "cart_not_found"
	KindSessionNotFound         Kind = "session_not_found"
	KindSessionExpired          Kind = "session_expired"
	KindSessionAlreadyCompleted Kind = "session_already_completed"
	KindShippingAddressRequired Kind = "shipping_address_required"
	KindShippingMethodRequired  Kind = "shipping_method_required"
	KindInvalid                 Kind = "invalid"
	KindInternal                Kind = "internal"
)

// Error is an application error carrying a Kind and a user-safe message.
type Error struct {
	Kind Kind

	// Message is safe to show to users.
	Message string

	// Op is the operation where the error occurred (e.g. "cart.add").
	Op string

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so sentinel
// errors match regardless of Op, Message or wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E creates a new error of the given kind.
func E(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and message. Returns nil if err is nil.
func Wrap(err error, kind Kind, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Internal wraps err as an internal error.
func Internal(err error, op, message string) error {
	return Wrap(err, KindInternal, op, message)
}

// ErrorKind extracts the kind from an error.
// Returns KindInternal for non-domain errors and "" for nil.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ErrorMessage extracts a user-facing message from an error.
// Internal errors never leak their details.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Kind != KindCartUpdateFailed {
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// Sentinel errors, one per kind. Compare with errors.Is.
var (
	ErrNotFound                = &Error{Kind: KindNotFound, Message: "Product not found"}
	ErrInactive                = &Error{Kind: KindInactive, Message: "Product is not active"}
	ErrInvalidSku              = &Error{Kind: KindInvalidSku, Message: "Invalid SKU for this product"}
	ErrItemNotFound            = &Error{Kind: KindItemNotFound, Message: "Item not found in cart"}
	ErrInsufficientStock       = &Error{Kind: KindInsufficientStock, Message: "Insufficient stock"}
	ErrCartFull                = &Error{Kind: KindCartFull, Message: "Cart is full"}
	ErrMaxQuantityExceeded     = &Error{Kind: KindMaxQuantityExceeded, Message: "Maximum quantity per item exceeded"}
	ErrCartEmpty               = &Error{Kind: KindCartEmpty, Message: "Cannot create checkout session with empty cart"}
	ErrItemsRequired           = &Error{Kind: KindItemsRequired, Message: "Items are required for guest checkout"}
	ErrCartUpdateFailed        = &Error{Kind: KindCartUpdateFailed, Message: "Failed to update cart"}
	ErrCartNotFound            = &Error{Kind: KindCartNotFound, Message: "Cart not found"}
	ErrSessionNotFound         = &Error{Kind: KindSessionNotFound, Message: "Checkout session not found"}
	ErrSessionExpired          = &Error{Kind: KindSessionExpired, Message: "Checkout session has expired"}
	ErrSessionAlreadyCompleted = &Error{Kind: KindSessionAlreadyCompleted, Message: "Checkout session is already completed"}
	ErrShippingAddressRequired = &Error{Kind: KindShippingAddressRequired, Message: "Shipping address is required"}
	ErrShippingMethodRequired  = &Error{Kind: KindShippingMethodRequired, Message: "Shipping method is required"}
	ErrInvalid                 = &Error{Kind: KindInvalid, Message: "Invalid request"}
)

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutStep is the position of a session in the checkout flow.
type CheckoutStep string

const (
	StepShipping       CheckoutStep = "SHIPPING"
	StepShippingMethod CheckoutStep = "SHIPPING_METHOD"
	StepPayment        CheckoutStep = "PAYMENT"
	StepCompleted      CheckoutStep = "COMPLETED"
)

func (s CheckoutStep) Valid() bool {
	switch s {
	case StepShipping, StepShippingMethod, StepPayment, StepCompleted:
		return true
	}
	return false
}

func (s CheckoutStep) String() string {
	return string(s)
}

// CheckoutStatus is the lifecycle status of a session.
// EXPIRED is never stored; it is derived at read time.
type CheckoutStatus string

const (
	CheckoutStatusActive    CheckoutStatus = "ACTIVE"
	CheckoutStatusCompleted CheckoutStatus = "COMPLETED"
	CheckoutStatusExpired   CheckoutStatus = "EXPIRED"
)

// Valid reports whether s may appear in a stored session. EXPIRED is derived,
// never stored.
func (s CheckoutStatus) Valid() bool {
	return s == CheckoutStatusActive || s == CheckoutStatusCompleted
}

func (s CheckoutStatus) String() string {
	return string(s)
}

// PaymentMethodType is how the shopper intends to pay.
type PaymentMethodType string

const (
	PaymentCreditCard     PaymentMethodType = "credit_card"
	PaymentBankTransfer   PaymentMethodType = "bank_transfer"
	PaymentCashOnDelivery PaymentMethodType = "cash_on_delivery"
)

func (p PaymentMethodType) Valid() bool {
	switch p {
	case PaymentCreditCard, PaymentBankTransfer, PaymentCashOnDelivery:
		return true
	}
	return false
}

// Address is a postal address captured during checkout.
type Address struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

// CartSnapshot freezes the priced line items at session creation.
type CartSnapshot struct {
	Items      []CartItem      `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalItems int             `json:"totalItems"`
}

// Pricing holds the monetary totals of a session.
type Pricing struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
}

// CheckoutSession is the ephemeral checkout document kept in the session store.
type CheckoutSession struct {
	SessionToken      string            `json:"sessionToken"`
	UserID            string            `json:"userId,omitempty"`
	GuestEmail        string            `json:"guestEmail,omitempty"`
	CartID            string            `json:"cartId,omitempty"`
	CurrentStep       CheckoutStep      `json:"currentStep"`
	Status            CheckoutStatus    `json:"status"`
	ShippingAddress   *Address          `json:"shippingAddress,omitempty"`
	BillingAddress    *Address          `json:"billingAddress,omitempty"`
	ShippingMethodID  string            `json:"shippingMethodId,omitempty"`
	PaymentMethodType PaymentMethodType `json:"paymentMethodType,omitempty"`
	CartSnapshot      CartSnapshot      `json:"cartSnapshot"`
	Pricing           Pricing           `json:"pricing"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	OrderID           string            `json:"orderId,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// IsGuest reports whether the session belongs to an unauthenticated shopper.
func (s *CheckoutSession) IsGuest() bool {
	return s.UserID == ""
}

// IsExpired reports whether now is past the session deadline.
func (s *CheckoutSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// EffectiveStatus is the stored status with expiry applied.
func (s *CheckoutSession) EffectiveStatus(now time.Time) CheckoutStatus {
	if s.Status == CheckoutStatusActive && s.IsExpired(now) {
		return CheckoutStatusExpired
	}
	return s.Status
}

// CreateSessionResult is what a shopper gets back when a session starts.
type CreateSessionResult struct {
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/logger"
	"github.com/fjod/shopcart/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CheckoutManager is the checkout surface the handlers need.
type CheckoutManager interface {
	Create(ctx context.Context, req service.CreateSessionRequest) (*domain.CreateSessionResult, error)
	Get(ctx context.Context, token string) (*domain.CheckoutSession, error)
	UpdateShippingAddress(ctx context.Context, token string, req service.UpdateShippingAddressRequest) (*domain.CheckoutSession, error)
	SelectShippingMethod(ctx context.Context, token string, req service.SelectShippingMethodRequest) (*domain.CheckoutSession, error)
	Complete(ctx context.Context, token string, req service.CompleteRequest) (*domain.CheckoutSession, error)
	Delete(ctx context.Context, token string) error
}

type CheckoutHandler struct {
	checkout CheckoutManager
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewCheckoutHandler(checkout CheckoutManager, timeout time.Duration, l *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
		logger:   logger.OrDefault(l),
		now:      time.Now,
	}
}

type GuestItemDTO struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type CreateSessionRequestDTO struct {
	GuestEmail string         `json:"guestEmail,omitempty"`
	Items      []GuestItemDTO `json:"items,omitempty"`
}

type ShippingAddressRequestDTO struct {
	ShippingAddress         *domain.Address `json:"shippingAddress"`
	BillingAddress          *domain.Address `json:"billingAddress,omitempty"`
	BillingIsSameAsShipping bool            `json:"billingIsSameAsShipping"`
}

type ShippingMethodRequestDTO struct {
	ShippingMethodID string          `json:"shippingMethodId"`
	ShippingCost     decimal.Decimal `json:"shippingCost"`
}

type CompleteRequestDTO struct {
	PaymentMethodType domain.PaymentMethodType `json:"paymentMethodType"`
}

// CheckoutSessionDTO is a session as shown to the shopper, with the status
// evaluated at read time.
type CheckoutSessionDTO struct {
	*domain.CheckoutSession
	Status domain.CheckoutStatus `json:"status"`
}

func (h *CheckoutHandler) sessionResponse(sess *domain.CheckoutSession) CheckoutSessionDTO {
	return CheckoutSessionDTO{CheckoutSession: sess, Status: sess.EffectiveStatus(h.now())}
}

// POST /api/v1/checkout/sessions
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateSessionRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]service.GuestItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.GuestItem{SKU: item.SKU, Quantity: item.Quantity})
	}

	result, err := h.checkout.Create(ctx, service.CreateSessionRequest{
		UserID:     getUserIDFromContext(r.Context()),
		GuestEmail: req.GuestEmail,
		Items:      items,
	})
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// GET /api/v1/checkout/sessions/{token}
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, err := h.checkout.Get(ctx, chi.URLParam(r, "token"))
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(sess))
}

// PUT /api/v1/checkout/sessions/{token}/shipping-address
func (h *CheckoutHandler) UpdateShippingAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ShippingAddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ShippingAddress == nil {
		respondError(w, http.StatusBadRequest, string(domain.KindInvalid), "shippingAddress is required")
		return
	}

	sess, err := h.checkout.UpdateShippingAddress(ctx, chi.URLParam(r, "token"), service.UpdateShippingAddressRequest{
		ShippingAddress:         *req.ShippingAddress,
		BillingAddress:          req.BillingAddress,
		BillingIsSameAsShipping: req.BillingIsSameAsShipping,
	})
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(sess))
}

// PUT /api/v1/checkout/sessions/{token}/shipping-method
func (h *CheckoutHandler) SelectShippingMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ShippingMethodRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.checkout.SelectShippingMethod(ctx, chi.URLParam(r, "token"), service.SelectShippingMethodRequest{
		ShippingMethodID: req.ShippingMethodID,
		ShippingCost:     req.ShippingCost,
	})
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(sess))
}

// POST /api/v1/checkout/sessions/{token}/complete
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CompleteRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	orderID, err := service.NewOrderNumber(h.now())
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}

	sess, err := h.checkout.Complete(ctx, chi.URLParam(r, "token"), service.CompleteRequest{
		PaymentMethodType: req.PaymentMethodType,
		OrderID:           orderID,
	})
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.sessionResponse(sess))
}

// DELETE /api/v1/checkout/sessions/{token}
func (h *CheckoutHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.checkout.Delete(ctx, chi.URLParam(r, "token")); err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

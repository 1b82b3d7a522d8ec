package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/logger"
	"github.com/fjod/shopcart/internal/pricing"
	"github.com/fjod/shopcart/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CartManager is the cart surface the handlers need.
type CartManager interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.Cart, error)
	Add(ctx context.Context, userID string, req service.AddItemRequest) (*domain.Cart, error)
	Update(ctx context.Context, userID, sku string, quantity int) (*domain.Cart, error)
	Remove(ctx context.Context, userID, sku string) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) (*domain.Cart, error)
}

type CartReconciler interface {
	Reconcile(ctx context.Context, userID string, items []service.SyncItem) (*service.ReconcileResult, error)
}

type CartHandler struct {
	carts      CartManager
	reconciler CartReconciler
	timeout    time.Duration
	logger     *slog.Logger
}

func NewCartHandler(carts CartManager, reconciler CartReconciler, timeout time.Duration, l *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:      carts,
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger.OrDefault(l),
	}
}

type CartItemDTO struct {
	ProductID  string             `json:"productId"`
	SKU        string             `json:"sku"`
	Quantity   int                `json:"quantity"`
	Attributes *domain.Attributes `json:"attributes,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type SyncCartRequestDTO struct {
	Items []CartItemDTO `json:"items"`
}

type CartResponseDTO struct {
	*domain.Cart
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalItems int             `json:"totalItems"`
}

type SyncCartResponseDTO struct {
	Cart   CartResponseDTO     `json:"cart"`
	Errors []service.ItemError `json:"errors"`
}

func newCartResponse(cart *domain.Cart) CartResponseDTO {
	summary := pricing.Price(cart.Items)
	return CartResponseDTO{Cart: cart, Subtotal: summary.Subtotal, TotalItems: summary.TotalItems}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetOrCreate(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// POST /api/v1/cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CartItemDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" || req.SKU == "" {
		respondError(w, http.StatusBadRequest, string(domain.KindInvalid), "productId and sku are required")
		return
	}

	cart, err := h.carts.Add(ctx, getUserIDFromContext(r.Context()), service.AddItemRequest{
		ProductID:  req.ProductID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		Attributes: req.Attributes,
	})
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, newCartResponse(cart))
}

// PUT /api/v1/cart
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SKU == "" {
		respondError(w, http.StatusBadRequest, string(domain.KindInvalid), "sku is required")
		return
	}

	cart, err := h.carts.Update(ctx, getUserIDFromContext(r.Context()), req.SKU, req.Quantity)
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// DELETE /api/v1/cart/items/{sku}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Remove(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "sku"))
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Clear(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newCartResponse(cart))
}

// POST /api/v1/cart/sync
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SyncCartRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]service.SyncItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.SyncItem{
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			Attributes: item.Attributes,
		})
	}

	result, err := h.reconciler.Reconcile(ctx, getUserIDFromContext(r.Context()), items)
	if err != nil {
		handleDomainError(w, r, h.logger, err)
		return
	}

	errs := result.Errors
	if errs == nil {
		errs = []service.ItemError{}
	}
	respondJSON(w, http.StatusOK, SyncCartResponseDTO{Cart: newCartResponse(result.Cart), Errors: errs})
}

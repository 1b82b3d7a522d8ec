package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/metrics"
	"github.com/fjod/shopcart/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartManagerMock struct {
	m      sync.Mutex
	cart   *domain.Cart
	err    error
	userID string
	sku    string
	qty    int
	added  service.AddItemRequest
	synced []service.SyncItem
	result *service.ReconcileResult
}

func (c *cartManagerMock) record(userID string) (*domain.Cart, error) {
	c.userID = userID
	if c.err != nil {
		return nil, c.err
	}
	return c.cart, nil
}

func (c *cartManagerMock) GetOrCreate(_ context.Context, userID string) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.record(userID)
}

func (c *cartManagerMock) Add(_ context.Context, userID string, req service.AddItemRequest) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.added = req
	return c.record(userID)
}

func (c *cartManagerMock) Update(_ context.Context, userID, sku string, quantity int) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.sku, c.qty = sku, quantity
	return c.record(userID)
}

func (c *cartManagerMock) Remove(_ context.Context, userID, sku string) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.sku = sku
	return c.record(userID)
}

func (c *cartManagerMock) Clear(_ context.Context, userID string) (*domain.Cart, error) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.record(userID)
}

func (c *cartManagerMock) Reconcile(_ context.Context, userID string, items []service.SyncItem) (*service.ReconcileResult, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.userID = userID
	c.synced = items
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type checkoutManagerMock struct {
	m        sync.Mutex
	sess     *domain.CheckoutSession
	created  *domain.CreateSessionResult
	err      error
	token    string
	create   service.CreateSessionRequest
	address  service.UpdateShippingAddressRequest
	method   service.SelectShippingMethodRequest
	complete service.CompleteRequest
	deleted  bool
}

func (c *checkoutManagerMock) result(token string) (*domain.CheckoutSession, error) {
	c.token = token
	if c.err != nil {
		return nil, c.err
	}
	return c.sess, nil
}

func (c *checkoutManagerMock) Create(_ context.Context, req service.CreateSessionRequest) (*domain.CreateSessionResult, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.create = req
	if c.err != nil {
		return nil, c.err
	}
	return c.created, nil
}

func (c *checkoutManagerMock) Get(_ context.Context, token string) (*domain.CheckoutSession, error) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.result(token)
}

func (c *checkoutManagerMock) UpdateShippingAddress(_ context.Context, token string, req service.UpdateShippingAddressRequest) (*domain.CheckoutSession, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.address = req
	return c.result(token)
}

func (c *checkoutManagerMock) SelectShippingMethod(_ context.Context, token string, req service.SelectShippingMethodRequest) (*domain.CheckoutSession, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.method = req
	return c.result(token)
}

func (c *checkoutManagerMock) Complete(_ context.Context, token string, req service.CompleteRequest) (*domain.CheckoutSession, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.complete = req
	return c.result(token)
}

func (c *checkoutManagerMock) Delete(_ context.Context, token string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.token = token
	c.deleted = true
	return c.err
}

type routerFixture struct {
	handler  http.Handler
	carts    *cartManagerMock
	checkout *checkoutManagerMock
	metrics  *metrics.Metrics
	now      time.Time
}

func newRouterFixture(t *testing.T, checks ...HealthCheck) *routerFixture {
	t.Helper()
	f := &routerFixture{
		carts:    &cartManagerMock{},
		checkout: &checkoutManagerMock{},
		metrics:  metrics.New(),
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	checkoutHandler := NewCheckoutHandler(f.checkout, 5*time.Second, nil)
	checkoutHandler.now = func() time.Time { return f.now }

	f.handler = NewRouter(RouterConfig{
		Cart:           NewCartHandler(f.carts, f.carts, 5*time.Second, nil),
		Checkout:       checkoutHandler,
		Metrics:        f.metrics,
		HealthChecks:   checks,
		RequestTimeout: 5 * time.Second,
	})
	return f
}

func (f *routerFixture) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func sampleCart() *domain.Cart {
	discounted := decimal.NewFromInt(18)
	return &domain.Cart{
		ID:     "cart-1",
		UserID: "u1",
		Items: []domain.CartItem{
			{ProductID: "p1", SKU: "TS-001", Quantity: 2, Price: decimal.NewFromInt(20), DiscountedPrice: &discounted},
			{ProductID: "p2", SKU: "MUG-1", Quantity: 1, Price: decimal.NewFromInt(10)},
		},
		Version: 3,
	}
}

func TestCart_RequiresUser(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/cart", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestGetCart_IncludesTotals(t *testing.T) {
	f := newRouterFixture(t)
	f.carts.cart = sampleCart()

	rec := f.do(http.MethodGet, "/api/v1/cart", "u1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", f.carts.userID)

	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "46", resp["subtotal"])
	assert.Equal(t, 3.0, resp["totalItems"])
	assert.Equal(t, "cart-1", resp["id"])
	assert.Len(t, resp["items"], 2)
}

func TestAddItem_PassesRequest(t *testing.T) {
	f := newRouterFixture(t)
	f.carts.cart = sampleCart()

	rec := f.do(http.MethodPost, "/api/v1/cart", "u1",
		`{"productId":"p1","sku":"TS-001-RED","quantity":2,"attributes":{"size":"L"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "p1", f.carts.added.ProductID)
	assert.Equal(t, "TS-001-RED", f.carts.added.SKU)
	assert.Equal(t, 2, f.carts.added.Quantity)
	require.NotNil(t, f.carts.added.Attributes)
	assert.Equal(t, "L", f.carts.added.Attributes.Size)
}

func TestAddItem_BadBody(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/cart", "u1", `{"productId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody[ErrorResponse](t, rec).Code)

	rec = f.do(http.MethodPost, "/api/v1/cart", "u1", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid", decodeBody[ErrorResponse](t, rec).Code)
}

func TestCartErrors_MapToStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"business rule", domain.E(domain.KindCartFull, "cart.add", "Cart cannot have more than 50 items"),
			http.StatusBadRequest, "cart_full", "Cart cannot have more than 50 items"},
		{"missing item", domain.E(domain.KindItemNotFound, "cart.update", "Item not found in cart"),
			http.StatusNotFound, "item_not_found", "Item not found in cart"},
		{"write contention", domain.E(domain.KindCartUpdateFailed, "cart.update", "Failed to update cart"),
			http.StatusInternalServerError, "cart_update_failed", "An internal error occurred. Please try again later."},
		{"storage failure", errors.New("mongo: connection reset"),
			http.StatusInternalServerError, "internal", "An internal error occurred. Please try again later."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			f.carts.err = tt.err

			rec := f.do(http.MethodPut, "/api/v1/cart", "u1", `{"sku":"TS-001","quantity":3}`)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Error)
		})
	}
}

func TestUpdateAndRemove_UseSku(t *testing.T) {
	f := newRouterFixture(t)
	f.carts.cart = sampleCart()

	rec := f.do(http.MethodPut, "/api/v1/cart", "u1", `{"sku":"MUG-1","quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MUG-1", f.carts.sku)
	assert.Equal(t, 4, f.carts.qty)

	rec = f.do(http.MethodDelete, "/api/v1/cart/items/TS-001", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TS-001", f.carts.sku)

	rec = f.do(http.MethodDelete, "/api/v1/cart", "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncCart_ReturnsCartAndItemErrors(t *testing.T) {
	f := newRouterFixture(t)
	f.carts.result = &service.ReconcileResult{
		Cart: sampleCart(),
		Errors: []service.ItemError{
			{SKU: "OLD-1", Kind: domain.KindInactive, Error: "Product is not available"},
		},
	}

	rec := f.do(http.MethodPost, "/api/v1/cart/sync", "u1",
		`{"items":[{"productId":"p1","sku":"TS-001","quantity":2},{"productId":"p9","sku":"OLD-1","quantity":1}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.carts.synced, 2)
	assert.Equal(t, "OLD-1", f.carts.synced[1].SKU)

	resp := decodeBody[map[string]any](t, rec)
	errs := resp["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "inactive", errs[0].(map[string]any)["code"])
	assert.Equal(t, "46", resp["cart"].(map[string]any)["subtotal"])
}

func TestSyncCart_EmptyErrorsIsArray(t *testing.T) {
	f := newRouterFixture(t)
	f.carts.result = &service.ReconcileResult{Cart: sampleCart()}

	rec := f.do(http.MethodPost, "/api/v1/cart/sync", "u1", `{"items":[]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errors":[]`)
}

func TestCreateSession_GuestAndUser(t *testing.T) {
	f := newRouterFixture(t)
	f.checkout.created = &domain.CreateSessionResult{SessionToken: "chk_sess_abc", ExpiresAt: f.now.Add(20 * time.Minute)}

	rec := f.do(http.MethodPost, "/api/v1/checkout/sessions", "",
		`{"guestEmail":"guest@example.com","items":[{"sku":"MUG-1","quantity":2}]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, f.checkout.create.UserID)
	assert.Equal(t, "guest@example.com", f.checkout.create.GuestEmail)
	assert.Equal(t, []service.GuestItem{{SKU: "MUG-1", Quantity: 2}}, f.checkout.create.Items)
	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "chk_sess_abc", resp["sessionToken"])

	rec = f.do(http.MethodPost, "/api/v1/checkout/sessions", "u1", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", f.checkout.create.UserID)
}

func TestGetSession_ReportsEffectiveStatus(t *testing.T) {
	f := newRouterFixture(t)
	f.checkout.sess = &domain.CheckoutSession{
		SessionToken: "chk_sess_abc",
		CurrentStep:  domain.StepPayment,
		Status:       domain.CheckoutStatusActive,
		ExpiresAt:    f.now.Add(-time.Second),
	}

	rec := f.do(http.MethodGet, "/api/v1/checkout/sessions/chk_sess_abc", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chk_sess_abc", f.checkout.token)
	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "EXPIRED", resp["status"])
	assert.Equal(t, "PAYMENT", resp["currentStep"])
}

func TestSessionErrors_MapToStatus(t *testing.T) {
	f := newRouterFixture(t)

	f.checkout.err = domain.ErrSessionNotFound
	rec := f.do(http.MethodGet, "/api/v1/checkout/sessions/chk_sess_abc", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.checkout.err = domain.E(domain.KindShippingAddressRequired, "checkout.select_shipping_method", "Shipping address is required")
	rec = f.do(http.MethodPut, "/api/v1/checkout/sessions/chk_sess_abc/shipping-method", "", `{"shippingMethodId":"std","shippingCost":"5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "shipping_address_required", decodeBody[ErrorResponse](t, rec).Code)
}

func TestUpdateShippingAddress_PassesAddresses(t *testing.T) {
	f := newRouterFixture(t)
	f.checkout.sess = &domain.CheckoutSession{Status: domain.CheckoutStatusActive, ExpiresAt: f.now.Add(time.Minute)}

	rec := f.do(http.MethodPut, "/api/v1/checkout/sessions/chk_sess_abc/shipping-address", "",
		`{"shippingAddress":{"firstName":"Ada","city":"London","country":"GB"},"billingIsSameAsShipping":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", f.checkout.address.ShippingAddress.FirstName)
	assert.True(t, f.checkout.address.BillingIsSameAsShipping)
	assert.Nil(t, f.checkout.address.BillingAddress)

	rec = f.do(http.MethodPut, "/api/v1/checkout/sessions/chk_sess_abc/shipping-address", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectShippingMethod_ParsesCost(t *testing.T) {
	f := newRouterFixture(t)
	f.checkout.sess = &domain.CheckoutSession{Status: domain.CheckoutStatusActive, ExpiresAt: f.now.Add(time.Minute)}

	rec := f.do(http.MethodPut, "/api/v1/checkout/sessions/chk_sess_abc/shipping-method", "",
		`{"shippingMethodId":"express","shippingCost":"12.50"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "express", f.checkout.method.ShippingMethodID)
	assert.True(t, decimal.RequireFromString("12.5").Equal(f.checkout.method.ShippingCost))
}

func TestComplete_MintsOrderNumber(t *testing.T) {
	f := newRouterFixture(t)
	completedAt := f.now
	f.checkout.sess = &domain.CheckoutSession{
		Status:      domain.CheckoutStatusCompleted,
		CurrentStep: domain.StepCompleted,
		ExpiresAt:   f.now.Add(-time.Hour),
		CompletedAt: &completedAt,
	}

	rec := f.do(http.MethodPost, "/api/v1/checkout/sessions/chk_sess_abc/complete", "",
		`{"paymentMethodType":"credit_card"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PaymentCreditCard, f.checkout.complete.PaymentMethodType)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20260301-\d{6}$`), f.checkout.complete.OrderID)
	resp := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "COMPLETED", resp["status"])
}

func TestDeleteSession(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodDelete, "/api/v1/checkout/sessions/chk_sess_abc", "", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.checkout.deleted)
	assert.Equal(t, "chk_sess_abc", f.checkout.token)
}

func TestHealth(t *testing.T) {
	f := newRouterFixture(t,
		HealthCheck{Name: "mongo", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := f.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "degraded", resp["status"])
	assert.Equal(t, "ok", resp["mongo"])
	assert.Equal(t, "connection refused", resp["redis"])
}

func TestMetricsEndpoint_CountsRoutes(t *testing.T) {
	f := newRouterFixture(t)
	f.carts.cart = sampleCart()

	f.do(http.MethodGet, "/api/v1/cart", "u1", "")
	rec := f.do(http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, regexp.MustCompile(`shopcart_http_requests_total\{method="GET",route="/api/v1/cart/?",status="200"\} 1`), rec.Body.String())
}

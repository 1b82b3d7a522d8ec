package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/events"
	"github.com/fjod/shopcart/internal/logger"
	"github.com/fjod/shopcart/internal/metrics"
	"github.com/fjod/shopcart/internal/pricing"
	"github.com/fjod/shopcart/internal/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSessionTTL = 20 * time.Minute

	guestLookupConcurrency = 8
	eventPublishTimeout    = 5 * time.Second
)

// CartSource is the part of the cart manager checkout reads from. Load must
// return the stored cart, not a cached copy: the snapshot is what gets charged.
type CartSource interface {
	Load(ctx context.Context, userID string) (*domain.Cart, error)
}

type GuestItem struct {
	SKU      string
	Quantity int
}

// CreateSessionRequest starts a checkout for UserID's cart, or for Items when
// UserID is empty.
type CreateSessionRequest struct {
	UserID     string
	GuestEmail string
	Items      []GuestItem
}

type UpdateShippingAddressRequest struct {
	ShippingAddress         domain.Address
	BillingAddress          *domain.Address
	BillingIsSameAsShipping bool
}

type SelectShippingMethodRequest struct {
	ShippingMethodID string
	ShippingCost     decimal.Decimal
}

type CompleteRequest struct {
	PaymentMethodType domain.PaymentMethodType

	// OrderID is assigned by the order system. Empty means generate one.
	OrderID string
}

// CheckoutService drives sessions through
// SHIPPING -> SHIPPING_METHOD -> PAYMENT -> COMPLETED. Sessions live in the
// session store with a sliding TTL; expiry is judged against the fixed
// ExpiresAt set at creation.
type CheckoutService struct {
	store     session.Store
	carts     CartSource
	resolver  *Resolver
	limits    CartLimits
	publisher events.Publisher
	ttl       time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	now      func() time.Time
	newToken func() (string, error)
}

// NewCheckoutService builds the state machine. limits bound guest item lists
// the same way they bound a stored cart.
func NewCheckoutService(store session.Store, carts CartSource, resolver *Resolver, limits CartLimits, publisher events.Publisher, ttl time.Duration, l *slog.Logger, m *metrics.Metrics) *CheckoutService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CheckoutService{
		store:     store,
		carts:     carts,
		resolver:  resolver,
		limits:    limits,
		publisher: publisher,
		ttl:       ttl,
		logger:    logger.OrDefault(l),
		metrics:   m,
		now:       time.Now,
		newToken:  NewSessionToken,
	}
}

// Create freezes the priced items into a new ACTIVE session at step SHIPPING.
// Authenticated users check out their stored cart; guests supply items that
// are re-validated against the catalog.
func (s *CheckoutService) Create(ctx context.Context, req CreateSessionRequest) (result *domain.CreateSessionResult, err error) {
	const op = "checkout.create"
	defer s.observe("create", time.Now(), &err)

	var (
		snapshot domain.CartSnapshot
		cartID   string
	)
	switch {
	case req.UserID != "":
		cart, err := s.carts.Load(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if len(cart.Items) == 0 {
			return nil, domain.E(domain.KindCartEmpty, op, "Cannot create checkout session with empty cart")
		}
		snapshot = pricing.Snapshot(cart.Items)
		cartID = cart.ID
	case len(req.Items) > 0:
		merged, err := s.mergeGuestItems(op, req.Items)
		if err != nil {
			return nil, err
		}
		items, err := s.resolveGuestItems(ctx, merged)
		if err != nil {
			return nil, err
		}
		snapshot = pricing.Snapshot(items)
	default:
		return nil, domain.E(domain.KindItemsRequired, op, "Items are required for guest checkout")
	}

	token, err := s.newToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create checkout session")
	}

	now := s.now().UTC()
	sess := &domain.CheckoutSession{
		SessionToken: token,
		UserID:       req.UserID,
		CartID:       cartID,
		CurrentStep:  domain.StepShipping,
		Status:       domain.CheckoutStatusActive,
		CartSnapshot: snapshot,
		Pricing:      pricing.Initial(snapshot),
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.UserID == "" {
		sess.GuestEmail = req.GuestEmail
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to encode checkout session")
	}
	if err := s.store.Set(ctx, token, data, s.ttl); err != nil {
		return nil, domain.Internal(err, op, "Failed to save checkout session")
	}

	s.metrics.StepEntered(domain.StepShipping)
	s.logger.InfoContext(ctx, "checkout session created",
		slog.Bool("guest", sess.IsGuest()),
		slog.Int("items", snapshot.TotalItems),
		slog.String("subtotal", snapshot.Subtotal.String()),
	)

	return &domain.CreateSessionResult{SessionToken: token, ExpiresAt: sess.ExpiresAt}, nil
}

// mergeGuestItems folds repeated SKUs into one line, keeping first-seen order,
// and applies the cart limits to the merged list.
func (s *CheckoutService) mergeGuestItems(op string, items []GuestItem) ([]GuestItem, error) {
	merged := make([]GuestItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, domain.Errorf(domain.KindInvalid, op, "Quantity must be at least 1, got %d", item.Quantity)
		}
		if i, ok := index[item.SKU]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.SKU] = len(merged)
		merged = append(merged, item)
	}

	if len(merged) > s.limits.MaxItems {
		return nil, domain.Errorf(domain.KindCartFull, op, "Cart cannot contain more than %d items", s.limits.MaxItems)
	}
	for _, item := range merged {
		if item.Quantity > s.limits.MaxQuantityPerItem {
			return nil, domain.Errorf(domain.KindMaxQuantityExceeded, op, "Maximum quantity per item is %d", s.limits.MaxQuantityPerItem)
		}
	}
	return merged, nil
}

// resolveGuestItems looks items up concurrently. When several fail, the error
// of the first failing item in request order is returned.
func (s *CheckoutService) resolveGuestItems(ctx context.Context, items []GuestItem) ([]domain.CartItem, error) {
	resolved := make([]domain.CartItem, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(guestLookupConcurrency)
	for i, gi := range items {
		g.Go(func() error {
			item, err := s.resolver.ResolveBySku(ctx, gi.SKU, gi.Quantity)
			if err != nil {
				errs[i] = err
				return nil
			}
			resolved[i] = *item
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// Get returns a readable session: present, not expired and not completed.
func (s *CheckoutService) Get(ctx context.Context, token string) (sess *domain.CheckoutSession, err error) {
	const op = "checkout.get"
	defer s.observe("get", time.Now(), &err)

	if err := checkToken(op, token); err != nil {
		return nil, err
	}

	data, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, storeError(err, op)
	}

	sess, err = decodeSession(op, data)
	if err != nil {
		return nil, err
	}
	if err := checkReadable(op, sess, s.now()); err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateShippingAddress records the addresses and moves to SHIPPING_METHOD.
// It may be called again from any later active step, which moves the
// session back to SHIPPING_METHOD. A guest's email is taken from the
// shipping address the first time one is provided.
func (s *CheckoutService) UpdateShippingAddress(ctx context.Context, token string, req UpdateShippingAddressRequest) (sess *domain.CheckoutSession, err error) {
	const op = "checkout.update_shipping_address"
	defer s.observe("update_shipping_address", time.Now(), &err)

	sess, err = s.transition(ctx, op, token, func(sess *domain.CheckoutSession, _ time.Time) error {
		shipping := req.ShippingAddress
		sess.ShippingAddress = &shipping

		switch {
		case req.BillingIsSameAsShipping:
			billing := shipping
			sess.BillingAddress = &billing
		case req.BillingAddress != nil:
			billing := *req.BillingAddress
			sess.BillingAddress = &billing
		default:
			sess.BillingAddress = nil
		}

		if sess.IsGuest() && sess.GuestEmail == "" && shipping.Email != "" {
			sess.GuestEmail = shipping.Email
		}

		sess.CurrentStep = domain.StepShippingMethod
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.StepEntered(domain.StepShippingMethod)
	return sess, nil
}

// SelectShippingMethod sets the shipping method and cost, recomputes the
// total and moves to PAYMENT.
func (s *CheckoutService) SelectShippingMethod(ctx context.Context, token string, req SelectShippingMethodRequest) (sess *domain.CheckoutSession, err error) {
	const op = "checkout.select_shipping_method"
	defer s.observe("select_shipping_method", time.Now(), &err)

	if req.ShippingMethodID == "" {
		return nil, domain.E(domain.KindInvalid, op, "Shipping method is required")
	}
	if req.ShippingCost.IsNegative() {
		return nil, domain.E(domain.KindInvalid, op, "Shipping cost cannot be negative")
	}

	sess, err = s.transition(ctx, op, token, func(sess *domain.CheckoutSession, _ time.Time) error {
		if sess.ShippingAddress == nil {
			return domain.E(domain.KindShippingAddressRequired, op, "Shipping address is required")
		}
		sess.ShippingMethodID = req.ShippingMethodID
		sess.Pricing = pricing.WithShipping(sess.Pricing, req.ShippingCost)
		sess.CurrentStep = domain.StepPayment
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.StepEntered(domain.StepPayment)
	return sess, nil
}

// Complete marks the session COMPLETED and publishes a checkout-completed
// event. Publishing failures are logged; the session stays completed.
func (s *CheckoutService) Complete(ctx context.Context, token string, req CompleteRequest) (sess *domain.CheckoutSession, err error) {
	const op = "checkout.complete"
	defer s.observe("complete", time.Now(), &err)

	if !req.PaymentMethodType.Valid() {
		return nil, domain.Errorf(domain.KindInvalid, op, "Unsupported payment method %q", req.PaymentMethodType)
	}
	orderID := req.OrderID
	if orderID == "" {
		if orderID, err = NewOrderNumber(s.now()); err != nil {
			return nil, domain.Internal(err, op, "Failed to assign order number")
		}
	}

	sess, err = s.transition(ctx, op, token, func(sess *domain.CheckoutSession, now time.Time) error {
		if sess.ShippingAddress == nil {
			return domain.E(domain.KindShippingAddressRequired, op, "Shipping address is required")
		}
		if sess.ShippingMethodID == "" {
			return domain.E(domain.KindShippingMethodRequired, op, "Shipping method is required")
		}
		completedAt := now
		sess.PaymentMethodType = req.PaymentMethodType
		sess.Status = domain.CheckoutStatusCompleted
		sess.CurrentStep = domain.StepCompleted
		sess.CompletedAt = &completedAt
		sess.OrderID = orderID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.StepEntered(domain.StepCompleted)
	s.logger.InfoContext(ctx, "checkout completed",
		slog.String("order_id", sess.OrderID),
		slog.Bool("guest", sess.IsGuest()),
		slog.String("total", sess.Pricing.Total.String()),
	)
	s.publishCompleted(ctx, sess)

	return sess, nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (s *CheckoutService) Delete(ctx context.Context, token string) (err error) {
	const op = "checkout.delete"
	defer s.observe("delete", time.Now(), &err)

	if err := checkToken(op, token); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, token); err != nil {
		return domain.Internal(err, op, "Failed to delete checkout session")
	}
	return nil
}

// transition loads the session, checks it is readable, applies fn and
// stores the result with a fresh TTL, all under optimistic concurrency.
// When fn fails nothing is written.
func (s *CheckoutService) transition(ctx context.Context, op, token string, fn func(*domain.CheckoutSession, time.Time) error) (*domain.CheckoutSession, error) {
	if err := checkToken(op, token); err != nil {
		return nil, err
	}

	var updated *domain.CheckoutSession
	err := s.store.Update(ctx, token, s.ttl, func(current []byte) ([]byte, error) {
		sess, err := decodeSession(op, current)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		if err := checkReadable(op, sess, now); err != nil {
			return nil, err
		}
		if err := fn(sess, now); err != nil {
			return nil, err
		}
		sess.UpdatedAt = now

		data, err := json.Marshal(sess)
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to encode checkout session")
		}
		updated = sess
		return data, nil
	})
	if err != nil {
		return nil, storeError(err, op)
	}
	return updated, nil
}

func (s *CheckoutService) publishCompleted(ctx context.Context, sess *domain.CheckoutSession) {
	evt := events.CheckoutCompleted{
		EventID:           uuid.NewString(),
		SessionToken:      sess.SessionToken,
		UserID:            sess.UserID,
		GuestEmail:        sess.GuestEmail,
		CartID:            sess.CartID,
		OrderID:           sess.OrderID,
		PaymentMethodType: sess.PaymentMethodType,
		Items:             sess.CartSnapshot.Items,
		Pricing:           sess.Pricing,
		CompletedAt:       *sess.CompletedAt,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.publisher.PublishCheckoutCompleted(pubCtx, evt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout completed event",
			slog.String("order_id", sess.OrderID),
			slog.Any("error", err),
		)
	}
}

func (s *CheckoutService) observe(operation string, start time.Time, err *error) {
	s.metrics.Observe("checkout", operation, start, *err)
}

func checkToken(op, token string) error {
	if !ValidSessionToken(token) {
		return domain.E(domain.KindInvalid, op, "Invalid session token format")
	}
	return nil
}

func checkReadable(op string, sess *domain.CheckoutSession, now time.Time) error {
	switch sess.EffectiveStatus(now) {
	case domain.CheckoutStatusExpired:
		return domain.E(domain.KindSessionExpired, op, "Checkout session has expired")
	case domain.CheckoutStatusCompleted:
		return domain.E(domain.KindSessionAlreadyCompleted, op, "Checkout session is already completed")
	}
	return nil
}

func decodeSession(op string, data []byte) (*domain.CheckoutSession, error) {
	var sess domain.CheckoutSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, domain.Internal(err, op, "Failed to decode checkout session")
	}
	if !sess.CurrentStep.Valid() || !sess.Status.Valid() {
		return nil, domain.Internal(
			fmt.Errorf("stored session has step %q, status %q", sess.CurrentStep, sess.Status),
			op, "Corrupt checkout session")
	}
	return &sess, nil
}

func storeError(err error, op string) error {
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, session.ErrNotFound):
		return domain.E(domain.KindSessionNotFound, op, "Checkout session not found")
	default:
		return domain.Internal(err, op, "Checkout session store failed")
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/shopcart/internal/cache"
	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/logger"
	"github.com/fjod/shopcart/internal/metrics"
	"github.com/fjod/shopcart/internal/repository"
	"golang.org/x/sync/singleflight"
)

type CartLimits struct {
	MaxItems           int
	MaxQuantityPerItem int

	// WriteAttempts bounds the read-modify-write retries on version conflicts.
	WriteAttempts int
}

func DefaultCartLimits() CartLimits {
	return CartLimits{MaxItems: 50, MaxQuantityPerItem: 100, WriteAttempts: 3}
}

type AddItemRequest struct {
	ProductID  string
	SKU        string
	Quantity   int
	Attributes *domain.Attributes
}

// CartService owns every mutation of a user's cart. Each mutation reads the
// authoritative cart, applies its change in memory and saves it with a
// version check, retrying on concurrent writes.
type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	resolver *Resolver
	limits   CartLimits
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sfg      singleflight.Group
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, resolver *Resolver, limits CartLimits, l *slog.Logger, m *metrics.Metrics) *CartService {
	if limits.WriteAttempts < 1 {
		limits.WriteAttempts = 1
	}
	return &CartService{
		repo:     repo,
		cache:    c,
		resolver: resolver,
		limits:   limits,
		logger:   logger.OrDefault(l),
		metrics:  m,
	}
}

// GetOrCreate returns the user's cart, creating an empty one on first access.
// Reads go through the cache; concurrent misses for one user share a single
// storage call.
func (s *CartService) GetOrCreate(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	const op = "cart.get"
	defer s.observe("get", time.Now(), &err)

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cached, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "cache get failed", slog.String("user_id", userID), slog.Any("error", err))
		}

		cart, err := s.repo.FindOrCreate(ctx, userID)
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to load cart")
		}

		go func(c *domain.Cart) {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(setCtx, c); err != nil {
				s.logger.Warn("cache set failed", slog.String("user_id", c.UserID), slog.Any("error", err))
			}
		}(cloneCart(cart))

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneCart(v.(*domain.Cart)), nil
}

// Load returns the user's cart straight from storage, creating an empty one
// on first access. Checkout prices from this, never from the read cache.
func (s *CartService) Load(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	const op = "cart.load"
	defer s.observe("load", time.Now(), &err)

	cart, err = s.repo.FindOrCreate(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load cart")
	}
	return cart, nil
}

// Add puts quantity units of sku into the cart. An existing line for the
// same SKU has its quantity summed and its price re-derived.
func (s *CartService) Add(ctx context.Context, userID string, req AddItemRequest) (cart *domain.Cart, err error) {
	const op = "cart.add"
	defer s.observe("add", time.Now(), &err)

	if req.Quantity < 1 {
		return nil, domain.Errorf(domain.KindInvalid, op, "Quantity must be at least 1, got %d", req.Quantity)
	}

	return s.mutate(ctx, op, userID, s.repo.FindOrCreate, func(cart *domain.Cart) error {
		if len(cart.Items) >= s.limits.MaxItems {
			return domain.Errorf(domain.KindCartFull, op, "Cart cannot contain more than %d items", s.limits.MaxItems)
		}

		if idx, ok := cart.FindItem(req.SKU); ok {
			return s.setQuantity(ctx, op, cart, idx, cart.Items[idx].Quantity+req.Quantity)
		}

		if req.Quantity > s.limits.MaxQuantityPerItem {
			return s.maxQuantityError(op)
		}

		// Resolve rejects a SKU that is neither the product's base SKU nor one
		// of its variants with InvalidSku.
		item, err := s.resolver.Resolve(ctx, req.ProductID, req.SKU, req.Quantity, req.Attributes)
		if err != nil {
			return err
		}

		cart.Items = append(cart.Items, *item)
		return nil
	})
}

// Update sets the quantity of an existing line.
func (s *CartService) Update(ctx context.Context, userID, sku string, quantity int) (cart *domain.Cart, err error) {
	const op = "cart.update"
	defer s.observe("update", time.Now(), &err)

	if quantity < 1 {
		return nil, domain.Errorf(domain.KindInvalid, op, "Quantity must be at least 1, got %d", quantity)
	}

	return s.mutate(ctx, op, userID, s.repo.FindOrCreate, func(cart *domain.Cart) error {
		idx, ok := cart.FindItem(sku)
		if !ok {
			return domain.Errorf(domain.KindItemNotFound, op, "Item %s not found in cart", sku)
		}
		return s.setQuantity(ctx, op, cart, idx, quantity)
	})
}

func (s *CartService) Remove(ctx context.Context, userID, sku string) (cart *domain.Cart, err error) {
	const op = "cart.remove"
	defer s.observe("remove", time.Now(), &err)

	return s.mutate(ctx, op, userID, s.repo.FindOrCreate, func(cart *domain.Cart) error {
		idx, ok := cart.FindItem(sku)
		if !ok {
			return domain.Errorf(domain.KindItemNotFound, op, "Item %s not found in cart", sku)
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
}

// Clear empties the cart. The cart itself is kept.
func (s *CartService) Clear(ctx context.Context, userID string) (cart *domain.Cart, err error) {
	const op = "cart.clear"
	defer s.observe("clear", time.Now(), &err)

	return s.mutate(ctx, op, userID, s.loadExisting(op), func(cart *domain.Cart) error {
		cart.Items = []domain.CartItem{}
		return nil
	})
}

// RemoveItems drops every line whose SKU is listed. SKUs not in the cart are
// ignored, and nothing is written when none match.
func (s *CartService) RemoveItems(ctx context.Context, userID string, skus []string) (cart *domain.Cart, err error) {
	const op = "cart.remove_items"
	defer s.observe("remove_items", time.Now(), &err)

	drop := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		drop[sku] = struct{}{}
	}

	current, err := s.repo.GetCart(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		return nil, domain.E(domain.KindCartNotFound, op, "Cart not found")
	case err != nil:
		return nil, domain.Internal(err, op, "Failed to load cart")
	}
	if !containsAny(current, drop) {
		return current, nil
	}

	return s.mutate(ctx, op, userID, s.loadExisting(op), func(cart *domain.Cart) error {
		kept := cart.Items[:0]
		for _, item := range cart.Items {
			if _, ok := drop[item.SKU]; !ok {
				kept = append(kept, item)
			}
		}
		cart.Items = kept
		return nil
	})
}

func containsAny(cart *domain.Cart, skus map[string]struct{}) bool {
	for _, item := range cart.Items {
		if _, ok := skus[item.SKU]; ok {
			return true
		}
	}
	return false
}

// loadExisting loads a cart without creating it.
func (s *CartService) loadExisting(op string) loadFunc {
	return func(ctx context.Context, userID string) (*domain.Cart, error) {
		cart, err := s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, domain.E(domain.KindCartNotFound, op, "Cart not found")
		}
		return cart, err
	}
}

// setQuantity replaces the line at idx with a freshly resolved one so price,
// discount and images follow the catalog.
func (s *CartService) setQuantity(ctx context.Context, op string, cart *domain.Cart, idx, quantity int) error {
	if quantity > s.limits.MaxQuantityPerItem {
		return s.maxQuantityError(op)
	}

	current := cart.Items[idx]
	attrs := current.Attributes
	item, err := s.resolver.Resolve(ctx, current.ProductID, current.SKU, quantity, &attrs)
	if err != nil {
		return err
	}
	cart.Items[idx] = *item
	return nil
}

func (s *CartService) maxQuantityError(op string) error {
	return domain.Errorf(domain.KindMaxQuantityExceeded, op, "Maximum quantity per item is %d", s.limits.MaxQuantityPerItem)
}

type loadFunc func(ctx context.Context, userID string) (*domain.Cart, error)

// mutate runs load, apply and a versioned save, retrying the whole cycle
// when another writer saved first. Errors from apply abort without writing.
func (s *CartService) mutate(ctx context.Context, op, userID string, load loadFunc, apply func(*domain.Cart) error) (*domain.Cart, error) {
	var lastErr error
	for attempt := 1; attempt <= s.limits.WriteAttempts; attempt++ {
		cart, err := load(ctx, userID)
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return nil, err
			}
			return nil, domain.Internal(err, op, "Failed to load cart")
		}

		if err := apply(cart); err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, cart)
		if err == nil {
			s.invalidate(userID)
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, domain.Wrap(err, domain.KindCartUpdateFailed, op, "Failed to update cart")
		}

		lastErr = err
		s.logger.DebugContext(ctx, "cart write conflict",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}

	s.logger.WarnContext(ctx, "cart write retries exhausted", slog.String("op", op), slog.String("user_id", userID))
	return nil, domain.Wrap(lastErr, domain.KindCartUpdateFailed, op, "Failed to update cart")
}

func (s *CartService) invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (s *CartService) observe(operation string, start time.Time, err *error) {
	s.metrics.Observe("cart", operation, start, *err)
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = make([]domain.CartItem, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = cloneItem(item)
	}
	return &out
}

func cloneItem(item domain.CartItem) domain.CartItem {
	item.ProductImages = append([]string(nil), item.ProductImages...)
	if item.DiscountedPrice != nil {
		d := *item.DiscountedPrice
		item.DiscountedPrice = &d
	}
	return item
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/shopcart/internal/cache"
	"github.com/fjod/shopcart/internal/catalog"
	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/events"
	"github.com/fjod/shopcart/internal/repository"
	"github.com/shopspring/decimal"
)

// mockRepository enforces version checks like the Mongo implementation.
type mockRepository struct {
	m     sync.Mutex
	carts map[string]*domain.Cart

	findErr error
	saveErr error

	// conflicts makes the next n saves lose to a simulated concurrent writer.
	conflicts int
	saves     int
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: make(map[string]*domain.Cart)}
}

func (m *mockRepository) FindOrCreate(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.carts[userID]
	if !ok {
		c = &domain.Cart{ID: "cart-" + userID, UserID: userID, Items: []domain.CartItem{}}
		m.carts[userID] = c
	}
	return cloneCart(c), nil
}

func (m *mockRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (m *mockRepository) Save(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	stored, ok := m.carts[cart.UserID]
	if !ok {
		return repository.ErrVersionConflict
	}
	if m.conflicts > 0 {
		m.conflicts--
		stored.Version++
		return repository.ErrVersionConflict
	}
	if stored.Version != cart.Version {
		return repository.ErrVersionConflict
	}
	cart.Version++
	m.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (m *mockRepository) stored(userID string) *domain.Cart {
	m.m.Lock()
	defer m.m.Unlock()
	if c, ok := m.carts[userID]; ok {
		return cloneCart(c)
	}
	return nil
}

func (m *mockRepository) saveCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.saves
}

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cloneCart(c), nil
}

func (m *mockCache) Set(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.carts[cart.UserID] = cloneCart(cart)
	return m.err
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, userID)
	m.deletes++
	return m.err
}

func (m *mockCache) has(userID string) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[userID]
	return ok
}

func (m *mockCache) deleteCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.deletes
}

type failingCatalog struct{}

func (failingCatalog) FindByID(context.Context, string) (*domain.Product, error) {
	return nil, errors.New("catalog unavailable")
}

func (failingCatalog) FindBySku(context.Context, string) (*domain.Product, error) {
	return nil, errors.New("catalog unavailable")
}

type recordingPublisher struct {
	m      sync.Mutex
	events []events.CheckoutCompleted
	err    error
}

func (p *recordingPublisher) PublishCheckoutCompleted(_ context.Context, evt events.CheckoutCompleted) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) published() []events.CheckoutCompleted {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]events.CheckoutCompleted(nil), p.events...)
}

type fakeClock struct {
	m   sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.now = c.now.Add(d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// testCatalog holds:
//   - p-shirt: base TS-001 (price 20, discount 18), variants TS-001-RED
//     (own price 25, no discount, no images) and TS-001-BLUE (no price,
//     discount 15, own images)
//   - p-mug: base MUG-1 price 10, stock 500
//   - p-old: inactive, base OLD-1
func testCatalog() *catalog.MemoryCatalog {
	return catalog.NewMemoryCatalog(
		&domain.Product{
			ID:                  "p-shirt",
			Name:                "T-Shirt",
			SKU:                 "TS-001",
			IsActive:            true,
			BaseStock:           10,
			BasePrice:           dec("20"),
			BaseDiscountedPrice: decPtr("18"),
			Images:              []string{"shirt.png"},
			BaseAttributes:      domain.Attributes{Material: "cotton", Brand: "Acme"},
			Variants: []domain.Variant{
				{SKU: "TS-001-RED", Stock: 5, Price: decPtr("25"), Attributes: domain.Attributes{Color: "red", Size: "M"}},
				{SKU: "TS-001-BLUE", Stock: 3, DiscountedPrice: decPtr("15"), Images: []string{"blue.png"}, Attributes: domain.Attributes{Color: "blue"}},
			},
		},
		&domain.Product{
			ID:        "p-mug",
			Name:      "Mug",
			SKU:       "MUG-1",
			IsActive:  true,
			BaseStock: 500,
			BasePrice: dec("10"),
			Images:    []string{"mug.png"},
		},
		&domain.Product{
			ID:        "p-old",
			Name:      "Discontinued",
			SKU:       "OLD-1",
			IsActive:  false,
			BaseStock: 100,
			BasePrice: dec("5"),
		},
	)
}

package catalog

import (
	"context"
	"sync"

	"github.com/fjod/shopcart/internal/domain"
)

// MemoryCatalog implements Lookup with in-memory storage. Returned products
// are copies, so callers cannot mutate the catalog.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*domain.Product // productID -> product
	bySku    map[string]string          // base or variant SKU -> productID
}

func NewMemoryCatalog(products ...*domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{
		products: make(map[string]*domain.Product),
		bySku:    make(map[string]string),
	}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// Put inserts or replaces a product.
func (c *MemoryCatalog) Put(p *domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.products[p.ID]; ok {
		delete(c.bySku, old.SKU)
		for _, v := range old.Variants {
			delete(c.bySku, v.SKU)
		}
	}

	stored := cloneProduct(p)
	c.products[p.ID] = stored
	c.bySku[stored.SKU] = stored.ID
	for _, v := range stored.Variants {
		c.bySku[v.SKU] = stored.ID
	}
}

// SetStock sets the stock of the base SKU or a variant SKU.
func (c *MemoryCatalog) SetStock(sku string, stock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.bySku[sku]
	if !ok {
		return ErrProductNotFound
	}
	p := c.products[id]
	if p.SKU == sku {
		p.BaseStock = stock
		return nil
	}
	v, _ := p.Variant(sku)
	v.Stock = stock
	return nil
}

// SetActive toggles whether a product can be sold.
func (c *MemoryCatalog) SetActive(id string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.IsActive = active
	return nil
}

func (c *MemoryCatalog) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (c *MemoryCatalog) FindBySku(ctx context.Context, sku string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.bySku[sku]
	if !ok {
		return nil, ErrProductNotFound
	}
	return cloneProduct(c.products[id]), nil
}

package service

import (
	"context"
	"errors"

	"github.com/fjod/shopcart/internal/catalog"
	"github.com/fjod/shopcart/internal/domain"
)

// Resolver validates a (product, SKU, quantity) request against the catalog
// and produces a priced line item. It never writes anything.
type Resolver struct {
	catalog catalog.Lookup
}

func NewResolver(c catalog.Lookup) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve checks that the product exists and is active, that sku is its base
// SKU or one of its variants, and that enough stock is available. attrs, if
// non-nil, override the catalog attributes field by field.
func (r *Resolver) Resolve(ctx context.Context, productID, sku string, quantity int, attrs *domain.Attributes) (*domain.CartItem, error) {
	const op = "resolver.resolve"

	product, err := r.catalog.FindByID(ctx, productID)
	if err != nil {
		return nil, lookupError(err, op, "Product "+productID+" not found")
	}
	return resolveProduct(op, product, sku, quantity, attrs)
}

// ResolveBySku finds the product owning sku and resolves it.
func (r *Resolver) ResolveBySku(ctx context.Context, sku string, quantity int) (*domain.CartItem, error) {
	const op = "resolver.resolve_by_sku"

	product, err := r.catalog.FindBySku(ctx, sku)
	if err != nil {
		return nil, lookupError(err, op, "Product with SKU "+sku+" not found")
	}
	return resolveProduct(op, product, sku, quantity, nil)
}

func lookupError(err error, op, notFound string) error {
	if errors.Is(err, catalog.ErrProductNotFound) {
		return domain.E(domain.KindNotFound, op, notFound)
	}
	return domain.Internal(err, op, "Failed to look up product")
}

func resolveProduct(op string, p *domain.Product, sku string, quantity int, attrs *domain.Attributes) (*domain.CartItem, error) {
	if quantity < 1 {
		return nil, domain.Errorf(domain.KindInvalid, op, "Quantity must be at least 1, got %d", quantity)
	}
	if !p.IsActive {
		return nil, domain.Errorf(domain.KindInactive, op, "Product %s is not active", p.Name)
	}

	if !p.HasSku(sku) {
		return nil, domain.Errorf(domain.KindInvalidSku, op, "SKU %s does not belong to product %s", sku, p.Name)
	}

	item := &domain.CartItem{
		ProductID:   p.ID,
		SKU:         sku,
		Quantity:    quantity,
		ProductName: p.Name,
	}

	var stock int
	if v, ok := p.Variant(sku); ok {
		stock = v.Stock
		item.IsVariant = true
		item.Price = p.BasePrice
		if v.Price != nil {
			item.Price = *v.Price
		}
		item.DiscountedPrice = p.BaseDiscountedPrice
		if v.DiscountedPrice != nil {
			item.DiscountedPrice = v.DiscountedPrice
		}
		item.ProductImages = p.Images
		if len(v.Images) > 0 {
			item.ProductImages = v.Images
		}
		item.Attributes = v.Attributes.Merge(attrs)
	} else {
		stock = p.BaseStock
		item.Price = p.BasePrice
		item.DiscountedPrice = p.BaseDiscountedPrice
		item.ProductImages = p.Images
		item.Attributes = p.BaseAttributes.Merge(attrs)
	}

	if stock < quantity {
		return nil, domain.Errorf(domain.KindInsufficientStock, op, "Insufficient stock for %s. Available: %d", p.Name, stock)
	}

	// A discount above the list price is a catalog error; charge list price.
	if item.DiscountedPrice != nil && item.DiscountedPrice.GreaterThan(item.Price) {
		item.DiscountedPrice = nil
	}
	if item.DiscountedPrice != nil {
		d := *item.DiscountedPrice
		item.DiscountedPrice = &d
	}
	item.ProductImages = append([]string{}, item.ProductImages...)

	return item, nil
}

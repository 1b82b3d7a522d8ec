package catalog

import (
	"context"
	"errors"

	"github.com/fjod/shopcart/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

// Lookup is the read-only product catalog the cart and checkout depend on.
// Both methods return ErrProductNotFound when nothing matches.
type Lookup interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)

	// FindBySku matches the product's base SKU or any of its variant SKUs.
	FindBySku(ctx context.Context, sku string) (*domain.Product, error)
}

func cloneProduct(p *domain.Product) *domain.Product {
	c := *p
	c.Images = append([]string(nil), p.Images...)
	if p.BaseDiscountedPrice != nil {
		d := *p.BaseDiscountedPrice
		c.BaseDiscountedPrice = &d
	}
	c.Variants = make([]domain.Variant, len(p.Variants))
	for i, v := range p.Variants {
		cv := v
		cv.Images = append([]string(nil), v.Images...)
		if v.Price != nil {
			d := *v.Price
			cv.Price = &d
		}
		if v.DiscountedPrice != nil {
			d := *v.DiscountedPrice
			cv.DiscountedPrice = &d
		}
		c.Variants[i] = cv
	}
	return &c
}

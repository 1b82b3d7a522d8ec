// Package pricing derives monetary totals from priced line items.
// Everything here is pure: no I/O, no clock.
package pricing

import (
	"github.com/fjod/shopcart/internal/domain"
	"github.com/shopspring/decimal"
)

// Summary is the aggregate of a set of line items.
type Summary struct {
	Subtotal   decimal.Decimal
	TotalItems int
}

// Price sums (discountedPrice ?? price) * quantity and the quantities.
func Price(items []domain.CartItem) Summary {
	subtotal := decimal.Zero
	totalItems := 0
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice().Mul(decimal.NewFromInt(int64(item.Quantity))))
		totalItems += item.Quantity
	}
	return Summary{Subtotal: subtotal, TotalItems: totalItems}
}

// Total is subtotal + shippingCost - discount.
//
// The result is not clamped at zero: a discount larger than subtotal plus
// shipping yields a negative total. Callers that accept discounts must
// validate them before calling.
func Total(subtotal, shippingCost, discount decimal.Decimal) decimal.Decimal {
	return subtotal.Add(shippingCost).Sub(discount)
}

// Snapshot freezes items into a cart snapshot. The item slice is copied so
// later mutation of the source cannot leak into the snapshot.
func Snapshot(items []domain.CartItem) domain.CartSnapshot {
	frozen := make([]domain.CartItem, len(items))
	for i, item := range items {
		frozen[i] = item
		if item.ProductImages != nil {
			frozen[i].ProductImages = append([]string(nil), item.ProductImages...)
		}
		if item.DiscountedPrice != nil {
			d := *item.DiscountedPrice
			frozen[i].DiscountedPrice = &d
		}
	}
	s := Price(frozen)
	return domain.CartSnapshot{
		Items:      frozen,
		Subtotal:   s.Subtotal,
		TotalItems: s.TotalItems,
	}
}

// Initial is the pricing of a freshly created session: subtotal only.
func Initial(snapshot domain.CartSnapshot) domain.Pricing {
	return domain.Pricing{
		Subtotal:     snapshot.Subtotal,
		ShippingCost: decimal.Zero,
		Discount:     decimal.Zero,
		Total:        Total(snapshot.Subtotal, decimal.Zero, decimal.Zero),
	}
}

// WithShipping returns p with the shipping cost replaced and the total recomputed.
func WithShipping(p domain.Pricing, shippingCost decimal.Decimal) domain.Pricing {
	p.ShippingCost = shippingCost
	p.Total = Total(p.Subtotal, shippingCost, p.Discount)
	return p
}

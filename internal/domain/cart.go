package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a priced, denormalized snapshot of one SKU in a cart.
type CartItem struct {
	ProductID       string           `bson:"product_id" json:"productId"`
	SKU             string           `bson:"sku" json:"sku"`
	Quantity        int              `bson:"quantity" json:"quantity"`
	Price           decimal.Decimal  `bson:"price" json:"price"`
	DiscountedPrice *decimal.Decimal `bson:"discounted_price,omitempty" json:"discountedPrice,omitempty"`
	ProductName     string           `bson:"product_name" json:"productName"`
	ProductImages   []string         `bson:"product_images" json:"productImages"`
	Attributes      Attributes       `bson:"attributes" json:"attributes"`
	IsVariant       bool             `bson:"is_variant" json:"isVariant"`
}

// UnitPrice is the price actually charged per unit: the discounted price
// when present, the list price otherwise.
func (i CartItem) UnitPrice() decimal.Decimal {
	if i.DiscountedPrice != nil {
		return *i.DiscountedPrice
	}
	return i.Price
}

// Cart is the authoritative per-user cart document.
type Cart struct {
	ID     string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID string     `bson:"user_id" json:"userId"`
	Items  []CartItem `bson:"items" json:"items"`

	// Version is bumped on every successful write and guards against lost updates.
	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// FindItem returns the index of the item with the given SKU.
func (c *Cart) FindItem(sku string) (int, bool) {
	for i := range c.Items {
		if c.Items[i].SKU == sku {
			return i, true
		}
	}
	return -1, false
}

// TotalItems is the sum of all item quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

package domain

import "github.com/shopspring/decimal"

// Attributes describes the presentational traits of a product or variant.
type Attributes struct {
	Color    string `bson:"color,omitempty" json:"color,omitempty"`
	Size     string `bson:"size,omitempty" json:"size,omitempty"`
	Material string `bson:"material,omitempty" json:"material,omitempty"`
	Brand    string `bson:"brand,omitempty" json:"brand,omitempty"`
	Style    string `bson:"style,omitempty" json:"style,omitempty"`
	Pattern  string `bson:"pattern,omitempty" json:"pattern,omitempty"`
}

// Merge returns a copy of a where every non-empty field of override wins.
func (a Attributes) Merge(override *Attributes) Attributes {
	if override == nil {
		return a
	}
	merged := a
	if override.Color != "" {
		merged.Color = override.Color
	}
	if override.Size != "" {
		merged.Size = override.Size
	}
	if override.Material != "" {
		merged.Material = override.Material
	}
	if override.Brand != "" {
		merged.Brand = override.Brand
	}
	if override.Style != "" {
		merged.Style = override.Style
	}
	if override.Pattern != "" {
		merged.Pattern = override.Pattern
	}
	return merged
}

// Variant is a purchasable sub-entity of a product with its own SKU and stock.
type Variant struct {
	SKU             string           `bson:"sku" json:"sku"`
	Stock           int              `bson:"stock" json:"stock"`
	Price           *decimal.Decimal `bson:"price,omitempty" json:"price,omitempty"`
	DiscountedPrice *decimal.Decimal `bson:"discounted_price,omitempty" json:"discountedPrice,omitempty"`
	Images          []string         `bson:"images,omitempty" json:"images,omitempty"`
	Attributes      Attributes       `bson:"attributes" json:"attributes"`
}

// Product is the catalog view the cart and checkout logic reads.
type Product struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	SKU                 string           `json:"sku"`
	IsActive            bool             `json:"isActive"`
	BaseStock           int              `json:"baseStock"`
	BasePrice           decimal.Decimal  `json:"basePrice"`
	BaseDiscountedPrice *decimal.Decimal `json:"baseDiscountedPrice,omitempty"`
	Images              []string         `json:"images"`
	BaseAttributes      Attributes       `json:"baseAttributes"`
	Variants            []Variant        `json:"variants"`
}

// Variant returns the variant with the given SKU.
func (p *Product) Variant(sku string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// HasSku reports whether sku is the base SKU or one of the variant SKUs.
func (p *Product) HasSku(sku string) bool {
	if p.SKU == sku {
		return true
	}
	_, ok := p.Variant(sku)
	return ok
}

package service

import (
	"context"
	"testing"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_BaseProduct(t *testing.T) {
	r := NewResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "p-shirt", "TS-001", 2, nil)
	require.NoError(t, err)

	assert.Equal(t, "p-shirt", item.ProductID)
	assert.Equal(t, "TS-001", item.SKU)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "T-Shirt", item.ProductName)
	assert.False(t, item.IsVariant)
	assert.True(t, dec("20").Equal(item.Price))
	require.NotNil(t, item.DiscountedPrice)
	assert.True(t, dec("18").Equal(*item.DiscountedPrice))
	assert.Equal(t, []string{"shirt.png"}, item.ProductImages)
	assert.Equal(t, domain.Attributes{Material: "cotton", Brand: "Acme"}, item.Attributes)
}

func TestResolve_VariantWithOwnPrice(t *testing.T) {
	r := NewResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "p-shirt", "TS-001-RED", 1, nil)
	require.NoError(t, err)

	assert.True(t, item.IsVariant)
	assert.True(t, dec("25").Equal(item.Price))
	// base discount 18 still applies and is below the variant price
	require.NotNil(t, item.DiscountedPrice)
	assert.True(t, dec("18").Equal(*item.DiscountedPrice))
	assert.Equal(t, []string{"shirt.png"}, item.ProductImages)
	assert.Equal(t, "red", item.Attributes.Color)
}

func TestResolve_VariantFallsBackToBasePrice(t *testing.T) {
	r := NewResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "p-shirt", "TS-001-BLUE", 1, nil)
	require.NoError(t, err)

	assert.True(t, dec("20").Equal(item.Price))
	require.NotNil(t, item.DiscountedPrice)
	assert.True(t, dec("15").Equal(*item.DiscountedPrice))
	assert.Equal(t, []string{"blue.png"}, item.ProductImages)
}

func TestResolve_CallerAttributesOverrideFieldwise(t *testing.T) {
	r := NewResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "p-shirt", "TS-001-RED", 1, &domain.Attributes{Size: "XL"})
	require.NoError(t, err)

	assert.Equal(t, domain.Attributes{Color: "red", Size: "XL"}, item.Attributes)
}

func TestResolve_DropsDiscountAbovePrice(t *testing.T) {
	c := testCatalog()
	c.Put(&domain.Product{
		ID: "p-bad", Name: "Bad", SKU: "BAD-1", IsActive: true, BaseStock: 1,
		BasePrice: dec("10"), BaseDiscountedPrice: decPtr("12"),
	})
	r := NewResolver(c)

	item, err := r.Resolve(context.Background(), "p-bad", "BAD-1", 1, nil)
	require.NoError(t, err)

	assert.Nil(t, item.DiscountedPrice)
	assert.True(t, dec("10").Equal(item.UnitPrice()))
}

func TestResolve_Failures(t *testing.T) {
	r := NewResolver(testCatalog())

	tests := []struct {
		name      string
		productID string
		sku       string
		quantity  int
		want      error
	}{
		{"unknown product", "p-none", "X", 1, domain.ErrNotFound},
		{"inactive product", "p-old", "OLD-1", 1, domain.ErrInactive},
		{"sku of another product", "p-shirt", "MUG-1", 1, domain.ErrInvalidSku},
		{"base stock exceeded", "p-shirt", "TS-001", 11, domain.ErrInsufficientStock},
		{"variant stock exceeded", "p-shirt", "TS-001-BLUE", 4, domain.ErrInsufficientStock},
		{"zero quantity", "p-shirt", "TS-001", 0, domain.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := r.Resolve(context.Background(), tt.productID, tt.sku, tt.quantity, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, item)
		})
	}
}

func TestResolve_StockBoundaryIsInclusive(t *testing.T) {
	r := NewResolver(testCatalog())

	_, err := r.Resolve(context.Background(), "p-shirt", "TS-001-BLUE", 3, nil)
	assert.NoError(t, err)
}

func TestResolve_CatalogFailureIsInternal(t *testing.T) {
	r := NewResolver(failingCatalog{})

	_, err := r.Resolve(context.Background(), "p-shirt", "TS-001", 1, nil)

	assert.Equal(t, domain.KindInternal, domain.ErrorKind(err))
}

func TestResolveBySku(t *testing.T) {
	r := NewResolver(testCatalog())
	ctx := context.Background()

	item, err := r.ResolveBySku(ctx, "TS-001-BLUE", 2)
	require.NoError(t, err)
	assert.Equal(t, "p-shirt", item.ProductID)
	assert.True(t, item.IsVariant)

	_, err = r.ResolveBySku(ctx, "NOPE", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.ResolveBySku(ctx, "OLD-1", 1)
	assert.ErrorIs(t, err, domain.ErrInactive)
}

func TestResolve_SnapshotIsDetachedFromCatalog(t *testing.T) {
	c := testCatalog()
	r := NewResolver(c)

	item, err := r.Resolve(context.Background(), "p-shirt", "TS-001", 1, nil)
	require.NoError(t, err)
	item.ProductImages[0] = "changed.png"

	again, err := r.Resolve(context.Background(), "p-shirt", "TS-001", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "shirt.png", again.ProductImages[0])
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/shopcart/internal/domain"
	"github.com/fjod/shopcart/internal/logger"
)

// SyncItem is one line of a client-held cart.
type SyncItem struct {
	ProductID  string
	SKU        string
	Quantity   int
	Attributes *domain.Attributes
}

// ItemError reports a client line that could not be merged.
type ItemError struct {
	SKU   string      `json:"sku"`
	Kind  domain.Kind `json:"code"`
	Error string      `json:"error"`
}

type ReconcileResult struct {
	Cart   *domain.Cart
	Errors []ItemError
}

// Reconciler merges a client-held cart into the user's stored cart.
// Per-item failures are collected, not returned; only CartFull and storage
// failures fail the whole call.
type Reconciler struct {
	carts  *CartService
	logger *slog.Logger
}

func NewReconciler(carts *CartService, l *slog.Logger) *Reconciler {
	return &Reconciler{carts: carts, logger: logger.OrDefault(l)}
}

// Reconcile keeps stored lines in their order, takes the client quantity
// (capped at the per-item maximum) for lines both sides have, then appends
// client-only lines. A stored line whose re-validation fails is kept as is.
// When the client sends a SKU twice, the last occurrence wins.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, items []SyncItem) (result *ReconcileResult, err error) {
	const op = "cart.reconcile"
	defer r.carts.observe("reconcile", time.Now(), &err)

	limits := r.carts.limits
	var itemErrors []ItemError

	cart, err := r.carts.mutate(ctx, op, userID, r.carts.repo.FindOrCreate, func(cart *domain.Cart) error {
		itemErrors = itemErrors[:0]

		validated := make(map[string]domain.CartItem, len(items))
		clientQty := make(map[string]int, len(items))
		var order []string
		for _, ci := range items {
			item, err := r.carts.resolver.Resolve(ctx, ci.ProductID, ci.SKU, ci.Quantity, ci.Attributes)
			if err != nil {
				itemErrors = append(itemErrors, newItemError(ci.SKU, err))
				continue
			}
			if _, seen := validated[ci.SKU]; !seen {
				order = append(order, ci.SKU)
			}
			validated[ci.SKU] = *item
			clientQty[ci.SKU] = ci.Quantity
		}

		merged := make([]domain.CartItem, 0, len(cart.Items)+len(order))
		inCart := make(map[string]bool, len(cart.Items))
		for _, existing := range cart.Items {
			inCart[existing.SKU] = true

			client, ok := validated[existing.SKU]
			if !ok {
				merged = append(merged, existing)
				continue
			}

			qty := min(clientQty[existing.SKU], limits.MaxQuantityPerItem)
			attrs := client.Attributes
			item, err := r.carts.resolver.Resolve(ctx, client.ProductID, existing.SKU, qty, &attrs)
			if err != nil {
				itemErrors = append(itemErrors, ItemError{
					SKU:   existing.SKU,
					Kind:  domain.ErrorKind(err),
					Error: "Could not sync quantity: " + domain.ErrorMessage(err),
				})
				merged = append(merged, existing)
				continue
			}
			merged = append(merged, *item)
		}

		for _, sku := range order {
			if inCart[sku] {
				continue
			}
			item := validated[sku]
			item.Quantity = min(item.Quantity, limits.MaxQuantityPerItem)
			merged = append(merged, item)
		}

		if len(merged) > limits.MaxItems {
			return domain.Errorf(domain.KindCartFull, op, "Cart cannot contain more than %d items", limits.MaxItems)
		}

		cart.Items = merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(itemErrors) > 0 {
		r.logger.WarnContext(ctx, "cart reconciled with item errors",
			slog.String("user_id", userID),
			slog.Int("errors", len(itemErrors)),
		)
	}

	return &ReconcileResult{Cart: cart, Errors: itemErrors}, nil
}

func newItemError(sku string, err error) ItemError {
	return ItemError{SKU: sku, Kind: domain.ErrorKind(err), Error: domain.ErrorMessage(err)}
}

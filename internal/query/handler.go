package query

import (
	"context"
	"fmt"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/order"
)

// LineItemView is a line item with the product's current display name.
// ProductName is empty when the product has since been removed.
type LineItemView struct {
	order.LineItem
	ProductName string `json:"product_name"`
}

type OrderView struct {
	order.Order
	Items []LineItemView `json:"items"`
}

type Handler struct {
	orders  order.Repository
	catalog catalog.Reader
}

func NewHandler(orders order.Repository, catalog catalog.Reader) *Handler {
	return &Handler{orders: orders, catalog: catalog}
}

// GetOrder returns the order if the viewer owns it or is an admin.
func (h *Handler) GetOrder(ctx context.Context, id, userID string, admin bool) (*OrderView, error) {
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && !o.IsOwnedBy(userID) {
		return nil, order.ErrForbidden
	}
	views, err := h.joinProducts(ctx, []order.Order{*o})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListMine returns the user's orders, newest first.
func (h *Handler) ListMine(ctx context.Context, userID string) ([]OrderView, error) {
	orders, err := h.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", userID, err)
	}
	return h.joinProducts(ctx, orders)
}

// ListAll returns every order, newest first.
func (h *Handler) ListAll(ctx context.Context) ([]OrderView, error) {
	orders, err := h.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return h.joinProducts(ctx, orders)
}

// joinProducts attaches product names with one catalog read for the whole batch.
func (h *Handler) joinProducts(ctx context.Context, orders []order.Order) ([]OrderView, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, o := range orders {
		for _, li := range o.Items {
			if _, ok := seen[li.ProductID]; !ok {
				seen[li.ProductID] = struct{}{}
				ids = append(ids, li.ProductID)
			}
		}
	}

	byID := map[string]*catalog.Product{}
	if len(ids) > 0 {
		products, err := h.catalog.FindProductsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load products: %w", err)
		}
		byID = catalog.Index(products)
	}

	views := make([]OrderView, len(orders))
	for i, o := range orders {
		items := make([]LineItemView, len(o.Items))
		for j, li := range o.Items {
			items[j] = LineItemView{LineItem: li}
			if p, ok := byID[li.ProductID]; ok {
				items[j].ProductName = p.Name
			}
		}
		views[i] = OrderView{Order: o, Items: items}
	}
	return views, nil
}

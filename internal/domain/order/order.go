package order

import (
	"context"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/money"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts one of the five known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", ErrInvalidStatus
}

type Customization struct {
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
	// AppliedFee is the per-unit fee charged when the order was placed.
	AppliedFee money.Amount `json:"applied_fee"`
}

// LineItem is written once, at order creation.
type LineItem struct {
	ProductID     string         `json:"product_id"`
	Quantity      int            `json:"quantity"`
	Price         money.Amount   `json:"price"`
	Size          catalog.Size   `json:"size"`
	Customization *Customization `json:"customization,omitempty"`
}

type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a ShippingAddress) complete() bool {
	return strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.Country) != ""
}

type Order struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Items            []LineItem       `json:"items"`
	TotalAmount      money.Amount     `json:"total_amount"`
	DiscountAmount   money.Amount     `json:"discount_amount"`
	CouponApplied    *coupon.Snapshot `json:"coupon_applied"`
	Status           Status           `json:"status"`
	Contact          string           `json:"contact"`
	ShippingAddress  ShippingAddress  `json:"shipping_address"`
	WhatsappNotified bool             `json:"whatsapp_notified"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Version          int              `json:"version"`
}

// New builds a pending order from a priced cart.
func New(userID string, priced *Priced, shipping ShippingAddress, contact string, now time.Time) (*Order, error) {
	if len(priced.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if !shipping.complete() || strings.TrimSpace(contact) == "" {
		return nil, ErrInvalidShipping
	}

	return &Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           priced.Items,
		TotalAmount:     priced.TotalAmount,
		DiscountAmount:  priced.DiscountAmount,
		CouponApplied:   priced.CouponApplied,
		Status:          StatusPending,
		Contact:         contact,
		ShippingAddress: shipping,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}, nil
}

// StockItems lists the stock movements backing the order's line items.
func (o *Order) StockItems() []inventory.Item {
	items := make([]inventory.Item, len(o.Items))
	for i, li := range o.Items {
		items[i] = inventory.Item{
			ProductID: li.ProductID,
			Size:      li.Size,
			Quantity:  li.Quantity,
		}
	}
	return items
}

func (o *Order) IsOwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// Repository persists orders. Update is a compare-and-set on Version.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Get returns ErrOrderNotFound when id is unknown.
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// Update stores o if the stored version still equals o.Version, then
	// bumps o.Version. Returns ErrStaleOrder otherwise.
	Update(ctx context.Context, o *Order) error
}

// UnitOfWork exposes the stores that take part in one atomic order write.
type UnitOfWork interface {
	Stock() inventory.StockStore
	Orders() Repository
	Coupons() coupon.Ledger
}

// Transactor runs fn as one unit; any error returned by fn undoes its writes.
type Transactor interface {
	Within(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

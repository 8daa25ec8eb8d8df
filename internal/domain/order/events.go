package order

import (
	"time"

	"github.com/example/storefront-orders/internal/money"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
)

type OrderPlaced struct {
	OrderID     string       `json:"order_id"`
	UserID      string       `json:"user_id"`
	Items       []LineItem   `json:"items"`
	TotalAmount money.Amount `json:"total_amount"`
	CouponCode  string       `json:"coupon_code,omitempty"`
	Contact     string       `json:"contact"`
	PlacedAt    time.Time    `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Contact   string    `json:"contact"`
	ChangedAt time.Time `json:"changed_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	CancelledBy string    `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PlacedEvent builds the payload announced after o is committed.
func PlacedEvent(o *Order) OrderPlaced {
	e := OrderPlaced{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       o.Items,
		TotalAmount: o.TotalAmount,
		Contact:     o.Contact,
		PlacedAt:    o.CreatedAt,
	}
	if o.CouponApplied != nil {
		e.CouponCode = o.CouponApplied.Code
	}
	return e
}

package command

import "github.com/example/storefront-orders/internal/domain/order"

// Actor is the authenticated caller of a command.
type Actor struct {
	UserID string
	Admin  bool
}

// Order Commands
type PlaceOrder struct {
	Actor           Actor
	Items           []order.CartLine
	CouponCode      string
	ShippingAddress order.ShippingAddress
	Contact         string
	// IdempotencyKey is optional. Replays with the same key return the
	// order created by the first attempt.
	IdempotencyKey string
}

type CancelOrder struct {
	Actor   Actor
	OrderID string
}

type UpdateStatus struct {
	Actor   Actor
	OrderID string
	Status  order.Status
}

type UpdateShipping struct {
	Actor   Actor
	OrderID string
	Patch   order.ShippingPatch
}

// Placed is the outcome of PlaceOrder.
type Placed struct {
	Order *order.Order
	// Replayed is set when the order was created by an earlier request
	// carrying the same idempotency key.
	Replayed bool
}

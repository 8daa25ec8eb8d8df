package order

import (
	"errors"
	"fmt"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
)

var (
	ErrEmptyCart         = errors.New("no order items")
	ErrProductNotFound   = errors.New("product not found")
	ErrSizeRequired      = errors.New("size is required")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidShipping   = errors.New("shipping address and contact are required")
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrOrderLocked       = errors.New("order can no longer be edited")
	ErrForbidden         = errors.New("not authorized for this order")
	ErrStaleOrder        = errors.New("order was modified concurrently")
	ErrRestitutionFailed = errors.New("stock restitution failed, order left pending")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with id %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

func (e *ProductNotFoundError) Details() map[string]any {
	return map[string]any{"product_id": e.ProductID}
}

type SizeRequiredError struct {
	ProductName string
}

func (e *SizeRequiredError) Error() string {
	return fmt.Sprintf("size is required for %s", e.ProductName)
}

func (e *SizeRequiredError) Unwrap() error { return ErrSizeRequired }

func (e *SizeRequiredError) Details() map[string]any {
	return map[string]any{"product_name": e.ProductName}
}

// TransitionError is returned when target cannot be reached from From.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

func (e *TransitionError) Details() map[string]any {
	return map[string]any{"current_status": e.From, "requested_status": e.To}
}

type LockedError struct {
	Status Status
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("order is %s; shipping details can only change while pending", e.Status)
}

func (e *LockedError) Unwrap() error { return ErrOrderLocked }

func (e *LockedError) Details() map[string]any {
	return map[string]any{"current_status": e.Status}
}

// Kind classifies an error for the boundary layer.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindForbidden
	KindRetryable
)

// KindOf maps errors from the order, coupon, catalog and inventory packages to a Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrSizeRequired),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidShipping),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, catalog.ErrInvalidSize),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, coupon.ErrExpiredOrInactive),
		errors.Is(err, coupon.ErrMinimumNotMet),
		errors.Is(err, coupon.ErrInvalidCode),
		errors.Is(err, coupon.ErrInvalidType),
		errors.Is(err, coupon.ErrInvalidValue),
		errors.Is(err, coupon.ErrInvalidUsageLimit),
		errors.Is(err, coupon.ErrInvalidMinPurchase),
		errors.Is(err, coupon.ErrInvalidExpiry):
		return KindInvalid
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, coupon.ErrNotFound):
		return KindNotFound
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, coupon.ErrUsageConflict),
		errors.Is(err, coupon.ErrDuplicateCode),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrOrderLocked),
		errors.Is(err, ErrStaleOrder):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrRestitutionFailed):
		return KindRetryable
	}
	return KindInternal
}

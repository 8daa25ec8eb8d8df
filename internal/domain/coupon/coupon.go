package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/money"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	ErrNotFound           = errors.New("coupon not found")
	ErrExpiredOrInactive  = errors.New("coupon is not active or has expired")
	ErrMinimumNotMet      = errors.New("coupon minimum purchase not met")
	ErrUsageConflict      = errors.New("coupon usage limit reached concurrently")
	ErrDuplicateCode      = errors.New("coupon with this code already exists")
	ErrInvalidCode        = errors.New("coupon code is required")
	ErrInvalidType        = errors.New("discount type must be percentage or fixed")
	ErrInvalidValue       = errors.New("discount value must not be negative")
	ErrInvalidUsageLimit  = errors.New("usage limit must be at least 1")
	ErrInvalidMinPurchase = errors.New("minimum purchase must not be negative")
	ErrInvalidExpiry      = errors.New("expiry date is required")
)

// MinimumError reports the minimum purchase a subtotal failed to reach.
type MinimumError struct {
	MinPurchase money.Amount
	Subtotal    money.Amount
}

func (e *MinimumError) Error() string {
	return fmt.Sprintf("order subtotal must be at least %s", e.MinPurchase)
}

func (e *MinimumError) Unwrap() error { return ErrMinimumNotMet }

func (e *MinimumError) Details() map[string]any {
	return map[string]any{"min_purchase": e.MinPurchase, "subtotal": e.Subtotal}
}

type Coupon struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	ExpiryDate    time.Time    `json:"expiry_date"`
	MinPurchase   money.Amount `json:"min_purchase"`
	UsageLimit    int          `json:"usage_limit"`
	TimesUsed     int          `json:"times_used"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValid reports whether the coupon may still be applied at now.
func (c *Coupon) IsValid(now time.Time) bool {
	return c.IsActive && now.Before(c.ExpiryDate) && c.TimesUsed < c.UsageLimit
}

// Discount computes the discount for subtotal, clamped to the subtotal.
func (c *Coupon) Discount(subtotal money.Amount) money.Amount {
	var discount money.Amount
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal.Percent(c.DiscountValue)
	case DiscountFixed:
		discount = money.FromFloat(c.DiscountValue)
	}
	if discount < 0 {
		return 0
	}
	return money.Min(discount, subtotal)
}

// Evaluate checks the coupon against subtotal at now and returns the discount.
func (c *Coupon) Evaluate(subtotal money.Amount, now time.Time) (money.Amount, error) {
	if !c.IsValid(now) {
		return 0, ErrExpiredOrInactive
	}
	if subtotal < c.MinPurchase {
		return 0, &MinimumError{MinPurchase: c.MinPurchase, Subtotal: subtotal}
	}
	return c.Discount(subtotal), nil
}

// Snapshot is the copy of a coupon's terms stored on an order.
type Snapshot struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
}

func (c *Coupon) Snapshot() *Snapshot {
	return &Snapshot{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
	}
}

// Ledger is the coupon state consulted and mutated while placing orders.
type Ledger interface {
	// FindByCode looks up a normalized code. Returns ErrNotFound when absent.
	FindByCode(ctx context.Context, code string) (*Coupon, error)

	// IncrementUsage adds one use if the coupon is still valid at now.
	// Returns ErrUsageConflict when the condition no longer holds.
	IncrementUsage(ctx context.Context, id string, now time.Time) error
}

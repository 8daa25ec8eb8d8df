package coupon

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/storefront-orders/internal/money"
	"github.com/google/uuid"
)

// Store persists coupons for administration.
type Store interface {
	Ledger
	List(ctx context.Context) ([]Coupon, error)
	Get(ctx context.Context, id string) (*Coupon, error)
	// Insert returns ErrDuplicateCode when the code is taken.
	Insert(ctx context.Context, c *Coupon) error
	Save(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
}

type NewCoupon struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue float64
	ExpiryDate    time.Time
	MinPurchase   money.Amount
	UsageLimit    int // zero means the default of 1
}

// Patch lists the fields an administrator may change. Nil fields are left alone.
type Patch struct {
	DiscountType  *DiscountType
	DiscountValue *float64
	ExpiryDate    *time.Time
	MinPurchase   *money.Amount
	UsageLimit    *int
	IsActive      *bool
}

// Quote is the result of checking a code against a subtotal.
type Quote struct {
	Code           string       `json:"code"`
	DiscountAmount money.Amount `json:"discount_amount"`
	NewTotal       money.Amount `json:"new_total"`
}

type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store Store) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "coupon"),
	}
}

func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in NewCoupon) (*Coupon, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	limit := in.UsageLimit
	if limit == 0 {
		limit = 1
	}

	now := s.now()
	c := &Coupon{
		ID:            uuid.New().String(),
		Code:          code,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		ExpiryDate:    in.ExpiryDate,
		MinPurchase:   in.MinPurchase,
		UsageLimit:    limit,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, c); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "coupon created", "coupon_id", c.ID, "code", c.Code)
	return c, nil
}

// Update applies p to the coupon. Code, usage count and id cannot change.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Coupon, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.DiscountType != nil {
		c.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		c.DiscountValue = *p.DiscountValue
	}
	if p.ExpiryDate != nil {
		c.ExpiryDate = *p.ExpiryDate
	}
	if p.MinPurchase != nil {
		c.MinPurchase = *p.MinPurchase
	}
	if p.UsageLimit != nil {
		c.UsageLimit = *p.UsageLimit
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if err := validate(c); err != nil {
		return nil, err
	}

	c.UpdatedAt = s.now()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Quote checks code against subtotal without recording a use.
func (s *Service) Quote(ctx context.Context, code string, subtotal money.Amount) (*Quote, error) {
	c, err := s.store.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	discount, err := c.Evaluate(subtotal, s.now())
	if err != nil {
		return nil, err
	}
	return &Quote{
		Code:           c.Code,
		DiscountAmount: discount,
		NewTotal:       subtotal - discount,
	}, nil
}

func validate(c *Coupon) error {
	switch {
	case c.Code == "":
		return ErrInvalidCode
	case !c.DiscountType.Valid():
		return ErrInvalidType
	case c.DiscountValue < 0:
		return ErrInvalidValue
	case c.ExpiryDate.IsZero():
		return ErrInvalidExpiry
	case c.MinPurchase < 0:
		return ErrInvalidMinPurchase
	case c.UsageLimit < 1:
		return ErrInvalidUsageLimit
	}
	return nil
}

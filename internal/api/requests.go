package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/money"
	"github.com/go-playground/validator/v10"
)

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Order Requests

type customizationRequest struct {
	Name   string `json:"name" validate:"max=30"`
	Number string `json:"number" validate:"max=3"`
}

type cartItemRequest struct {
	ProductID     string                `json:"product_id" validate:"required"`
	Quantity      int                   `json:"quantity" validate:"min=1"`
	Size          string                `json:"size" validate:"omitempty,oneof=S M L XL XXL"`
	Customization *customizationRequest `json:"customization"`
}

type shippingRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

func (s shippingRequest) toAddress() order.ShippingAddress {
	return order.ShippingAddress{
		Address:    strings.TrimSpace(s.Address),
		City:       strings.TrimSpace(s.City),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Country:    strings.TrimSpace(s.Country),
	}
}

// An empty item list is left to the order domain, which reports it as
// empty_cart.
type placeOrderRequest struct {
	Items           []cartItemRequest `json:"items" validate:"dive"`
	CouponCode      string            `json:"coupon_code"`
	ShippingAddress shippingRequest   `json:"shipping_address"`
	Contact         string            `json:"contact" validate:"required"`
}

// normalize canonicalizes sizes so "m" is accepted as "M". Unsupported sizes
// are left as sent for the oneof check to report.
func (req *placeOrderRequest) normalize() {
	for i := range req.Items {
		if size, err := catalog.ParseSize(req.Items[i].Size); err == nil {
			req.Items[i].Size = string(size)
		}
	}
}

func (req *placeOrderRequest) cart() []order.CartLine {
	lines := make([]order.CartLine, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.CartLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Size:      catalog.Size(it.Size),
		}
		if it.Customization != nil {
			lines[i].Customization = &order.CustomizationRequest{
				Name:   it.Customization.Name,
				Number: it.Customization.Number,
			}
		}
	}
	return lines
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type shippingPatchRequest struct {
	ShippingAddress *shippingRequest `json:"shipping_address"`
	Contact         *string          `json:"contact" validate:"omitempty,min=1"`
}

func (req *shippingPatchRequest) patch() order.ShippingPatch {
	var p order.ShippingPatch
	if req.ShippingAddress != nil {
		addr := req.ShippingAddress.toAddress()
		p.ShippingAddress = &addr
	}
	if req.Contact != nil {
		contact := strings.TrimSpace(*req.Contact)
		p.Contact = &contact
	}
	return p
}

// Coupon Requests

type createCouponRequest struct {
	Code          string       `json:"code" validate:"required"`
	DiscountType  string       `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue float64      `json:"discount_value" validate:"gte=0"`
	ExpiryDate    time.Time    `json:"expiry_date" validate:"required"`
	MinPurchase   money.Amount `json:"min_purchase" validate:"gte=0"`
	UsageLimit    int          `json:"usage_limit" validate:"omitempty,min=1"`
}

func (req *createCouponRequest) toNew() coupon.NewCoupon {
	return coupon.NewCoupon{
		Code:          req.Code,
		DiscountType:  coupon.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		ExpiryDate:    req.ExpiryDate,
		MinPurchase:   req.MinPurchase,
		UsageLimit:    req.UsageLimit,
	}
}

// updateCouponRequest lists the only patchable fields. Code, times_used and
// id are not accepted.
type updateCouponRequest struct {
	DiscountType  *string       `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue *float64      `json:"discount_value" validate:"omitempty,gte=0"`
	ExpiryDate    *time.Time    `json:"expiry_date"`
	MinPurchase   *money.Amount `json:"min_purchase" validate:"omitempty,gte=0"`
	UsageLimit    *int          `json:"usage_limit" validate:"omitempty,min=1"`
	IsActive      *bool         `json:"is_active"`
}

func (req *updateCouponRequest) toPatch() coupon.Patch {
	p := coupon.Patch{
		DiscountValue: req.DiscountValue,
		ExpiryDate:    req.ExpiryDate,
		MinPurchase:   req.MinPurchase,
		UsageLimit:    req.UsageLimit,
		IsActive:      req.IsActive,
	}
	if req.DiscountType != nil {
		dt := coupon.DiscountType(*req.DiscountType)
		p.DiscountType = &dt
	}
	return p
}

type validateCouponRequest struct {
	CouponCode string       `json:"coupon_code" validate:"required"`
	Subtotal   money.Amount `json:"subtotal" validate:"gt=0"`
}

package api

import (
	"net/http"

	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// CouponHandlers serves coupon administration and the coupon check used
// by the checkout page.
type CouponHandlers struct {
	service  *coupon.Service
	validate *validator.Validate
}

func NewCouponHandlers(service *coupon.Service) *CouponHandlers {
	return &CouponHandlers{
		service:  service,
		validate: newValidator(),
	}
}

func (h *CouponHandlers) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, coupons)
}

func (h *CouponHandlers) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), req.toNew())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *CouponHandlers) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req updateCouponRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CouponHandlers) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Coupon removed"})
}

// ValidateCoupon prices a subtotal against a code without using it up.
func (h *CouponHandlers) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	quote, err := h.service.Quote(r.Context(), req.CouponCode, req.Subtotal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

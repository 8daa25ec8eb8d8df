package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/domain/catalog"
	"github.com/example/storefront-orders/internal/domain/coupon"
	"github.com/example/storefront-orders/internal/domain/inventory"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// detailer is implemented by domain errors that carry correction context.
type detailer interface {
	Details() map[string]any
}

// errorCodes is checked in order; the first sentinel err matches wins.
var errorCodes = []struct {
	target error
	code   string
}{
	{command.ErrRequestInProgress, "request_in_progress"},
	{order.ErrEmptyCart, "empty_cart"},
	{order.ErrSizeRequired, "size_required"},
	{order.ErrInvalidQuantity, "invalid_quantity"},
	{inventory.ErrInvalidQuantity, "invalid_quantity"},
	{order.ErrInvalidShipping, "invalid_shipping"},
	{order.ErrInvalidStatus, "invalid_status"},
	{catalog.ErrInvalidSize, "invalid_size"},
	{order.ErrProductNotFound, "product_not_found"},
	{order.ErrOrderNotFound, "order_not_found"},
	{coupon.ErrNotFound, "coupon_not_found"},
	{coupon.ErrExpiredOrInactive, "coupon_expired_or_inactive"},
	{coupon.ErrMinimumNotMet, "coupon_minimum_not_met"},
	{coupon.ErrUsageConflict, "coupon_usage_conflict"},
	{coupon.ErrDuplicateCode, "duplicate_coupon_code"},
	{inventory.ErrInsufficientStock, "insufficient_stock"},
	{order.ErrIllegalTransition, "illegal_transition"},
	{order.ErrOrderLocked, "order_locked"},
	{order.ErrStaleOrder, "stale_order"},
	{order.ErrForbidden, "forbidden"},
	{order.ErrRestitutionFailed, "restitution_failed"},
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err with the status of its kind. Internal errors are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: code, Message: err.Error()}

	var d detailer
	if errors.As(err, &d) {
		resp.Details = d.Details()
	}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		resp.Message = "internal server error"
		resp.Details = nil
	}
	respondJSON(w, status, resp)
}

func classify(err error) (int, string) {
	if errors.Is(err, command.ErrRequestInProgress) {
		return http.StatusConflict, "request_in_progress"
	}

	code := ""
	for _, c := range errorCodes {
		if errors.Is(err, c.target) {
			code = c.code
			break
		}
	}

	switch order.KindOf(err) {
	case order.KindInvalid:
		return http.StatusBadRequest, fallback(code, "invalid_request")
	case order.KindNotFound:
		return http.StatusNotFound, fallback(code, "not_found")
	case order.KindConflict:
		return http.StatusConflict, fallback(code, "conflict")
	case order.KindForbidden:
		return http.StatusForbidden, fallback(code, "forbidden")
	case order.KindRetryable:
		return http.StatusServiceUnavailable, fallback(code, "unavailable")
	}
	return http.StatusInternalServerError, "internal_error"
}

func fallback(code, def string) string {
	if code == "" {
		return def
	}
	return code
}

// normalizer is implemented by requests that canonicalize input before validation.
type normalizer interface {
	normalize()
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the 400 response itself and reports whether the handler may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request_body",
			Message: err.Error(),
		})
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := v.Struct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_failed",
			Message: "request validation failed",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

func validationDetails(err error) map[string]any {
	out := map[string]any{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		field := strings.SplitN(fe.Namespace(), ".", 2)
		name := fe.Namespace()
		if len(field) == 2 {
			name = field[1]
		}
		if fe.Param() != "" {
			out[name] = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		} else {
			out[name] = fe.Tag()
		}
	}
	return out
}

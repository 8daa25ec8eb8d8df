package api

import (
	"net/http"
	"strings"

	"github.com/example/storefront-orders/internal/api/middleware"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/query"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// IdempotencyHeader carries the client's key for order submission.
const IdempotencyHeader = "Idempotency-Key"

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	validate     *validator.Validate
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		validate:     newValidator(),
	}
}

// actor builds the command actor from the authenticated claims.
func actor(r *http.Request) command.Actor {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		return command.Actor{}
	}
	return command.Actor{UserID: claims.UserID, Admin: claims.IsAdmin()}
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	placed, err := h.cmdHandler.PlaceOrder(r.Context(), command.PlaceOrder{
		Actor:           actor(r),
		Items:           req.cart(),
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress.toAddress(),
		Contact:         strings.TrimSpace(req.Contact),
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if placed.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, placed.Order)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListMine(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	view, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "id"), a.UserID, a.Admin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.cmdHandler.UpdateStatus(r.Context(), command.UpdateStatus{
		Actor:   actor(r),
		OrderID: chi.URLParam(r, "id"),
		Status:  status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmdHandler.CancelOrder(r.Context(), command.CancelOrder{
		Actor:   actor(r),
		OrderID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingPatchRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	o, err := h.cmdHandler.UpdateShipping(r.Context(), command.UpdateShipping{
		Actor:   actor(r),
		OrderID: chi.URLParam(r, "id"),
		Patch:   req.patch(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

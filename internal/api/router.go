package api

import (
	"net/http"

	"github.com/example/storefront-orders/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handlers *Handlers, coupons *CouponHandlers, authHandlers *AuthHandlers, tokens middleware.TokenValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/coupons/validate", coupons.ValidateCoupon)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(tokens))

			r.Get("/auth/me", authHandlers.Me)

			// Orders
			r.Post("/orders", handlers.PlaceOrder)
			r.Get("/orders", handlers.GetOrders)
			r.Get("/orders/{id}", handlers.GetOrder)
			r.Put("/orders/{id}/cancel", handlers.CancelOrder)
			r.Put("/orders/{id}/shipping", handlers.UpdateShipping)
			r.With(middleware.RequireAdmin).Put("/orders/{id}/status", handlers.UpdateStatus)

			// Admin
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/orders", handlers.GetAllOrders)
				r.Get("/coupons", coupons.ListCoupons)
				r.Post("/coupons", coupons.CreateCoupon)
				r.Put("/coupons/{id}", coupons.UpdateCoupon)
				r.Delete("/coupons/{id}", coupons.DeleteCoupon)
			})
		})
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/sramos/educart-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса educart.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Session)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/logout", h.Logout)
			r.Get("/purchases", h.GetPurchases)
		})
	})

	r.Get("/api/products", h.GetProducts)

	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddCartItem)
		r.Delete("/items/{id}", h.RemoveCartItem)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Optional)

		r.Post("/api/checkout", h.Checkout)
		r.Get("/api/checkout/success", h.CheckoutSuccess)
		r.Get("/api/checkout/cancel", h.CheckoutCancel)
	})

	r.With(h.authMiddleware.Middleware).Post("/api/download", h.Download)

	r.Get("/files/*", h.signer.ServeHTTP)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

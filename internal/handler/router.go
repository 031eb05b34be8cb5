package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mkoshel/numrent-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса аренды номеров.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/profile", h.GetProfile)
			r.Get("/balance", h.GetBalance)

			r.Post("/number", h.AcquireNumber)
			r.Get("/number", h.GetOrder)
			r.Delete("/number", h.CancelOrder)

			r.Post("/redeem", h.Redeem)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(custommiddleware.AdminToken(h.adminToken))

		r.Post("/codes", h.GenerateCode)
		r.Post("/credits/remove", h.RemoveCredits)
		r.Post("/broadcast", h.Broadcast)
		r.Post("/target", h.SetPurchaseTarget)
		r.Get("/users/{id}", h.GetUserProfile)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

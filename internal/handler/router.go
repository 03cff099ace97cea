package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/bonus-ledger/internal/middleware"
)

func passthrough(next http.Handler) http.Handler { return next }

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return passthrough
	}
	return mw
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бонусов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Encoding"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(custommiddleware.GzipMiddleware)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.With(orPassthrough(h.limits.Login)).Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/api/revenues", func(r chi.Router) {
			r.Post("/", h.CreateRevenue)
			r.Get("/", h.ListRevenues)
			r.Delete("/{id}", h.DeleteRevenue)
		})

		r.Route("/api/bonus", func(r chi.Router) {
			r.Get("/current", h.CurrentWeek)
			r.With(orPassthrough(h.limits.Approve)).Post("/approve", h.Approve)
			r.Get("/records", h.ListRecords)
			r.Get("/records/{id}", h.GetRecord)
			r.Get("/records/{id}/verify", h.VerifyRecord)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Code: KindNotFound, Message: "route not found"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: KindBadRequest, Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	return r
}

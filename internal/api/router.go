package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter builds the deal-api HTTP router. A nil gatherer leaves /metrics unmounted.
func NewRouter(h *Handler, jwtSecret string, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(jwtSecret, logger))

		r.Get("/deals/top", h.TopDeals)
		r.Get("/deals/{id}/analytics", h.DealAnalytics)
		r.Post("/deals/{id}/claims", h.ClaimDeal)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Post("/deals", h.CreateDeal)
			r.Get("/deals/{id}", h.GetDeal)
			r.Post("/deals/{id}/reconcile", h.ReconcileDeal)

			r.Post("/reports/weekly", h.GenerateWeeklyReport)
			r.Get("/reports/latest", h.LatestReport)

			r.Get("/notifications", h.ListNotifications)
			r.Post("/notifications/cleanup", h.CleanupNotifications)
			r.Post("/notifications/{id}/read", h.MarkNotificationRead)
		})
	})

	return r
}

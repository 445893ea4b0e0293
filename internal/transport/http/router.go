package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"shipment-tracker/internal/metrics"
)

func NewRouter(h *Handler, ws *WSHandler, authmw *AuthMiddleware) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/metrics", metrics.HandleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(authmw.Wrap)

		r.Get("/ws", ws.Serve)

		r.Route("/api/v1/shipments/{id}", func(r chi.Router) {
			r.Post("/location", h.IngestLocation)
			r.Get("/location/latest", h.LatestLocation)
			r.Get("/location/history", h.LocationHistory)
			r.Get("/advisories", h.ActiveAdvisories)
			r.Post("/advisories/{advisoryID}/ack", h.AcknowledgeAdvisory)
			r.Post("/complete", h.CompleteTrip)
			r.Get("/route-summary", h.RouteSummary)
		})
	})

	return r
}

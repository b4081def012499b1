package rating

import (
	"net/http"

	"github.com/kmassidik/engagement/internal/common/metrics"
	"github.com/kmassidik/engagement/internal/common/middleware"
)

func SetupRoutes(mux *http.ServeMux, handler *Handler, jwtSecret string) {
	protected := middleware.JWTAuth(jwtSecret)

	// Health checks
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /ready", handler.ReadinessCheck)
	mux.Handle("GET /metrics", metrics.Handler())

	// Read-only dashboard API
	mux.HandleFunc("GET /api/v1/ratings/summary", handler.GetSummary)
	mux.HandleFunc("GET /api/v1/ratings/top", handler.GetTopProfiles)
	mux.HandleFunc("GET /api/v1/ratings/users/{visitor}", handler.GetProfile)

	// Runs
	mux.Handle("POST /api/v1/ratings/runs", protected(http.HandlerFunc(handler.TriggerRun)))
}

package analytics

import (
	"net/http"

	"github.com/dprasetyo/userpulse/internal/common/middleware"
)

func SetupRoutes(mux *http.ServeMux, handler *Handler, jwtSecret string) {
	// Health checks
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /ready", handler.ReadinessCheck)

	auth := middleware.JWTAuth(jwtSecret)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth(h)
	}

	// User reads
	mux.Handle("GET /api/v1/users/{user_id}/stats", protected(handler.GetUserStats))
	mux.Handle("GET /api/v1/users/{user_id}/profile", protected(handler.GetUserProfile))
	mux.Handle("GET /api/v1/users/{user_id}/events", protected(handler.GetRecentEvents))

	// Aggregate reads
	mux.Handle("GET /api/v1/stats/top-spenders", protected(handler.GetTopSpenders))

	// Operator view
	mux.Handle("GET /api/v1/deadletter/summary", protected(handler.GetDeadLetterSummary))
}

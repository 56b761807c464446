package analytics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// parseLimit reads the limit query parameter, clamped to [1, max].
func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// GetUserStats handles GET /api/v1/users/{user_id}/stats
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_parameters", "user_id is required")
		return
	}

	stats, err := h.service.GetUserStats(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch user stats")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "not_found", "No stats for user "+userID)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: stats})
}

// GetUserProfile handles GET /api/v1/users/{user_id}/profile
func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_parameters", "user_id is required")
		return
	}

	profile, err := h.service.GetUserProfile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch user profile")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "not_found", "Unknown user "+userID)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: profile})
}

// GetRecentEvents handles GET /api/v1/users/{user_id}/events
func (h *Handler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_parameters", "user_id is required")
		return
	}

	limit := parseLimit(r, 20, 100)
	events, err := h.service.GetRecentEvents(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch recent events")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: events})
}

// GetTopSpenders handles GET /api/v1/stats/top-spenders
func (h *Handler) GetTopSpenders(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10, 50)
	results, err := h.service.GetTopSpenders(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch top spenders")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: results})
}

// GetDeadLetterSummary handles GET /api/v1/deadletter/summary
func (h *Handler) GetDeadLetterSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetDeadLetterSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch dead letter summary")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: summary})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "api",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck handles GET /ready
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ready",
		"service": "api",
	})
}

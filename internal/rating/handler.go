package rating

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kmassidik/engagement/internal/common/logger"
	"github.com/kmassidik/engagement/internal/common/middleware"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

type Handler struct {
	service Service
	logger  *logger.Logger
}

func NewHandler(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
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

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// GetSummary handles GET /api/v1/ratings/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.LastSummary(r.Context())
	if errors.Is(err, ErrNoSummary) {
		writeError(w, http.StatusNotFound, "no_summary", "No rating run has been recorded yet")
		return
	}
	if err != nil {
		h.logger.Errorf("Failed to load rating summary: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load rating summary")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: summary})
}

// GetTopProfiles handles GET /api/v1/ratings/top?limit=
func (h *Handler) GetTopProfiles(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxTopLimit {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	profiles, err := h.service.TopProfiles(r.Context(), limit)
	if err != nil {
		h.logger.Errorf("Failed to load top profiles: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load top profiles")
		return
	}
	if profiles == nil {
		profiles = []*UserProfile{}
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: profiles})
}

// GetProfile handles GET /api/v1/ratings/users/{visitor}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	visitor := r.PathValue("visitor")

	profile, err := h.service.GetProfile(r.Context(), visitor)
	switch {
	case errors.Is(err, ErrInvalidVisitor):
		writeError(w, http.StatusBadRequest, "invalid_visitor", "visitor must be a hex encoded id")
		return
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Visitor not found")
		return
	case err != nil:
		h.logger.Errorf("Failed to load profile %s: %v", visitor, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: profile})
}

// TriggerRun handles POST /api/v1/ratings/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	requestedBy, _ := middleware.GetUserIDFromContext(r.Context())

	req, summary, err := h.service.RequestRun(r.Context(), requestedBy)
	switch {
	case errors.Is(err, ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", "A rating run is already in progress")
		return
	case err != nil:
		h.logger.Errorf("Failed to trigger rating run: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to trigger rating run")
		return
	}

	if summary == nil {
		writeJSON(w, http.StatusAccepted, SuccessResponse{Data: req, Message: "Rating run queued"})
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Data: summary, Message: "Rating run completed"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "engagement",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck handles GET /ready
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ready",
		"service": "engagement",
	})
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/portfolio/internal/profile"
	"github.com/ashureev/portfolio/internal/ratelimit"
	"github.com/go-chi/chi/v5"
)

// HealthHandler reports dependency status and client-facing limits.
type HealthHandler struct {
	profiles profile.Source
	model    string
	entries  func() int
	limits   ClientLimits
	quota    func(*http.Request) ratelimit.Decision
}

// ClientQuota is the caller's own rate-limit state, read without consuming.
type ClientQuota struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     string `json:"reset"`
}

// ClientLimits are the validation and rate limits the frontend mirrors.
type ClientLimits struct {
	MaxMessageLength int `json:"max_message_length"`
	MaxMessages      int `json:"max_messages"`
	RateLimit        int `json:"rate_limit"`
	RateWindowSecs   int `json:"rate_window_seconds"`
}

// NewHealthHandler creates a health handler. entries reports the number of
// rate-limited clients currently tracked.
func NewHealthHandler(profiles profile.Source, model string, entries func() int, limits ClientLimits) *HealthHandler {
	return &HealthHandler{profiles: profiles, model: model, entries: entries, limits: limits}
}

// SetQuota makes Health report the requesting client's rate-limit state.
// fn must not consume quota.
func (h *HealthHandler) SetQuota(fn func(*http.Request) ratelimit.Decision) {
	h.quota = fn
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	if _, err := h.profiles.Profile(ctx); err != nil {
		slog.Warn("Health check: profile unavailable, serving fallback", "error", err)
		checks["profile"] = "fallback"
	} else {
		checks["profile"] = "ok"
	}

	status := map[string]any{
		"status": "healthy",
		"checks": checks,
		"model":  h.model,
	}
	if h.entries != nil {
		status["rate_limit_entries"] = h.entries()
	}
	if h.quota != nil {
		d := h.quota(r)
		status["client_quota"] = ClientQuota{
			Limit:     d.Limit,
			Remaining: d.Remaining,
			Reset:     d.ResetTime.UTC().Format(time.RFC3339Nano),
		}
	}
	JSON(w, http.StatusOK, status)
}

// GetConfig returns the limits the chat widget enforces client-side.
func (h *HealthHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.limits)
}

// RegisterRoutes registers the informational routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/config", h.GetConfig)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/medialink/internal/analytics"
	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/auth"
)

// LogView handles POST /api/analytics/media/{id}/view. An optional token
// query parameter is recorded as provenance.
func (h *Handler) LogView(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Gate.LogView(r.Context(), chi.URLParam(r, "id"), h.clientIP(r), r.UserAgent(), r.URL.Query().Get("token"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusCreated, "View logged successfully.", map[string]any{
		"view_id":   entry.ID,
		"media_id":  entry.MediaID,
		"viewed_at": entry.Timestamp.UTC(),
	})
}

// MediaAnalytics handles GET /api/analytics/media/{id}/analytics?days=
func (h *Handler) MediaAnalytics(w http.ResponseWriter, r *http.Request) {
	days := analytics.DefaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.renderError(w, r, apperr.Validation(analytics.MsgInvalidDays))
			return
		}
		days = n
	}

	res, err := h.Analytics.MediaAnalytics(r.Context(), chi.URLParam(r, "id"), auth.AdminFromContext(r.Context()), days)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	cached := res.Cached
	renderJSON(w, http.StatusOK, envelope{Success: true, Data: res.Data, Cached: &cached})
}

// Dashboard handles GET /api/analytics/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Analytics.Dashboard(r.Context(), auth.AdminFromContext(r.Context()))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "", d)
}

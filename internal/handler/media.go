package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/medialink/internal/auth"
	"github.com/YannKr/medialink/internal/media"
	"github.com/YannKr/medialink/internal/model"
)

type apiMedia struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Type      model.MediaType `json:"type"`
	FileURL   string          `json:"file_url"`
	OwnerID   string          `json:"owner_id"`
	ViewCount int64           `json:"view_count"`
	CreatedAt time.Time       `json:"created_at"`
}

func mediaToAPI(m *model.MediaAsset) apiMedia {
	return apiMedia{
		ID:        m.ID,
		Title:     m.Title,
		Type:      m.Type,
		FileURL:   m.FileURL,
		OwnerID:   m.OwnerID,
		ViewCount: m.ViewCount,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// CreateMedia handles POST /api/media
func (h *Handler) CreateMedia(w http.ResponseWriter, r *http.Request) {
	var in media.CreateInput
	if err := decodeBody(w, r, &in); err != nil {
		h.renderError(w, r, err)
		return
	}
	asset, err := h.Catalog.Create(r.Context(), auth.AdminFromContext(r.Context()), in)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusCreated, "Media asset created successfully.", mediaToAPI(asset))
}

// ListMedia handles GET /api/media?page=&limit=
func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p, err := h.Catalog.List(r.Context(), auth.AdminFromContext(r.Context()), page, limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	items := make([]apiMedia, len(p.Media))
	for i := range p.Media {
		items[i] = mediaToAPI(&p.Media[i])
	}
	renderOK(w, http.StatusOK, "", map[string]any{
		"media":      items,
		"pagination": pagination{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages},
	})
}

// StreamURL handles GET /api/media/{id}/stream-url
func (h *Handler) StreamURL(w http.ResponseWriter, r *http.Request) {
	link, err := h.Gate.RequestStreamURL(r.Context(), chi.URLParam(r, "id"), h.clientIP(r))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "Stream URL generated successfully.", map[string]any{
		"stream_url": link.StreamURL,
		"expires_in": link.ExpiresIn,
		"expires_at": link.ExpiresAt.UTC(),
	})
}

// RedeemStream handles GET /api/media/{id}/stream?token=
func (h *Handler) RedeemStream(w http.ResponseWriter, r *http.Request) {
	red, err := h.Gate.Redeem(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("token"), r.UserAgent())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	renderOK(w, http.StatusOK, "Stream access granted.", map[string]any{
		"media": map[string]any{
			"title":             red.Media.Title,
			"type":              red.Media.Type,
			"file_url":          red.Media.FileURL,
			"actual_stream_url": red.ActualStreamURL,
			"view_log_id":       red.ViewLogID,
		},
	})
}

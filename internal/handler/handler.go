package handler

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/YannKr/medialink/internal/account"
	"github.com/YannKr/medialink/internal/analytics"
	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/config"
	"github.com/YannKr/medialink/internal/media"
	"github.com/YannKr/medialink/internal/stream"
)

const maxBodyBytes = 1 << 20

const (
	msgNotFound     = "API endpoint not found"
	msgBadBody      = "Invalid request body."
	msgTooManyViews = "Too many view requests from this IP, please try again later."
	msgTooManyAuth  = "Too many requests, please try again later."
	msgNoToken      = "Access denied. No token provided."
	msgHealthy      = "Media Platform API is running"
)

type Handler struct {
	Accounts  *account.Service
	Catalog   *media.Catalog
	Gate      *stream.Gate
	Analytics *analytics.Engine
	Cfg       *config.Config
	Clock     clock.Clock
}

func New(accounts *account.Service, catalog *media.Catalog, gate *stream.Gate, engine *analytics.Engine, cfg *config.Config, c clock.Clock) *Handler {
	if c == nil {
		c = clock.System{}
	}
	return &Handler{
		Accounts:  accounts,
		Catalog:   catalog,
		Gate:      gate,
		Analytics: engine,
		Cfg:       cfg,
		Clock:     c,
	}
}

// envelope is the body shape shared by every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Cached  *bool  `json:"cached,omitempty"`
	Error   string `json:"error,omitempty"`
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func renderOK(w http.ResponseWriter, status int, message string, data any) {
	renderJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// renderError maps err onto its status code. Internal causes are only
// exposed outside production.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	body := envelope{Message: apperr.Message(err)}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if h.Cfg == nil || !h.Cfg.IsProduction() {
			body.Error = errorDetail(err)
		}
	}
	renderJSON(w, status, body)
}

func errorDetail(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err.Error()
	}
	return err.Error()
}

func renderFail(w http.ResponseWriter, status int, message string) {
	renderJSON(w, status, envelope{Message: message})
}

// decodeBody reads a JSON request body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(msgBadBody)
	}
	return nil
}

// clientIP is the socket peer unless the server sits behind a trusted
// proxy, in which case the forwarded client address is used.
func (h *Handler) clientIP(r *http.Request) string {
	if h.Cfg != nil && h.Cfg.Server.TrustProxy {
		if ip := forwardedIP(r); ip != "" {
			return ip
		}
	}
	return remoteIP(r)
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   msgHealthy,
		"timestamp": h.Clock.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	renderFail(w, http.StatusNotFound, msgNotFound)
}

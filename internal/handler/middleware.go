package handler

import (
	"net/http"

	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/auth"
)

// RequireAuth resolves the bearer session token to a verified administrator
// and stores the id in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			h.renderError(w, r, apperr.Authentication(msgNoToken))
			return
		}
		admin, err := h.Accounts.Authenticate(r.Context(), token)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		ctx := auth.ContextWithAdmin(r.Context(), admin.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) tooManyViews(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, apperr.RateLimit(msgTooManyViews))
}

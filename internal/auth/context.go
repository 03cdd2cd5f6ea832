package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const adminIDKey contextKey = "admin_id"

func ContextWithAdmin(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminIDKey, adminID)
}

func AdminFromContext(ctx context.Context) string {
	v, _ := ctx.Value(adminIDKey).(string)
	return v
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

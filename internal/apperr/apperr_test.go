package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad id"), http.StatusBadRequest},
		{"authentication", Authentication("no token"), http.StatusUnauthorized},
		{"authorization", Authorization("not owner"), http.StatusForbidden},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"rate limit", RateLimit("slow down"), http.StatusTooManyRequests},
		{"internal", Internal("boom", errors.New("disk")), http.StatusInternalServerError},
		{"plain error", errors.New("unclassified"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", NotFound("missing")), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessageHidesCause(t *testing.T) {
	err := Internal("Error fetching analytics.", errors.New("sql: connection refused"))
	if got := Message(err); got != "Error fetching analytics." {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(errors.New("raw")); got != "Internal server error" {
		t.Errorf("Message() for plain error = %q", got)
	}
	if !errors.Is(err, err.Err) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

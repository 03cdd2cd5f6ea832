package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YannKr/medialink/internal/metrics"
)

const defaultViewLimit = 10

func (h *Handler) Routes(authRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if h.Cfg != nil && h.Cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(h.NotFound)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		if authRL != nil {
			r.Use(authRL.Middleware(h.clientIP))
		}
		r.Post("/sign-up", h.SignUp)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/login", h.Login)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/resend-otp", h.ResendOTP)
	})

	r.Route("/api/media", func(r chi.Router) {
		// The stream token is the only credential for redemption.
		r.Get("/{id}/stream", h.RedeemStream)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Post("/", h.CreateMedia)
			r.Get("/", h.ListMedia)
			r.Get("/{id}/stream-url", h.StreamURL)
		})
	})

	r.Route("/api/analytics", func(r chi.Router) {
		r.With(httprate.Limit(
			h.viewLimit(),
			time.Minute,
			httprate.WithKeyFuncs(h.viewKey),
			httprate.WithLimitHandler(h.tooManyViews),
		)).Post("/media/{id}/view", h.LogView)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/media/{id}/analytics", h.MediaAnalytics)
			r.Get("/dashboard", h.Dashboard)
		})
	})

	return r
}

func (h *Handler) corsOrigins() []string {
	if h.Cfg == nil || len(h.Cfg.Server.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return h.Cfg.Server.CORSOrigins
}

func (h *Handler) viewLimit() int {
	if h.Cfg == nil || h.Cfg.Views.RateLimit <= 0 {
		return defaultViewLimit
	}
	return h.Cfg.Views.RateLimit
}

func (h *Handler) viewKey(r *http.Request) (string, error) {
	return h.clientIP(r), nil
}

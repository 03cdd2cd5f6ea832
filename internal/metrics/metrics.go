// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medialink_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	StreamTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medialink_stream_tokens_issued_total",
			Help: "Total number of stream tokens minted",
		},
	)

	StreamRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medialink_stream_redemptions_total",
			Help: "Stream token redemptions by result",
		},
		[]string{"result"}, // "ok", "invalid_token", "media_mismatch", "not_found", "error"
	)

	ViewsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medialink_views_recorded_total",
			Help: "View ledger entries appended, by source",
		},
		[]string{"source"}, // "stream", "direct"
	)

	AnalyticsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medialink_analytics_cache_hits_total",
			Help: "Analytics snapshot cache hits",
		},
	)

	AnalyticsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medialink_analytics_cache_misses_total",
			Help: "Analytics snapshot cache misses",
		},
	)

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medialink_geo_lookups_total",
			Help: "IP location lookups by result",
		},
		[]string{"result"}, // "resolved", "memo", "local", "unknown", "error", "skipped"
	)
)

const (
	RedeemOK            = "ok"
	RedeemInvalidToken  = "invalid_token"
	RedeemMediaMismatch = "media_mismatch"
	RedeemNotFound      = "not_found"
	RedeemError         = "error"
)

func RecordRedemption(result string) {
	StreamRedemptions.WithLabelValues(result).Inc()
}

func RecordView(source string) {
	ViewsRecorded.WithLabelValues(source).Inc()
}

func RecordAnalyticsCache(hit bool) {
	if hit {
		AnalyticsCacheHits.Inc()
		return
	}
	AnalyticsCacheMisses.Inc()
}

func RecordGeoLookup(result string) {
	GeoLookups.WithLabelValues(result).Inc()
}

// Middleware observes request latency labelled by the matched chi route
// pattern, keeping label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Package analytics aggregates the view ledger into per-asset reports and
// the owner dashboard.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/YannKr/medialink/internal/apperr"
	"github.com/YannKr/medialink/internal/cache"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/media"
	"github.com/YannKr/medialink/internal/metrics"
	"github.com/YannKr/medialink/internal/model"
	"github.com/YannKr/medialink/internal/store"
)

const (
	DefaultDays     = 30
	MaxDays         = 365
	DefaultCacheTTL = time.Hour
)

const (
	MsgInvalidDays = "Days must be an integer between 1 and 365."
	MsgForbidden   = "Access denied. You do not own this media asset."
)

// Locator maps viewer addresses to location labels.
type Locator interface {
	ResolveAll(ctx context.Context, ips []string) map[string]string
}

// Result carries the serialized report so a cached and a fresh answer are
// byte-for-byte the same.
type Result struct {
	Data   json.RawMessage
	Cached bool
}

// snapshot is the cache value. OwnerID travels with the report so cache hits
// can still be authorized.
type snapshot struct {
	OwnerID string          `json:"owner_id"`
	Data    json.RawMessage `json:"data"`
}

type Options struct {
	CacheTTL time.Duration
	// Parallel caps concurrent ledger scans in Dashboard.
	Parallel int
}

type Engine struct {
	media   store.Media
	views   store.Views
	cache   cache.Cache
	locator Locator
	clock   clock.Clock
	opts    Options
}

func NewEngine(m store.Media, v store.Views, c cache.Cache, l Locator, clk clock.Clock, opts Options) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 8
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{media: m, views: v, cache: c, locator: l, clock: clk, opts: opts}
}

func cacheKey(mediaID string, days int) string {
	return fmt.Sprintf("analytics:%s:%d", mediaID, days)
}

// MediaAnalytics returns the report for mediaID over the trailing window of
// days, served from cache when a snapshot exists. Only the owner may read it.
func (e *Engine) MediaAnalytics(ctx context.Context, mediaID, requesterID string, days int) (*Result, error) {
	if days < 1 || days > MaxDays {
		return nil, apperr.Validation(MsgInvalidDays)
	}
	if err := media.ValidateID(mediaID); err != nil {
		return nil, err
	}

	key := cacheKey(mediaID, days)
	if snap, ok := e.readSnapshot(ctx, key); ok {
		metrics.RecordAnalyticsCache(true)
		if snap.OwnerID != requesterID {
			return nil, apperr.Authorization(MsgForbidden)
		}
		return &Result{Data: snap.Data, Cached: true}, nil
	}
	metrics.RecordAnalyticsCache(false)

	asset, err := e.media.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, apperr.Internal("Failed to load media asset.", err)
	}
	if asset == nil {
		return nil, apperr.NotFound(media.MsgNotFound)
	}
	if asset.OwnerID != requesterID {
		return nil, apperr.Authorization(MsgForbidden)
	}

	end := e.clock.Now().UTC()
	start := end.AddDate(0, 0, -days)
	rows, err := e.views.ListViews(ctx, store.ViewQuery{MediaID: mediaID, Since: start, Until: end})
	if err != nil {
		return nil, apperr.Internal("Failed to load view history.", err)
	}

	labels := e.resolve(ctx, rows)
	report := Report{
		Media:     MediaSummary{ID: asset.ID, Title: asset.Title, Type: asset.Type},
		Analytics: aggregate(rows, labels, start, end, days),
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, apperr.Internal("Failed to build analytics.", err)
	}

	e.writeSnapshot(ctx, key, snapshot{OwnerID: asset.OwnerID, Data: data})
	return &Result{Data: data, Cached: false}, nil
}

func (e *Engine) resolve(ctx context.Context, rows []model.ViewLogEntry) map[string]string {
	if e.locator == nil || len(rows) == 0 {
		return map[string]string{}
	}
	ips := make([]string, len(rows))
	for i, r := range rows {
		ips[i] = r.ViewerIP
	}
	return e.locator.ResolveAll(ctx, ips)
}

func (e *Engine) readSnapshot(ctx context.Context, key string) (*snapshot, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("analytics cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil || len(snap.Data) == 0 {
		slog.Warn("discarding unreadable analytics snapshot", "key", key, "error", err)
		return nil, false
	}
	return &snap, true
}

// writeSnapshot is best-effort; failures are logged and dropped.
func (e *Engine) writeSnapshot(ctx context.Context, key string, snap snapshot) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("analytics snapshot encode failed", "key", key, "error", err)
		return
	}
	if err := e.cache.Set(context.WithoutCancel(ctx), key, raw, e.opts.CacheTTL); err != nil {
		slog.Warn("analytics cache write failed", "key", key, "error", err)
	}
}

type AssetSummary struct {
	MediaID       string          `json:"media_id"`
	Title         string          `json:"title"`
	Type          model.MediaType `json:"type"`
	TotalViews    int             `json:"total_views"`
	UniqueViewers int             `json:"unique_viewers"`
	LastViewed    *time.Time      `json:"last_viewed"`
}

// Dashboard summarizes every asset the requester owns. TotalUniqueViews is
// the plain sum of per-asset unique viewers; a viewer of two assets counts twice.
type Dashboard struct {
	TotalMedia       int            `json:"total_media"`
	TotalViews       int            `json:"total_views"`
	TotalUniqueViews int            `json:"total_unique_views"`
	MediaAnalytics   []AssetSummary `json:"media_analytics"`
}

func (e *Engine) Dashboard(ctx context.Context, requesterID string) (*Dashboard, error) {
	assets, err := e.media.ListMediaByOwner(ctx, requesterID, 0, 0)
	if err != nil {
		return nil, apperr.Internal("Failed to load media.", err)
	}

	summaries := make([]AssetSummary, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallel)
	for i, a := range assets {
		i, a := i, a
		g.Go(func() error {
			rows, err := e.views.ListViews(gctx, store.ViewQuery{MediaID: a.ID})
			if err != nil {
				return fmt.Errorf("list views for %s: %w", a.ID, err)
			}
			summaries[i] = summarize(a, rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Internal("Failed to load dashboard.", err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalViews > summaries[j].TotalViews
	})

	d := &Dashboard{TotalMedia: len(assets), MediaAnalytics: summaries}
	for _, s := range summaries {
		d.TotalViews += s.TotalViews
		d.TotalUniqueViews += s.UniqueViewers
	}
	return d, nil
}

func summarize(a model.MediaAsset, rows []model.ViewLogEntry) AssetSummary {
	s := AssetSummary{MediaID: a.ID, Title: a.Title, Type: a.Type, TotalViews: len(rows)}
	unique := make(map[string]struct{}, len(rows))
	var last time.Time
	for _, r := range rows {
		unique[r.ViewerIP] = struct{}{}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	s.UniqueViewers = len(unique)
	if !last.IsZero() {
		s.LastViewed = &last
	}
	return s
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	medialink "github.com/YannKr/medialink"
	"github.com/YannKr/medialink/internal/account"
	"github.com/YannKr/medialink/internal/analytics"
	"github.com/YannKr/medialink/internal/auth"
	"github.com/YannKr/medialink/internal/cache"
	"github.com/YannKr/medialink/internal/cleanup"
	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/config"
	"github.com/YannKr/medialink/internal/db"
	"github.com/YannKr/medialink/internal/email"
	"github.com/YannKr/medialink/internal/geo"
	"github.com/YannKr/medialink/internal/handler"
	"github.com/YannKr/medialink/internal/media"
	"github.com/YannKr/medialink/internal/store"
	"github.com/YannKr/medialink/internal/stream"
)

const cacheSweepInterval = time.Minute

func Run(ctx context.Context, cfg *config.Config) error {
	clk := clock.System{}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	c, err := openCache(ctx, cfg, clk)
	if err != nil {
		return err
	}
	defer c.Close()

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.StreamingSecret, clk)
	if err != nil {
		return err
	}

	mailer := &email.Mailer{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		User: cfg.SMTP.User,
		Pass: cfg.SMTP.Pass,
		From: cfg.SMTP.From,
	}
	if mailer.Enabled() {
		slog.Info("email enabled", "host", cfg.SMTP.Host, "from", cfg.SMTP.From)
	} else {
		slog.Warn("email disabled, verification codes will not be delivered")
	}

	var provider geo.Provider
	if cfg.Geo.Provider == config.GeoIPAPI {
		provider = geo.NewIPAPIProvider(cfg.Geo.BaseURL, cfg.Geo.Timeout)
	}
	locator := geo.NewLocator(provider, geo.Options{Timeout: cfg.Geo.Timeout, Budget: cfg.Geo.Budget})

	accounts := account.NewService(st, tokens, mailer, clk, account.Options{
		SessionTTL:      cfg.Auth.SessionTTL,
		RegistrationTTL: cfg.Auth.RegistrationTTL,
	})
	catalog := media.NewCatalog(st, clk)
	gate := stream.NewGate(catalog, st, tokens, clk, cfg.Server.BaseURL)
	engine := analytics.NewEngine(st, st, c, locator, clk, analytics.Options{CacheTTL: cfg.Cache.AnalyticsTTL})

	cleaner := &cleanup.Cleaner{Store: st, Clock: clk, Interval: cfg.Cleanup.Interval}
	cleaner.Start(ctx)
	defer cleaner.Stop()

	authRL := handler.PerMinute(cfg.Auth.RateLimit)
	defer authRL.Stop()

	h := handler.New(accounts, catalog, gate, engine, cfg, clk)
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           h.Routes(authRL),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("server starting",
		"addr", cfg.Server.ListenAddr,
		"base_url", cfg.Server.BaseURL,
		"environment", cfg.Server.Environment,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Driver,
		"geo", cfg.Geo.Provider,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	database, err := db.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, database, medialink.MigrationFS); err != nil {
		database.Close()
		return nil, nil, err
	}
	slog.Info("database ready", "data_dir", cfg.Store.DataDir)
	return db.NewStore(database), func() { database.Close() }, nil
}

func openCache(ctx context.Context, cfg *config.Config, clk clock.Clock) (cache.Cache, error) {
	if cfg.Cache.Driver == config.CacheRedis {
		return cache.NewRedis(ctx, cfg.Cache.RedisURL, "medialink:")
	}
	return cache.NewMemory(clk, cacheSweepInterval), nil
}

package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/YannKr/medialink/internal/clock"
	"github.com/YannKr/medialink/internal/store"
)

// Cleaner periodically drops expired OTP states and reconciles each asset's
// view_count with the number of ledger rows recorded for it.
type Cleaner struct {
	Store    store.Store
	Clock    clock.Clock
	Interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Start launches the loop. A zero Interval leaves the cleaner idle.
func (c *Cleaner) Start(ctx context.Context) {
	if c.Interval <= 0 {
		slog.Info("cleanup scheduler disabled")
		return
	}
	if c.Clock == nil {
		c.Clock = clock.System{}
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		slog.Info("cleanup scheduler stopped")
	}
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.RunOnce(ctx)

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass. Failures are logged and the pass moves on.
func (c *Cleaner) RunOnce(ctx context.Context) {
	now := time.Now()
	if c.Clock != nil {
		now = c.Clock.Now()
	}

	if n, err := c.Store.ClearExpiredOTPs(ctx, now); err != nil {
		slog.Error("cleanup: clear expired otps", "error", err)
	} else if n > 0 {
		slog.Info("cleanup: cleared expired otps", "count", n)
	}

	ids, err := c.Store.ListMediaIDs(ctx)
	if err != nil {
		slog.Error("cleanup: list media", "error", err)
		return
	}
	fixed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		ok, err := c.reconcile(ctx, id)
		if err != nil {
			slog.Error("cleanup: reconcile view count", "media_id", id, "error", err)
			continue
		}
		if ok {
			fixed++
		}
	}
	if fixed > 0 {
		slog.Info("cleanup: reconciled view counts", "count", fixed)
	}
}

func (c *Cleaner) reconcile(ctx context.Context, id string) (bool, error) {
	m, err := c.Store.GetMedia(ctx, id)
	if err != nil || m == nil {
		return false, err
	}
	n, err := c.Store.CountViews(ctx, id)
	if err != nil {
		return false, err
	}
	if n == m.ViewCount {
		return false, nil
	}
	slog.Warn("cleanup: view count drift", "media_id", id, "view_count", m.ViewCount, "ledger", n)
	return true, c.Store.SetViewCount(ctx, id, n)
}

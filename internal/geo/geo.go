// Package geo turns viewer IP addresses into coarse location labels for
// analytics. Resolution is best-effort: failures degrade to Unknown.
package geo

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/YannKr/medialink/internal/metrics"
)

const (
	Localhost = "Localhost"
	Unknown   = "Unknown"
)

// Provider resolves a public IP to a location label.
type Provider interface {
	Lookup(ctx context.Context, ip string) (string, error)
}

type Options struct {
	// Timeout bounds a single provider lookup.
	Timeout  time.Duration
	MemoSize int
	MemoTTL  time.Duration
	// Parallel caps concurrent provider lookups within one ResolveAll.
	Parallel int
	// Budget bounds a whole ResolveAll call. Addresses still pending when it
	// runs out are reported as Unknown.
	Budget time.Duration
}

// Locator wraps a Provider with local-address handling, a per-lookup
// timeout and a memo of resolved labels.
type Locator struct {
	provider Provider
	opts     Options
	memo     *expirable.LRU[string, string]
}

// NewLocator accepts a nil provider, in which case every public address is Unknown.
func NewLocator(p Provider, opts Options) *Locator {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = 4096
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = 24 * time.Hour
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 8
	}
	if opts.Budget <= 0 {
		opts.Budget = 3 * time.Second
	}
	return &Locator{
		provider: p,
		opts:     opts,
		memo:     expirable.NewLRU[string, string](opts.MemoSize, nil, opts.MemoTTL),
	}
}

// Normalize strips ports, zones and IPv4-in-IPv6 mapping. ok is false for
// strings that are not IP addresses.
func Normalize(raw string) (netip.Addr, bool) {
	s := strings.TrimSpace(raw)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().WithZone(""), true
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

// Resolve returns the location label for one address.
func (l *Locator) Resolve(ctx context.Context, raw string) string {
	addr, ok := Normalize(raw)
	if !ok {
		metrics.RecordGeoLookup("unknown")
		return Unknown
	}
	if addr.IsLoopback() {
		metrics.RecordGeoLookup("local")
		return Localhost
	}
	if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() || l.provider == nil {
		metrics.RecordGeoLookup("unknown")
		return Unknown
	}

	key := addr.String()
	if label, ok := l.memo.Get(key); ok {
		metrics.RecordGeoLookup("memo")
		return label
	}

	if ctx.Err() != nil {
		metrics.RecordGeoLookup("skipped")
		return Unknown
	}

	lookupCtx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()
	label, err := l.provider.Lookup(lookupCtx, key)
	if err != nil || label == "" {
		metrics.RecordGeoLookup("error")
		return Unknown
	}
	l.memo.Add(key, label)
	metrics.RecordGeoLookup("resolved")
	return label
}

// ResolveAll resolves every distinct address in ips once and returns the
// labels keyed by the original strings. It returns within the locator's
// budget even when the provider does not honor cancellation.
func (l *Locator) ResolveAll(ctx context.Context, ips []string) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Budget)
	defer cancel()

	distinct := make([]string, 0, len(ips))
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		distinct = append(distinct, ip)
	}

	var mu sync.Mutex
	resolved := make(map[string]string, len(distinct))
	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(l.opts.Parallel)
		for _, ip := range distinct {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				label := l.Resolve(ctx, ip)
				mu.Lock()
				resolved[ip] = label
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("geo lookups exceeded budget", "budget", l.opts.Budget, "addresses", len(distinct))
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]string, len(distinct))
	for _, ip := range distinct {
		if label, ok := resolved[ip]; ok {
			out[ip] = label
		} else {
			out[ip] = Unknown
		}
	}
	return out
}

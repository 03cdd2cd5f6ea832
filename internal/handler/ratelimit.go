package handler

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/YannKr/medialink/internal/apperr"
)

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (v *visitor) touch() {
	v.mu.Lock()
	v.lastSeen = time.Now()
	v.mu.Unlock()
}

func (v *visitor) idleSince(t time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen.Before(t)
}

// RateLimiter tracks per-IP token buckets. Entries idle for ten minutes are
// evicted by a background goroutine.
type RateLimiter struct {
	visitors sync.Map
	rate     rate.Limit
	burst    int
	done     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:  r,
		burst: burst,
		done:  make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// PerMinute allows n requests per minute per IP, all of which may arrive at once.
func PerMinute(n int) *RateLimiter {
	return NewRateLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

func (rl *RateLimiter) Get(ip string) *rate.Limiter {
	if v, ok := rl.visitors.Load(ip); ok {
		vis := v.(*visitor)
		vis.touch()
		return vis.limiter
	}
	vis := &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: time.Now()}
	actual, _ := rl.visitors.LoadOrStore(ip, vis)
	return actual.(*visitor).limiter
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(visitorTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-visitorTTL)
			rl.visitors.Range(func(key, value any) bool {
				if value.(*visitor).idleSince(cutoff) {
					rl.visitors.Delete(key)
				}
				return true
			})
		case <-rl.done:
			return
		}
	}
}

// Stop terminates the background cleanup goroutine. It is safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) Rate() rate.Limit {
	return rl.rate
}

func (rl *RateLimiter) Burst() int {
	return rl.burst
}

// Middleware rejects requests over the limit with a JSON 429. key picks the
// bucket for a request.
func (rl *RateLimiter) Middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Get(key(r)).Allow() {
				err := apperr.RateLimit(msgTooManyAuth)
				renderJSON(w, apperr.StatusCode(err), envelope{Message: apperr.Message(err)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/YannKr/medialink/internal/clock"
)

func TestMemoryGetSetExpiry(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewMemory(c, 0)
	defer m.Close()

	if _, ok, err := m.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("empty cache hit: %v %v", ok, err)
	}

	m.Set(ctx, "k", []byte("v1"), time.Hour)
	got, ok, _ := m.Get(ctx, "k")
	if !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	// Returned bytes are a copy.
	got[0] = 'X'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "v1" {
		t.Errorf("cached value mutated: %q", again)
	}

	c.Advance(time.Hour - time.Second)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Error("entry expired early")
	}
	c.Advance(time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("entry should expire at its ttl")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not removed on read, len=%d", m.Len())
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewMemory(c, 0)
	defer m.Close()

	m.Set(ctx, "short", []byte("a"), time.Minute)
	m.Set(ctx, "long", []byte("b"), time.Hour)
	c.Advance(2 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemory(nil, time.Millisecond)
	m.Close()
	m.Close()
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not-a-redis-url", ""); err == nil {
		t.Error("expected parse error")
	}
}

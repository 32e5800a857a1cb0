package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test", 2, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisFixedWindowLimiter() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	ctx := context.Background()

	if !l.Allow(ctx, "ip-1") || !l.Allow(ctx, "ip-1") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow(ctx, "ip-1") {
		t.Fatal("third request should be blocked")
	}
	if !l.Allow(ctx, "ip-2") {
		t.Fatal("other keys have their own window")
	}
}

func TestFixedWindowLimiter_NextWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisFixedWindowLimiter() error = %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if !l.Allow(ctx, "k") {
		t.Fatal("first request should pass")
	}
	if l.Allow(ctx, "k") {
		t.Fatal("second request in same window should be blocked")
	}
	now = now.Add(time.Minute)
	if !l.Allow(ctx, "k") {
		t.Fatal("request in next window should pass")
	}
}

func TestFixedWindowLimiter_FailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test", 5, time.Second)
	if err != nil {
		t.Fatalf("NewRedisFixedWindowLimiter() error = %v", err)
	}
	mr.Close()
	if l.Allow(context.Background(), "k") {
		t.Fatal("limiter should fail closed on redis errors")
	}
}

func TestNewRedisFixedWindowLimiter_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		addr   string
		limit  int
		window time.Duration
	}{
		{"empty addr", "", 1, time.Second},
		{"zero limit", "localhost:6379", 0, time.Second},
		{"zero window", "localhost:6379", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRedisFixedWindowLimiter(tt.addr, "", "", tt.limit, tt.window); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "a") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if l.Allow(ctx, "a") {
		t.Fatal("fourth request should be blocked")
	}
	if !l.Allow(ctx, "b") {
		t.Fatal("separate key should pass")
	}
}

func TestMemoryLimiter_SweepsIdleBuckets(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	l := NewMemoryLimiter(3, time.Hour)
	l.now = func() time.Time { return now }
	l.lastSweep = start
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Allow(ctx, "a")
	}
	l.Allow(ctx, "b")

	now = start.Add(64 * time.Minute)
	for i := 0; i < 3; i++ {
		l.Allow(ctx, "busy")
	}

	now = start.Add(65 * time.Minute)
	if !l.Allow(ctx, "c") {
		t.Fatal("new key should pass")
	}

	if _, ok := l.buckets["a"]; ok {
		t.Error("refilled bucket a was not swept")
	}
	if _, ok := l.buckets["b"]; ok {
		t.Error("refilled bucket b was not swept")
	}
	if _, ok := l.buckets["busy"]; !ok {
		t.Fatal("drained bucket was swept")
	}
	if l.Allow(ctx, "busy") {
		t.Error("drained key should still be blocked after a sweep")
	}
	if len(l.buckets) != 2 {
		t.Errorf("buckets = %d, want 2", len(l.buckets))
	}
}

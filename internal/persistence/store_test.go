package persistence

import (
	"context"
	"testing"
)

type summary struct {
	Asset       string  `json:"asset"`
	RealizedPnL float64 `json:"realized_pnl"`
}

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	want := summary{Asset: "BTC", RealizedPnL: 12.5}
	if err := s.Put(ctx, KeyDailySummaries, "2026-08-01", want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got summary
	found, err := s.Get(ctx, KeyDailySummaries, "2026-08-01", &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatalf("expected the key to be found")
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestMemoryStoreMissReturnsFalse(t *testing.T) {
	s := NewMemoryStore()
	var got summary
	found, err := s.Get(context.Background(), KeyCalibratorState, "missing", &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for a missing key")
	}
}

// TestCachedStoreDegradesToPassThrough exercises the teacher's
// graceful-degradation posture: when Redis is unreachable,
// CachedStore.Put/Get still round-trip through the backing store
// instead of failing the caller.
func TestCachedStoreDegradesToPassThrough(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cached := NewCachedStore(ctx, RedisConfig{Addr: "127.0.0.1:0"}, backing)
	if cached.healthy {
		t.Fatalf("expected the cache to start degraded against an unreachable address")
	}

	want := summary{Asset: "ETH", RealizedPnL: -3.2}
	if err := cached.Put(ctx, KeyPaperTradingState, "pos-1", want); err != nil {
		t.Fatalf("unexpected error on degraded put: %v", err)
	}

	var got summary
	found, err := cached.Get(ctx, KeyPaperTradingState, "pos-1", &got)
	if err != nil {
		t.Fatalf("unexpected error on degraded get: %v", err)
	}
	if !found || got != want {
		t.Fatalf("expected pass-through round trip via the backing store, got found=%v value=%+v", found, got)
	}
}

func TestTTLForKnownKeyspaces(t *testing.T) {
	if ttlFor(KeyCalibratorState) != DefaultCalibratorTTL {
		t.Fatalf("expected calibrator_state to use DefaultCalibratorTTL")
	}
	if ttlFor(KeyDailySummaries) != DefaultDailySummaryTTL {
		t.Fatalf("expected daily_summaries to use DefaultDailySummaryTTL")
	}
	if ttlFor("unknown") != DefaultPaperTradingTTL {
		t.Fatalf("expected an unrecognized keyspace to fall back to DefaultPaperTradingTTL")
	}
}

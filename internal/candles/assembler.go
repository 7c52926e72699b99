// Package candles implements C2, the Candle Assembler: it owns a ring
// buffer of closed candles plus the currently-forming candle for every
// (asset, timeframe), seeded from a historical provider at warm-up, and
// publishes a snapshot each time a tick extends or rolls the current
// candle.
package candles

import (
	"context"
	"sync"
	"time"

	"polybot/internal/diagnostics"
	"polybot/internal/domain"
	"polybot/internal/logging"
	"polybot/internal/sources"
)

// RingSize is the number of closed candles retained per (asset, timeframe).
const RingSize = 200

// WarmupDeadline bounds the synchronous historical fetch before the
// assembler starts accepting live ticks with a cold ring, per spec.md §5.
const WarmupDeadline = 30 * time.Second

type ring struct {
	closed  []domain.Candle // oldest first, capped at RingSize
	current *domain.Candle
}

// Assembler owns every (asset, timeframe) candle ring. No other package
// mutates a ring directly.
type Assembler struct {
	history sources.CandleHistory
	out     chan domain.Candle
	diag    *diagnostics.Table

	mu    sync.RWMutex
	rings map[domain.Key]*ring

	log *logging.Logger
}

// NewAssembler builds an Assembler. queueDepth bounds the output channel
// of closed-candle-update snapshots sent to C3. diag may be nil, in
// which case warm-up failures and dropped snapshots are logged but not
// counted.
func NewAssembler(history sources.CandleHistory, queueDepth int, diag *diagnostics.Table) *Assembler {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Assembler{
		history: history,
		out:     make(chan domain.Candle, queueDepth),
		diag:    diag,
		rings:   make(map[domain.Key]*ring),
		log:     logging.WithComponent("candles"),
	}
}

func (a *Assembler) incError(reason string) {
	if a.diag != nil {
		a.diag.IncError(reason)
	}
}

// Out streams the latest (possibly still-forming) candle every time it
// updates, honoring the monotonic open_ts invariant from spec.md §4.2.
func (a *Assembler) Out() <-chan domain.Candle { return a.out }

// Warmup seeds the ring for key from the historical provider, bounded by
// WarmupDeadline. A provider error or timeout leaves the ring cold rather
// than blocking startup, per the Open Question resolved in SPEC_FULL.md.
func (a *Assembler) Warmup(ctx context.Context, key domain.Key) {
	wctx, cancel := context.WithTimeout(ctx, WarmupDeadline)
	defer cancel()

	candles, err := a.history.FetchCandles(wctx, key.Asset, key.Timeframe, RingSize)
	if err != nil {
		a.incError("candles.warmup_failed")
		a.log.Warn("warm-up fetch failed, starting cold", "key", key.String(), "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.ringFor(key)
	if len(candles) > RingSize {
		candles = candles[len(candles)-RingSize:]
	}
	r.closed = append(r.closed, candles...)
	a.log.Info("warm-up complete", "key", key.String(), "candles", len(candles))
}

func (a *Assembler) ringFor(key domain.Key) *ring {
	r, ok := a.rings[key]
	if !ok {
		r = &ring{}
		a.rings[key] = r
	}
	return r
}

// OnTick folds a canonical tick into the forming candle for (asset, tf),
// rolling a new candle when the bucket advances, and publishes the
// resulting snapshot.
func (a *Assembler) OnTick(tf domain.Timeframe, t domain.Tick) {
	key := domain.Key{Asset: t.Asset, Timeframe: tf}
	bucket := (t.TsMs / 1000 / tf.BucketSeconds()) * tf.BucketSeconds()

	a.mu.Lock()
	r := a.ringFor(key)

	switch {
	case r.current == nil:
		r.current = &domain.Candle{
			Asset: t.Asset, Timeframe: tf, OpenTs: bucket,
			Open: t.Mid, High: t.Mid, Low: t.Mid, Close: t.Mid,
		}
	case bucket > r.current.OpenTs:
		r.closed = append(r.closed, *r.current)
		if len(r.closed) > RingSize {
			r.closed = r.closed[len(r.closed)-RingSize:]
		}
		r.current = &domain.Candle{
			Asset: t.Asset, Timeframe: tf, OpenTs: bucket,
			Open: t.Mid, High: t.Mid, Low: t.Mid, Close: t.Mid,
		}
	default:
		if t.Mid > r.current.High {
			r.current.High = t.Mid
		}
		if t.Mid < r.current.Low {
			r.current.Low = t.Mid
		}
		r.current.Close = t.Mid
	}
	r.current.Volume++
	snapshot := *r.current
	a.mu.Unlock()

	select {
	case a.out <- snapshot:
	default:
		a.incError("candles.dropped_backpressure")
		a.log.Warn("candle snapshot queue full, dropping oldest", "key", key.String())
		select {
		case <-a.out:
		default:
		}
		select {
		case a.out <- snapshot:
		default:
		}
	}
}

// Last returns up to n most recent closed candles for key plus the
// currently-forming candle, oldest first, for seeding the feature engine.
func (a *Assembler) Last(key domain.Key, n int) []domain.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.rings[key]
	if !ok {
		return nil
	}
	closed := r.closed
	if n > 0 && len(closed) > n {
		closed = closed[len(closed)-n:]
	}
	out := make([]domain.Candle, len(closed))
	copy(out, closed)
	if r.current != nil {
		out = append(out, *r.current)
	}
	return out
}

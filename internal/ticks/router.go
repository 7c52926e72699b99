// Package ticks implements C1, the Tick Router: it normalizes
// heterogeneous tick events from one or more sources into a single
// canonical stream keyed by (asset, source), rejecting bad quotes and
// stale duplicates, and attaching a latency-weighted cross-source mid to
// every emitted tick.
package ticks

import (
	"context"
	"sync"
	"time"

	"polybot/internal/diagnostics"
	"polybot/internal/domain"
	"polybot/internal/events"
	"polybot/internal/logging"
	"polybot/internal/sources"
)

// StaleTimeoutDefault is the default per-source stall detector window.
const StaleTimeoutDefault = 30 * time.Second

// dedupKey is the owned deduplication-table key: (asset, source).
type dedupKey struct {
	Asset  domain.Asset
	Source string
}

// Router owns the per-source dedup table and the weighted-mid blend. It
// is the only component that mutates that table.
type Router struct {
	staleTimeout time.Duration
	queueDepth   int

	mu       sync.Mutex
	lastTs   map[dedupKey]int64
	lastSeen map[dedupKey]time.Time
	midState map[domain.Asset]map[string]domain.Tick // source -> latest tick, for weighted-mid

	out  chan domain.Tick
	bus  *events.EventBus
	diag *diagnostics.Table
	log  *logging.Logger
}

// NewRouter constructs a Router. queueDepth bounds the output channel;
// when full, the router drops the oldest queued tick (DropOldestOnPressure,
// spec.md §5) rather than block upstream. The queue is shared by all
// sources, so the dropped tick may come from any source, not only the
// one whose send found the queue full.
// diag may be nil, in which case transient data gaps are logged but not
// counted (tests that don't care about diagnostics wiring).
func NewRouter(staleTimeout time.Duration, queueDepth int, bus *events.EventBus, diag *diagnostics.Table) *Router {
	if staleTimeout <= 0 {
		staleTimeout = StaleTimeoutDefault
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Router{
		staleTimeout: staleTimeout,
		queueDepth:   queueDepth,
		lastTs:       make(map[dedupKey]int64),
		lastSeen:     make(map[dedupKey]time.Time),
		midState:     make(map[domain.Asset]map[string]domain.Tick),
		out:          make(chan domain.Tick, queueDepth),
		bus:          bus,
		diag:         diag,
		log:          logging.WithComponent("ticks"),
	}
}

// incError records an error/data-gap reason, if a diagnostics table was
// supplied.
func (r *Router) incError(reason string) {
	if r.diag != nil {
		r.diag.IncError(reason)
	}
}

// Out is the merged, canonicalized tick stream.
func (r *Router) Out() <-chan domain.Tick { return r.out }

// Run fans src's ticks into the router, applying the §4.1 contract, until
// ctx is cancelled or src's channel closes.
func (r *Router) Run(ctx context.Context, src sources.Source) {
	in := src.Ticks(ctx)
	staleCheck := time.NewTicker(r.staleTimeout / 2)
	defer staleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-staleCheck.C:
			r.checkStale(src.ID())
		case tick, ok := <-in:
			if !ok {
				return
			}
			r.ingest(tick)
		}
	}
}

func (r *Router) ingest(t domain.Tick) {
	if t.Bid <= 0 || t.Ask <= 0 || t.Ask < t.Bid {
		r.incError("ticks.bad_quote")
		r.log.Warn("rejected bad quote", "asset", t.Asset, "source", t.Source, "bid", t.Bid, "ask", t.Ask)
		return
	}
	if t.Mid == 0 {
		t.Mid = (t.Bid + t.Ask) / 2
	}

	key := dedupKey{Asset: t.Asset, Source: t.Source}

	r.mu.Lock()
	if last, ok := r.lastTs[key]; ok && t.TsMs <= last {
		r.mu.Unlock()
		r.incError("ticks.stale_duplicate")
		return // discarded per spec.md §4.1, counted per spec.md §7
	}
	r.lastTs[key] = t.TsMs
	r.lastSeen[key] = time.Now()

	if r.midState[t.Asset] == nil {
		r.midState[t.Asset] = make(map[string]domain.Tick)
	}
	r.midState[t.Asset][t.Source] = t
	weighted := r.weightedMidLocked(t.Asset)
	r.mu.Unlock()

	t.Mid = weighted
	r.publish(t)
}

// weightedMidLocked computes weight-by-inverse-latency blend across the
// most recent tick from every source for asset. Caller holds r.mu.
func (r *Router) weightedMidLocked(asset domain.Asset) float64 {
	latest := r.midState[asset]
	var weightedSum, weightTotal float64
	for _, t := range latest {
		w := 1.0 / (float64(t.LatencyMs) + 1.0)
		weightedSum += w * t.Mid
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

func (r *Router) publish(t domain.Tick) {
	select {
	case r.out <- t:
	default:
		// DropOldestOnPressure: make room by discarding the oldest queued
		// tick, then retry once. A second full queue means something
		// downstream is fully stuck; drop this tick too rather than block.
		select {
		case <-r.out:
		default:
		}
		select {
		case r.out <- t:
		default:
			r.incError("ticks.dropped_backpressure")
			r.log.Warn("dropped tick under backpressure", "asset", t.Asset, "source", t.Source)
		}
	}
}

func (r *Router) checkStale(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for key, seen := range r.lastSeen {
		if key.Source != sourceID {
			continue
		}
		if now.Sub(seen) > r.staleTimeout {
			r.incError("ticks.source_stalled")
			if r.bus != nil {
				r.bus.Publish(events.Event{
					Type: events.EventSourceStalled,
					Data: map[string]interface{}{
						"source": sourceID,
						"asset":  string(key.Asset),
					},
				})
			}
			r.log.Warn("source stalled", "source", sourceID, "asset", key.Asset)
		}
	}
}

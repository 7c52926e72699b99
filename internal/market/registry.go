// Package market implements the inbound market-registry interface from
// spec.md §6: for each (asset, timeframe), the current market_slug,
// market_close_ts, and token_ids, refreshed periodically. The concrete
// prediction-market CLOB lookup is an external collaborator; this package
// owns only the polling loop, staleness detection, and the read-only
// snapshot C6 consults when opening a position.
package market

import (
	"context"
	"sync"
	"time"

	"polybot/internal/diagnostics"
	"polybot/internal/domain"
	"polybot/internal/logging"
)

// Info is one market's registry entry.
type Info struct {
	Asset        domain.Asset
	Timeframe    domain.Timeframe
	MarketSlug   string
	MarketCloseTs int64
	TokenIDUp    string
	TokenIDDown  string
	FetchedAt    int64
}

// Provider is the external collaborator the registry polls.
type Provider interface {
	FetchMarkets(ctx context.Context) ([]Info, error)
}

// Registry holds the latest known Info per (asset, timeframe) and
// refreshes it on a fixed interval.
type Registry struct {
	provider Provider
	interval time.Duration
	staleAfter time.Duration

	mu    sync.RWMutex
	byKey map[domain.Key]Info

	diag   *diagnostics.Table
	logger *logging.Logger
}

// NewRegistry builds a Registry. interval is the refresh cadence (default
// 60s per spec.md §6); staleAfter marks an entry stale if it hasn't
// refreshed within that window, and main.go's orchestrator skips
// prediction for a market whose entry is stale. diag may be nil, in which
// case refresh failures are logged but not counted.
func NewRegistry(provider Provider, interval, staleAfter time.Duration, diag *diagnostics.Table) *Registry {
	return &Registry{
		provider:   provider,
		interval:   interval,
		staleAfter: staleAfter,
		byKey:      make(map[domain.Key]Info),
		diag:       diag,
		logger:     logging.WithComponent("market"),
	}
}

// Run polls provider until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	r.refresh(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Registry) refresh(ctx context.Context) {
	infos, err := r.provider.FetchMarkets(ctx)
	if err != nil {
		if r.diag != nil {
			r.diag.IncError("market.refresh_failed")
		}
		r.logger.Warn("market registry refresh failed", "error", err)
		return
	}
	now := time.Now().Unix()
	r.mu.Lock()
	for _, info := range infos {
		info.FetchedAt = now
		r.byKey[domain.Key{Asset: info.Asset, Timeframe: info.Timeframe}] = info
	}
	r.mu.Unlock()
}

// Lookup returns the latest known Info for key and whether it is present.
func (r *Registry) Lookup(key domain.Key) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byKey[key]
	return info, ok
}

// Stale reports whether key's entry is missing or older than staleAfter.
func (r *Registry) Stale(key domain.Key, nowUnix int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byKey[key]
	if !ok {
		return true
	}
	return nowUnix-info.FetchedAt > int64(r.staleAfter.Seconds())
}

// Package paper provides the standalone, no-external-dependency market
// data this repository ships by default: a deterministic random-walk
// tick source, a matching synthetic candle history for warm-up, and a
// static market registry provider. Concrete exchange and CLOB adapters
// are out of scope (spec.md §1); this package is what lets the pipeline
// run end to end without one, the same role sources.MockSource's doc
// comment describes for "paper-trading runs that replay a fixture instead
// of a live feed."
package paper

import (
	"context"
	"math"
	"math/rand"
	"time"

	"polybot/internal/domain"
)

// startPrice seeds the random walk per asset at a roughly realistic
// order of magnitude; only relative movement matters to the pipeline.
var startPrice = map[domain.Asset]float64{
	domain.BTC: 65000,
	domain.ETH: 3400,
	domain.SOL: 150,
	domain.XRP: 0.55,
}

// Source is a deterministic geometric random walk implementing
// sources.Source, used as the default tick feed in paper-trading mode.
type Source struct {
	id      string
	assets  []domain.Asset
	interval time.Duration
	volPct   float64
	rng      *rand.Rand
}

// NewSource builds a Source ticking every interval for each asset, with
// per-tick log-return volatility volPct (e.g. 0.0005 for 5bps).
func NewSource(id string, assets []domain.Asset, interval time.Duration, volPct float64, seed int64) *Source {
	if interval <= 0 {
		interval = time.Second
	}
	if volPct <= 0 {
		volPct = 0.0005
	}
	return &Source{
		id:       id,
		assets:   assets,
		interval: interval,
		volPct:   volPct,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (s *Source) ID() string { return s.id }

// Ticks streams a fresh mid for every configured asset on every
// interval tick until ctx is cancelled.
func (s *Source) Ticks(ctx context.Context) <-chan domain.Tick {
	out := make(chan domain.Tick)
	mids := make(map[domain.Asset]float64, len(s.assets))
	for _, a := range s.assets {
		p := startPrice[a]
		if p == 0 {
			p = 100
		}
		mids[a] = p
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UnixMilli()
				for _, a := range s.assets {
					logReturn := s.rng.NormFloat64() * s.volPct
					mids[a] *= math.Exp(logReturn)
					spread := mids[a] * 0.0002
					t := domain.Tick{
						Asset:     a,
						Source:    s.id,
						Bid:       mids[a] - spread/2,
						Ask:       mids[a] + spread/2,
						Mid:       mids[a],
						TsMs:      now,
						LatencyMs: 20,
					}
					select {
					case out <- t:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

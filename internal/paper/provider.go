package paper

import (
	"context"
	"fmt"
	"time"

	"polybot/internal/domain"
	"polybot/internal/market"
)

// Provider implements market.Provider with a static, locally-computed
// market per (asset, timeframe): the concrete prediction-market CLOB
// lookup spec.md §6 calls an external collaborator is out of scope, so
// paper-trading mode rolls its own market_close_ts from wall-clock time
// bucket-aligned to the timeframe, and fabricates stable token ids.
type Provider struct {
	assets     []domain.Asset
	timeframes []domain.Timeframe
}

// NewProvider builds a Provider covering every (asset, timeframe) pair
// in assets x timeframes.
func NewProvider(assets []domain.Asset, timeframes []domain.Timeframe) *Provider {
	return &Provider{assets: assets, timeframes: timeframes}
}

// FetchMarkets returns the currently "open" synthetic market for every
// configured pair: one whose close_ts is the next bucket boundary.
func (p *Provider) FetchMarkets(ctx context.Context) ([]market.Info, error) {
	now := time.Now().Unix()
	infos := make([]market.Info, 0, len(p.assets)*len(p.timeframes))
	for _, a := range p.assets {
		for _, tf := range p.timeframes {
			bucket := tf.BucketSeconds()
			closeTs := ((now / bucket) + 1) * bucket
			slug := fmt.Sprintf("%s-%s-%d", a, tf, closeTs)
			infos = append(infos, market.Info{
				Asset:         a,
				Timeframe:     tf,
				MarketSlug:    slug,
				MarketCloseTs: closeTs,
				TokenIDUp:     slug + "-up",
				TokenIDDown:   slug + "-down",
			})
		}
	}
	return infos, nil
}

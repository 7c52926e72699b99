package paper

import (
	"context"
	"math"
	"math/rand"
	"time"

	"polybot/internal/domain"
)

// History implements sources.CandleHistory by synthesizing a plausible
// closed-candle series ending just before now, so the candle assembler
// warms up with a non-empty ring instead of starting stone cold.
type History struct {
	rng *rand.Rand
}

// NewHistory builds a History seeded independently of Source so warm-up
// data and the live feed never correlate tick-for-tick.
func NewHistory(seed int64) *History {
	return &History{rng: rand.New(rand.NewSource(seed))}
}

func (h *History) FetchCandles(ctx context.Context, asset domain.Asset, tf domain.Timeframe, count int) ([]domain.Candle, error) {
	if count <= 0 {
		count = 1
	}
	price := startPrice[asset]
	if price == 0 {
		price = 100
	}

	bucket := tf.BucketSeconds()
	now := time.Now().Unix()
	startBucket := (now/bucket)*bucket - int64(count)*bucket

	out := make([]domain.Candle, 0, count)
	for i := 0; i < count; i++ {
		open := price
		high, low := open, open
		for j := 0; j < 4; j++ {
			price *= math.Exp(h.rng.NormFloat64() * 0.001)
			if price > high {
				high = price
			}
			if price < low {
				low = price
			}
		}
		out = append(out, domain.Candle{
			Asset:     asset,
			Timeframe: tf,
			OpenTs:    startBucket + int64(i)*bucket,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1,
		})
	}
	return out, nil
}

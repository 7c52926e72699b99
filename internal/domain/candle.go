package domain

// Candle is an OHLCV bar for one (asset, timeframe) bucket.
//
// Invariants enforced by the assembler: Low <= min(Open,Close) <=
// max(Open,Close) <= High; OpenTs is aligned to the timeframe's bucket
// duration; exactly one candle exists per (asset, timeframe, bucket).
type Candle struct {
	Asset     Asset
	Timeframe Timeframe
	OpenTs    int64 // epoch seconds, bucket-aligned
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Key returns the owning (asset, timeframe) pair.
func (c Candle) Key() Key {
	return Key{Asset: c.Asset, Timeframe: c.Timeframe}
}

// Closed reports whether wall-clock nowSecs has moved past this candle's
// bucket, i.e. the candle can no longer be extended.
func (c Candle) Closed(nowSecs int64) bool {
	return nowSecs > c.OpenTs+c.Timeframe.BucketSeconds()
}

// Valid checks the OHLC ordering invariant.
func (c Candle) Valid() bool {
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	return c.Low <= lo && hi <= c.High
}

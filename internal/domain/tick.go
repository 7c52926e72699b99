package domain

// Tick is a single price observation from a named source.
//
// Mid is derived from bid/ask when both are present; otherwise it carries
// the last trade price supplied by the adapter. TsMs is the source's own
// send timestamp in epoch milliseconds and is the only clock used to order
// ticks from the same source -- never wall-clock receive time.
type Tick struct {
	Asset     Asset
	Source    string
	Bid       float64
	Ask       float64
	Mid       float64
	TsMs      int64
	LatencyMs int64 // transport latency estimate, used for weighted-mid blending
}

// WeightedMid holds the cross-source blended mid attached to emitted ticks.
type WeightedMid struct {
	Asset Asset
	Mid   float64
	TsMs  int64
}

// RejectReason enumerates why the tick router refused to forward a tick.
type RejectReason string

const (
	RejectBadQuote   RejectReason = "BadQuote"
	RejectStale      RejectReason = "StaleTimestamp"
	RejectSourceDead RejectReason = "SourceStalled"
)

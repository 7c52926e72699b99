package domain

import "github.com/shopspring/decimal"

// PositionStatus is the closed lifecycle enumeration for a Position.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "Open"
	StatusClosing PositionStatus = "Closing"
	StatusClosed  PositionStatus = "Closed"
)

// ExitReason enumerates every way a position can leave the Open state.
type ExitReason string

const (
	ExitTrailingStop   ExitReason = "TrailingStop"
	ExitTakeProfit     ExitReason = "TakeProfit"
	ExitHardStop       ExitReason = "HardStop"
	ExitTimeStop       ExitReason = "TimeStop"
	ExitMarketExpiry   ExitReason = "MarketExpiry"
	ExitDailyLossLimit ExitReason = "DailyLossLimit"
	ExitShutdown       ExitReason = "Shutdown"
	ExitSubmitFailed   ExitReason = "SubmitFailed"
)

// Position is an open (or just-closed) simulated or real bet on a
// prediction-market token.
type Position struct {
	ID            string
	Asset         Asset
	Timeframe     Timeframe
	MarketSlug    string
	Direction     Direction
	EntryPrice    float64
	CurrentPrice  float64
	SizeUsdc      float64
	OpenedAt      int64
	MarketCloseTs int64
	Confidence    float64
	FeaturesTriggered []string
	PeakPrice     float64
	TroughPrice   float64
	TrailArmed    bool
	Status        PositionStatus
	ExitReason    ExitReason
	ExitPrice     float64
	ClosedAt      int64
}

// UnrealizedPnLPct returns unrealized PnL as a fraction of entry price,
// signed by direction.
func (p *Position) UnrealizedPnLPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return p.Direction.Sign() * (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
}

// Trade is the immutable record produced when a Position closes.
type Trade struct {
	PositionID      string
	Asset           Asset
	Timeframe       Timeframe
	Direction       Direction
	EntryPrice      float64
	ExitPrice       float64
	SizeUsdc        float64
	PnLUsdc         float64
	FeesUsdc        float64
	HoldSecs        int64
	ExitReason      ExitReason
	Confidence      float64
	FeaturesAtEntry []string
	OpenedAt        int64
	ClosedAt        int64
}

// ComputePnL applies the spec's settlement formula using decimal
// arithmetic so that cent-level rounding never drifts across a long
// session of small-notional trades, unlike the float64 path used for
// indicator math (which is intentionally float64 per spec.md §4.3).
func ComputePnL(direction Direction, entry, exit, sizeUsdc, feesUsdc float64) float64 {
	if entry == 0 {
		return -feesUsdc
	}
	sign := decimal.NewFromFloat(direction.Sign())
	entryD := decimal.NewFromFloat(entry)
	exitD := decimal.NewFromFloat(exit)
	sizeD := decimal.NewFromFloat(sizeUsdc)
	feesD := decimal.NewFromFloat(feesUsdc)

	pnl := sign.Mul(exitD.Sub(entryD)).Div(entryD).Mul(sizeD).Sub(feesD)
	f, _ := pnl.Float64()
	return f
}

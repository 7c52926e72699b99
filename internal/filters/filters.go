// Package filters implements C5, the Smart Filters: a prediction passes
// only if every gate in spec.md §4.5 holds. Each failure increments a
// named counter in internal/diagnostics.
package filters

import (
	"math"

	"polybot/internal/diagnostics"
	"polybot/internal/domain"
	"polybot/internal/logging"
)

// Rejection reasons, one per gate, plus the daily loss guard's own name
// since it is evaluated against process-wide state rather than the
// feature record.
const (
	ReasonSpread         = "spread_too_wide"
	ReasonDepth          = "insufficient_depth"
	ReasonVolatility     = "volatility_too_high"
	ReasonTTL            = "below_min_ttl"
	ReasonConfidence     = "below_min_confidence"
	ReasonWarmup         = "calibration_idle"
	ReasonDailyLoss      = "daily_loss_limit_reached"
)

// Thresholds holds the configurable gate values, per spec.md §6's
// configuration surface.
type Thresholds struct {
	MaxSpreadBps     map[domain.Timeframe]float64
	MinDepthUsdc     float64
	MaxVolatility5m  float64
	MinTTLSecs       float64
	MinConfidence    float64
	MaxDailyLossUsdc float64
}

// DefaultThresholds returns spec.md §4.5's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxSpreadBps: map[domain.Timeframe]float64{
			domain.Min15: 100,
			domain.Hour1: 150,
		},
		MinDepthUsdc:     5000,
		MaxVolatility5m:  0.02,
		MinTTLSecs:       30,
		MinConfidence:    0.55,
		MaxDailyLossUsdc: 500,
	}
}

// Input bundles everything a gate decision needs: the prediction itself,
// the feature record it was computed from (for microstructure/volatility
// fields), the calibration status for this market, seconds remaining
// until market close, and today's realized PnL.
type Input struct {
	Prediction       domain.Prediction
	Features         domain.Features
	CalibrationIdle  bool
	SecondsToClose   float64
	TodayRealizedPnL float64
}

// Gate implements C5. It is stateless beyond its thresholds and an
// injected diagnostics table.
type Gate struct {
	thresholds Thresholds
	diag       *diagnostics.Table
	log        *logging.Logger
}

// NewGate builds a Gate with explicit thresholds and a diagnostics sink.
// diag may be nil in tests.
func NewGate(thresholds Thresholds, diag *diagnostics.Table) *Gate {
	return &Gate{thresholds: thresholds, diag: diag, log: logging.WithComponent("filters")}
}

// Evaluate runs every gate in spec.md §4.5's table order and returns
// (true, "") if the prediction passes all of them, else (false, reason)
// for the first gate that rejects it. Missing microstructure fields
// default to the most permissive interpretation (0 for spread, +Inf for
// depth, 0 for volatility); confidence and warm-up fail closed when the
// backing data or flag is absent, per spec.md §4.5 and the
// MicrostructurePresent Open-Question resolution in SPEC_FULL.md §9.
func (g *Gate) Evaluate(in Input) (bool, string) {
	f := in.Features
	tf := in.Prediction.Timeframe

	spreadBps := 0.0
	if f.MicrostructurePresent && f.SpreadBps != nil {
		spreadBps = *f.SpreadBps
	}
	maxSpread := g.thresholds.MaxSpreadBps[tf]
	if spreadBps > maxSpread {
		return g.reject(ReasonSpread)
	}

	depth := math.Inf(1)
	if f.MicrostructurePresent && f.DepthTop5Usdc != nil {
		depth = *f.DepthTop5Usdc
	}
	if depth < g.thresholds.MinDepthUsdc {
		return g.reject(ReasonDepth)
	}

	volatility := 0.0
	if f.VolatilityATRPct5m != nil {
		volatility = *f.VolatilityATRPct5m
	}
	if volatility > g.thresholds.MaxVolatility5m {
		return g.reject(ReasonVolatility)
	}

	if in.SecondsToClose < g.thresholds.MinTTLSecs {
		return g.reject(ReasonTTL)
	}

	if in.Prediction.Confidence < g.thresholds.MinConfidence {
		return g.reject(ReasonConfidence)
	}

	if in.CalibrationIdle {
		return g.reject(ReasonWarmup)
	}

	if in.TodayRealizedPnL < -g.thresholds.MaxDailyLossUsdc {
		return g.reject(ReasonDailyLoss)
	}

	return true, ""
}

func (g *Gate) reject(reason string) (bool, string) {
	if g.diag != nil {
		g.diag.IncFilterRejection(reason)
	}
	return false, reason
}

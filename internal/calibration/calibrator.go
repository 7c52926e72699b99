// Package calibration implements C7, the Calibrator & Trainer: per-market
// indicator win-rate tracking, readiness status, and periodic submodel
// retraining with walk-forward hysteresis.
package calibration

import (
	"sync"

	"polybot/internal/domain"
	"polybot/internal/logging"
)

// Defaults per spec.md §4.7 and §6.
const (
	DefaultWarmupTarget     = 30
	DefaultRetrainInterval  = 50
	DefaultTrainingWindow   = 2000
	IndicatorAlpha          = 0.02 // EWMA smoothing factor for win-rate
	IndicatorEpsilon        = 0.01
	IndicatorActiveThreshold = 1e-9
)

// Calibrator owns every (asset, timeframe) calibration record, per
// spec.md §9 ("owned table, not global singleton"). No package outside
// internal/calibration mutates a record in place.
type Calibrator struct {
	mu           sync.Mutex
	records      map[domain.Key]*domain.PerMarketCalibration
	warmupTarget int
	log          *logging.Logger
}

// NewCalibrator constructs a Calibrator with the given warm-up target
// (closed trades until a market reaches Ready).
func NewCalibrator(warmupTarget int) *Calibrator {
	if warmupTarget <= 0 {
		warmupTarget = DefaultWarmupTarget
	}
	return &Calibrator{
		records:      make(map[domain.Key]*domain.PerMarketCalibration),
		warmupTarget: warmupTarget,
		log:          logging.WithComponent("calibration"),
	}
}

func (c *Calibrator) recordFor(key domain.Key) *domain.PerMarketCalibration {
	r, ok := c.records[key]
	if !ok {
		r = &domain.PerMarketCalibration{
			Asset:            key.Asset,
			Timeframe:        key.Timeframe,
			IndicatorWinRate: make(map[string]float64),
			IndicatorWeight:  make(map[string]float64),
			Status:           domain.CalibrationIdle,
		}
		c.records[key] = r
	}
	return r
}

// RecordTrade folds a closed trade's outcome into the per-market
// calibration record: the overall sample/win/loss counters, an EWMA
// win-rate per indicator named in FeaturesAtEntry (α=0.02, per spec.md
// §4.7), and the readiness status transition at warmup_target trades.
func (c *Calibrator) RecordTrade(trade domain.Trade) {
	key := domain.Key{Asset: trade.Asset, Timeframe: trade.Timeframe}
	won := trade.PnLUsdc > 0

	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.recordFor(key)

	r.SampleCount++
	if won {
		r.Wins++
	} else {
		r.Losses++
	}
	r.LastUpdateTs = trade.ClosedAt

	outcome := 0.0
	if won {
		outcome = 1.0
	}
	for _, indicator := range trade.FeaturesAtEntry {
		prev, ok := r.IndicatorWinRate[indicator]
		if !ok {
			prev = 0.5
		}
		updated := prev + IndicatorAlpha*(outcome-prev)
		r.IndicatorWinRate[indicator] = updated

		weight := updated - 0.5
		if weight < 0 {
			weight = 0
		}
		r.IndicatorWeight[indicator] = weight + IndicatorEpsilon
	}

	switch {
	case r.SampleCount >= c.warmupTarget:
		r.Status = domain.CalibrationReady
	case r.SampleCount > 0:
		r.Status = domain.CalibrationWarmingUp
	default:
		r.Status = domain.CalibrationIdle
	}

	c.log.Info("calibration updated",
		"asset", key.Asset, "timeframe", key.Timeframe,
		"sample_count", r.SampleCount, "status", r.Status)
}

// Status returns the current readiness status and average indicator
// win-rate for key, for consumption by C3's CalibrationLookup and C5's
// warm-up gate. ok is false when no trade has ever closed for key, in
// which case callers should treat calibration as Idle (fail closed).
func (c *Calibrator) Status(key domain.Key) (status domain.CalibrationStatus, avgWinRate float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, exists := c.records[key]
	if !exists {
		return domain.CalibrationIdle, 0, false
	}
	if len(r.IndicatorWinRate) > 0 {
		var sum float64
		for _, wr := range r.IndicatorWinRate {
			sum += wr
		}
		avgWinRate = sum / float64(len(r.IndicatorWinRate))
	}
	return r.Status, avgWinRate, true
}

// Snapshot returns the read-only external view of a calibration record,
// per spec.md's snapshot interface.
func (c *Calibrator) Snapshot(key domain.Key) (domain.CalibrationSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[key]
	if !ok {
		return domain.CalibrationSnapshot{}, false
	}

	progress := float64(r.SampleCount) / float64(c.warmupTarget) * 100
	if progress > 100 {
		progress = 100
	}

	active := 0
	var sum float64
	for _, w := range r.IndicatorWeight {
		if w > IndicatorActiveThreshold {
			active++
		}
	}
	for _, wr := range r.IndicatorWinRate {
		sum += wr
	}
	avg := 0.0
	if len(r.IndicatorWinRate) > 0 {
		avg = sum / float64(len(r.IndicatorWinRate))
	}

	return domain.CalibrationSnapshot{
		Asset:            r.Asset,
		Timeframe:        r.Timeframe,
		SampleCount:      r.SampleCount,
		Target:           c.warmupTarget,
		ProgressPct:      progress,
		IndicatorsActive: active,
		AvgWinRate:       avg,
		Status:           r.Status,
	}, true
}

// SampleCount returns the closed-trade count for key, used by the
// weight-adjustment/retrain-interleaving scheduler in main.go.
func (c *Calibrator) SampleCount(key domain.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[key]
	if !ok {
		return 0
	}
	return r.SampleCount
}

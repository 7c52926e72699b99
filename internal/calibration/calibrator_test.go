package calibration

import (
	"math"
	"testing"

	"polybot/internal/domain"
)

func closedTrade(won bool, indicators []string, closedAt int64) domain.Trade {
	pnl := -5.0
	if won {
		pnl = 5.0
	}
	return domain.Trade{
		Asset:           domain.BTC,
		Timeframe:       domain.Min15,
		PnLUsdc:         pnl,
		FeaturesAtEntry: indicators,
		ClosedAt:        closedAt,
	}
}

func TestCalibrationReadinessAt29And30Trades(t *testing.T) {
	c := NewCalibrator(30)
	key := domain.Key{Asset: domain.BTC, Timeframe: domain.Min15}

	for i := 0; i < 29; i++ {
		c.RecordTrade(closedTrade(i%2 == 0, []string{"macd_hist"}, int64(i)))
	}
	snap, ok := c.Snapshot(key)
	if !ok {
		t.Fatalf("expected a snapshot to exist after 29 trades")
	}
	if snap.Status != domain.CalibrationWarmingUp {
		t.Fatalf("expected WarmingUp status at 29 trades, got %v", snap.Status)
	}
	if math.Abs(snap.ProgressPct-96.666666) > 0.01 {
		t.Fatalf("expected progress_pct ~= 96.67, got %v", snap.ProgressPct)
	}

	c.RecordTrade(closedTrade(true, []string{"macd_hist"}, 29))
	snap, ok = c.Snapshot(key)
	if !ok {
		t.Fatalf("expected a snapshot to exist after 30 trades")
	}
	if snap.Status != domain.CalibrationReady {
		t.Fatalf("expected Ready status at 30 trades, got %v", snap.Status)
	}
	if snap.IndicatorsActive < 1 {
		t.Fatalf("expected at least one active indicator, got %d", snap.IndicatorsActive)
	}
}

func TestStatusIdleWhenNeverTraded(t *testing.T) {
	c := NewCalibrator(30)
	key := domain.Key{Asset: domain.ETH, Timeframe: domain.Hour1}
	status, _, ok := c.Status(key)
	if ok {
		t.Fatalf("expected ok=false for a market with no closed trades")
	}
	if status != domain.CalibrationIdle {
		t.Fatalf("expected Idle as the fail-closed default, got %v", status)
	}
}

// callProb returns a prob_up that makes the submodel's call agree (or
// disagree) with wasUp, as directed by correct.
func callProb(wasUp, correct bool) float64 {
	calledUp := wasUp == correct
	if calledUp {
		return 0.9
	}
	return 0.1
}

func TestRetrainHysteresisAcceptsAndRejects(t *testing.T) {
	trainer := NewTrainer(2000, DefaultHysteresis)

	var history []Outcome
	// Training split: both submodels at 80% accuracy over 40 outcomes
	// (8 of every 10 calls correct).
	for i := 0; i < 40; i++ {
		wasUp := i%2 == 0
		correct := i%5 != 0
		history = append(history, Outcome{
			SubmodelProbs: map[string]float64{
				"gradient_boosting":   callProb(wasUp, correct),
				"logistic_regression": callProb(wasUp, correct),
			},
			SettledUp: wasUp,
		})
	}
	// Validation split (last 20%, 10 outcomes): gradient_boosting scores
	// 30% (a 0.50 regression against its 0.80 training accuracy, beyond
	// the 0.02 hysteresis margin); logistic_regression scores 90% (an
	// improvement, comfortably accepted).
	for i := 0; i < 10; i++ {
		wasUp := i%2 == 0
		gbCorrect := i%10 < 3
		lrCorrect := i%10 < 9
		history = append(history, Outcome{
			SubmodelProbs: map[string]float64{
				"gradient_boosting":   callProb(wasUp, gbCorrect),
				"logistic_regression": callProb(wasUp, lrCorrect),
			},
			SettledUp: wasUp,
		})
	}

	decisions := trainer.Retrain(history, []string{"gradient_boosting", "logistic_regression"})
	var gb, lr RetrainDecision
	for _, d := range decisions {
		switch d.SubmodelName {
		case "gradient_boosting":
			gb = d
		case "logistic_regression":
			lr = d
		}
	}
	if gb.Accepted {
		t.Fatalf("expected gradient_boosting's regressed validation accuracy to be rejected: %+v", gb)
	}
	if !lr.Accepted {
		t.Fatalf("expected logistic_regression's improved validation accuracy to be accepted: %+v", lr)
	}
}

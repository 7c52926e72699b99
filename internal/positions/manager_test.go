package positions

import (
	"testing"

	"github.com/rs/zerolog"

	"polybot/internal/domain"
)

func testManager(limits Limits, dailyLossLimit float64) *Manager {
	return NewManager(limits, dailyLossLimit, nil, zerolog.Nop())
}

func samplePrediction(asset domain.Asset, direction domain.Direction, confidence float64) domain.Prediction {
	return domain.Prediction{Asset: asset, Timeframe: domain.Min15, Direction: direction, Confidence: confidence, ProbUp: 0.7}
}

func TestDuplicateOpenRejectedWithConcurrentPosition(t *testing.T) {
	m := testManager(DefaultLimits(), 500)
	pred := samplePrediction(domain.BTC, domain.Up, 0.7)

	_, err := m.Open(pred, "btc-15m-slug", 100, 10_000, 0)
	if err != nil {
		t.Fatalf("unexpected error on first open: %v", err)
	}
	_, err = m.Open(pred, "btc-15m-slug", 100, 10_000, 1)
	if err != ErrConcurrentPosition {
		t.Fatalf("expected ErrConcurrentPosition on duplicate open, got %v", err)
	}
	if len(m.OpenPositions()) != 1 {
		t.Fatalf("expected exactly one open position after the duplicate was rejected")
	}
}

func TestTrailingStopExitScenario(t *testing.T) {
	limits := DefaultLimits()
	limits.TrailArmPct = 0.003
	limits.TrailPct = 0.005
	limits.HardStopPct = 0.5 // disable, isolate the trailing-stop path
	limits.TakeProfitPct = 0.5
	m := testManager(limits, 10000)

	pred := samplePrediction(domain.BTC, domain.Up, 0.7)
	pos, err := m.Open(pred, "btc-15m-slug", 100.00, 1_000_000, 0)
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}

	m.OnTick(domain.BTC, 100.40, 1) // arms trailing (0.4% > 0.3% arm threshold)
	// peak*(1-TrailPct) = 100.40*0.995 = 99.898; 99.80 is below that, so this tick fires the stop.
	trades := m.OnTick(domain.BTC, 99.80, 2)

	if len(trades) != 1 {
		t.Fatalf("expected the trailing stop to close exactly one trade, got %d", len(trades))
	}
	trade := trades[0]
	if trade.ExitReason != domain.ExitTrailingStop {
		t.Fatalf("expected exit reason TrailingStop, got %v", trade.ExitReason)
	}
	if trade.ExitPrice != 99.80 {
		t.Fatalf("expected exit price 99.80, got %v", trade.ExitPrice)
	}
	if trade.PositionID != pos.ID {
		t.Fatalf("trade position id mismatch")
	}
}

func TestMarketExpiryTakesPrecedenceOverHardStop(t *testing.T) {
	limits := DefaultLimits()
	limits.HardStopPct = 0.05 // 5%; a -10% move would trip this too
	m := testManager(limits, 10000)

	pred := samplePrediction(domain.BTC, domain.Up, 0.7)
	m.Open(pred, "btc-15m-slug", 100.00, 100, 0) // market closes at t=100

	// Simultaneously: -10% unrealized (would fire HardStop) and now ==
	// market_close_ts (would fire MarketExpiry). MarketExpiry is checked
	// first in spec.md's documented predicate order and must win.
	trades := m.OnTick(domain.BTC, 90.00, 100)
	if len(trades) != 1 {
		t.Fatalf("expected exactly one trade closed, got %d", len(trades))
	}
	if trades[0].ExitReason != domain.ExitMarketExpiry {
		t.Fatalf("expected MarketExpiry to take precedence over HardStop, got %v", trades[0].ExitReason)
	}
}

func TestPnLSignMatchesDirection(t *testing.T) {
	m := testManager(DefaultLimits(), 10000)
	pred := samplePrediction(domain.BTC, domain.Up, 0.7)
	m.Open(pred, "btc-15m-slug", 100.00, 1_000_000, 0)

	trade, err := m.Close(m.OpenPositions()[0].ID, 105.00, domain.ExitTakeProfit, 1)
	if err != nil {
		t.Fatalf("unexpected error closing position: %v", err)
	}
	if trade.PnLUsdc <= 0 {
		t.Fatalf("expected positive PnL for a long that moved up, got %v", trade.PnLUsdc)
	}
}

func TestConfidenceCurveClampsAndInterpolates(t *testing.T) {
	cases := []struct {
		confidence float64
		want       float64
	}{
		{0.50, 0.5},
		{0.55, 0.5},
		{0.65, 0.75},
		{0.80, 1.0},
		{0.95, 1.0},
	}
	for _, c := range cases {
		got := ConfidenceCurve(c.confidence)
		if got != c.want {
			t.Fatalf("ConfidenceCurve(%v) = %v, want %v", c.confidence, got, c.want)
		}
	}
}

func TestSizeUsdcRespectsPerTradeCap(t *testing.T) {
	size := SizeUsdc(1000, 0.80, 500)
	if size != 500 {
		t.Fatalf("expected size clamped to per-trade cap of 500, got %v", size)
	}
}

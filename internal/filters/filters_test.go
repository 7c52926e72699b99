package filters

import (
	"testing"

	"polybot/internal/domain"
)

func basePassingInput() Input {
	spread := 10.0
	depth := 10000.0
	vol := 0.005
	return Input{
		Prediction: domain.Prediction{
			Timeframe:  domain.Min15,
			Confidence: 0.7,
		},
		Features: domain.Features{
			MicrostructurePresent: true,
			SpreadBps:             &spread,
			DepthTop5Usdc:         &depth,
			VolatilityATRPct5m:    &vol,
		},
		CalibrationIdle:  false,
		SecondsToClose:   120,
		TodayRealizedPnL: 0,
	}
}

func TestAllGatesPassOnHealthyInput(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	ok, reason := g.Evaluate(basePassingInput())
	if !ok {
		t.Fatalf("expected a healthy input to pass, rejected with reason %q", reason)
	}
}

func TestConfidenceGateFailsClosed(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	in := basePassingInput()
	in.Prediction.Confidence = 0.04
	ok, reason := g.Evaluate(in)
	if ok || reason != ReasonConfidence {
		t.Fatalf("expected rejection with reason %q, got ok=%v reason=%q", ReasonConfidence, ok, reason)
	}
}

func TestWarmupGateFailsClosedEvenWithoutMicrostructure(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	in := basePassingInput()
	in.CalibrationIdle = true
	in.Features.MicrostructurePresent = false
	in.Features.SpreadBps = nil
	in.Features.DepthTop5Usdc = nil
	ok, reason := g.Evaluate(in)
	if ok || reason != ReasonWarmup {
		t.Fatalf("expected rejection with reason %q, got ok=%v reason=%q", ReasonWarmup, ok, reason)
	}
}

func TestMissingMicrostructureDefaultsPermissive(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	in := basePassingInput()
	in.Features.MicrostructurePresent = false
	in.Features.SpreadBps = nil
	in.Features.DepthTop5Usdc = nil
	ok, reason := g.Evaluate(in)
	if !ok {
		t.Fatalf("expected missing microstructure to default permissive, got rejection %q", reason)
	}
}

func TestTTLGateRejectsNearExpiry(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	in := basePassingInput()
	in.SecondsToClose = 5
	ok, reason := g.Evaluate(in)
	if ok || reason != ReasonTTL {
		t.Fatalf("expected rejection with reason %q, got ok=%v reason=%q", ReasonTTL, ok, reason)
	}
}

func TestDailyLossGuardRejectsBelowThreshold(t *testing.T) {
	thresholds := DefaultThresholds()
	thresholds.MaxDailyLossUsdc = 100
	g := NewGate(thresholds, nil)
	in := basePassingInput()
	in.TodayRealizedPnL = -150
	ok, reason := g.Evaluate(in)
	if ok || reason != ReasonDailyLoss {
		t.Fatalf("expected rejection with reason %q, got ok=%v reason=%q", ReasonDailyLoss, ok, reason)
	}
}

func TestTimeframeSpreadThresholdDiffers(t *testing.T) {
	g := NewGate(DefaultThresholds(), nil)
	in := basePassingInput()
	spread := 120.0
	in.Features.SpreadBps = &spread
	in.Prediction.Timeframe = domain.Min15
	if ok, _ := g.Evaluate(in); ok {
		t.Fatalf("expected 120bps spread to fail the 100bps 15m threshold")
	}
	in.Prediction.Timeframe = domain.Hour1
	if ok, reason := g.Evaluate(in); !ok {
		t.Fatalf("expected 120bps spread to pass the 150bps 1h threshold, got rejection %q", reason)
	}
}

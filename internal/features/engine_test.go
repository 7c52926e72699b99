package features

import (
	"testing"

	"polybot/internal/domain"
)

func seedCandles(e *Engine, asset domain.Asset, tf domain.Timeframe, n int, start float64) domain.Features {
	var last domain.Features
	price := start
	for i := 0; i < n; i++ {
		price += 0.5
		c := domain.Candle{
			Asset: asset, Timeframe: tf,
			OpenTs: int64(i) * tf.BucketSeconds(),
			Open:   price - 0.5, High: price + 0.2, Low: price - 0.7, Close: price,
		}
		e.OnCandle(c)
		last = <-e.Out()
	}
	return last
}

func TestRSINoneBeforeWarmup(t *testing.T) {
	e := NewEngine(64, nil)
	f := seedCandles(e, domain.BTC, domain.Min15, 14, 100)
	if f.RSI != nil {
		t.Fatalf("expected RSI to be nil before period+1 closes, got %v", *f.RSI)
	}
	if f.CandleCount != 14 {
		t.Fatalf("expected candle count 14, got %d", f.CandleCount)
	}
}

func TestRSIAndMACDPresentByCandle27(t *testing.T) {
	e := NewEngine(64, nil)
	f := seedCandles(e, domain.BTC, domain.Min15, 27, 100)
	if f.RSI == nil {
		t.Fatalf("expected RSI to be populated by candle 27")
	}
	if f.MACDLine == nil {
		t.Fatalf("expected MACD to be populated by candle 27")
	}
	if *f.RSI < 0 || *f.RSI > 100 {
		t.Fatalf("RSI out of range: %v", *f.RSI)
	}
}

func TestFeaturesAlwaysEmitted(t *testing.T) {
	e := NewEngine(64, nil)
	c := domain.Candle{Asset: domain.ETH, Timeframe: domain.Min15, OpenTs: 0, Open: 10, High: 10, Low: 10, Close: 10}
	e.OnCandle(c)
	f := <-e.Out()
	if f.Asset != domain.ETH {
		t.Fatalf("expected a Features record even on the very first candle")
	}
	if f.RSI != nil || f.MACDLine != nil {
		t.Fatalf("expected all technicals nil on first candle")
	}
}

func TestMACDHistSignMatchesLineMinusSignal(t *testing.T) {
	e := NewEngine(64, nil)
	f := seedCandles(e, domain.SOL, domain.Min15, 40, 50)
	if f.MACDLine == nil || f.MACDSignal == nil || f.MACDHist == nil {
		t.Fatalf("expected MACD populated")
	}
	want := *f.MACDLine - *f.MACDSignal
	if (want >= 0) != (*f.MACDHist >= 0) {
		t.Fatalf("macd_hist sign mismatch: hist=%v want_sign_of=%v", *f.MACDHist, want)
	}
}

func TestBollingerPositionClampedRange(t *testing.T) {
	e := NewEngine(64, nil)
	f := seedCandles(e, domain.XRP, domain.Min15, 25, 1)
	if f.BBPosition == nil {
		t.Fatalf("expected BB position populated after 20 closes")
	}
	if *f.BBPosition < -0.5 || *f.BBPosition > 1.5 {
		t.Fatalf("BB position out of clamped range: %v", *f.BBPosition)
	}
}

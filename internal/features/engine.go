package features

import (
	"math"
	"sync"
	"time"

	"polybot/internal/domain"
	"polybot/internal/events"
	"polybot/internal/logging"
)

// Periods used by the default indicator set, per spec.md §4.3.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerK      = 2.0
	ATRPeriod       = 14
	ADXPeriod       = 14
	StochRSIPeriod  = 14
	CorrelationWindow = 20
)

// state is the incremental indicator state owned exclusively by the
// Feature Engine for one (asset, timeframe) key, per spec.md §3.
type state struct {
	rsi       *RSI
	macd      *MACD
	bollinger *Bollinger
	atr       *ATR
	adx       *ADX
	stochRSI  *StochRSI
	vwap      *VWAP

	closes       []float64 // last 2, for velocity/acceleration
	candleCount  int
	lastRSI      *float64

	microSpreadBps     *float64
	microBookImbalance *float64
	microDepthTop5     *float64
	microTradeIntensity *float64
	microPresent       bool

	closeHistory []float64 // last CorrelationWindow closes, for BTC-correlation
}

func newState() *state {
	return &state{
		rsi:       NewRSI(RSIPeriod),
		macd:      NewMACD(MACDFast, MACDSlow, MACDSignal),
		bollinger: NewBollinger(BollingerPeriod, BollingerK),
		atr:       NewATR(ATRPeriod),
		adx:       NewADX(ADXPeriod),
		stochRSI:  NewStochRSI(StochRSIPeriod),
		vwap:      &VWAP{},
	}
}

// CalibrationSummary is the read-only calibration context C7 exposes to
// C3, per spec.md §9 ("other components receive a read-only snapshot").
type CalibrationSummary struct {
	Status  domain.CalibrationStatus
	WinRate float64
}

// Engine implements C3. It owns all incremental indicator state and
// emits exactly one Features value per candle update it observes.
type Engine struct {
	mu     sync.Mutex
	states map[domain.Key]*state

	// CalibrationLookup and MarketCloseLookup are injected collaborators
	// rather than owned state -- the engine only reads through them.
	CalibrationLookup func(domain.Key) (CalibrationSummary, bool)
	MarketCloseLookup func(domain.Key) (int64, bool)

	out chan domain.Features
	bus *events.EventBus
	log *logging.Logger
}

// NewEngine constructs a Feature Engine.
func NewEngine(queueDepth int, bus *events.EventBus) *Engine {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Engine{
		states: make(map[domain.Key]*state),
		out:    make(chan domain.Features, queueDepth),
		bus:    bus,
		log:    logging.WithComponent("features"),
	}
}

// Out streams the emitted Features records.
func (e *Engine) Out() <-chan domain.Features { return e.out }

// OnTick folds microstructure data from a canonical tick into the
// per-key state, without emitting a Features record -- the engine emits
// exactly once per candle update, per spec.md §4.3.
func (e *Engine) OnTick(key domain.Key, spreadBps, bookImbalance, depthTop5Usdc, tradeIntensity float64, present bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stateFor(key)
	st.microPresent = present
	if present {
		st.microSpreadBps = &spreadBps
		st.microBookImbalance = &bookImbalance
		st.microDepthTop5 = &depthTop5Usdc
		st.microTradeIntensity = &tradeIntensity
	}
}

func (e *Engine) stateFor(key domain.Key) *state {
	st, ok := e.states[key]
	if !ok {
		st = newState()
		e.states[key] = st
	}
	return st
}

// OnCandle folds one candle update into the (asset, timeframe) indicator
// state and emits the resulting Features record.
func (e *Engine) OnCandle(c domain.Candle) {
	key := c.Key()

	e.mu.Lock()
	st := e.stateFor(key)
	st.candleCount++

	f := &domain.Features{
		Asset:       c.Asset,
		Timeframe:   c.Timeframe,
		ComputedTs:  time.Now().Unix(),
		CandleCount: st.candleCount,
	}

	if rsi, ok := st.rsi.Update(c.Close); ok {
		f.RSI = ptr(rsi)
		norm := (rsi - 50) / 50
		f.RSINorm = ptr(norm)
		st.lastRSI = ptr(rsi)
		if stoch, sok := st.stochRSI.Update(rsi); sok {
			f.StochRSI = ptr(stoch)
		}
	}

	if macd, ok := st.macd.Update(c.Close); ok {
		f.MACDLine = ptr(macd.Line)
		f.MACDSignal = ptr(macd.Signal)
		f.MACDHist = ptr(macd.Histogram)
		f.MACDSlope = ptr(macd.Slope)
	}

	if bb, ok := st.bollinger.Update(c.Close); ok {
		pos := clamp(bb.Position, -0.5, 1.5)
		f.BBPosition = ptr(pos)
		f.BBWidth = ptr(bb.Width)
		f.BBSqueeze = boolPtr(bb.Squeeze)
	}

	var atrVal float64
	var atrOk bool
	if atrVal, atrOk = st.atr.Update(c.High, c.Low, c.Close); atrOk && c.Close != 0 {
		f.VolatilityATRPct5m = ptr(atrVal / c.Close)
	}

	if adxRes, ok := st.adx.Update(c.High, c.Low, c.Close); ok {
		f.ADX = ptr(adxRes.ADX)
		f.DIPlus = ptr(adxRes.DIPlus)
		f.DIMinus = ptr(adxRes.DIMinus)
		regime := "ranging"
		if adxRes.ADX > 25 {
			regime = "trending"
		}
		f.Regime = strPtr(regime)
	}

	if vwap, ok := st.vwap.Update(c.OpenTs, c.Close, c.Volume); ok {
		f.VWAP = ptr(vwap)
	}

	st.closes = append(st.closes, c.Close)
	if len(st.closes) > 3 {
		st.closes = st.closes[len(st.closes)-3:]
	}
	if len(st.closes) >= 2 {
		v1 := st.closes[len(st.closes)-1] - st.closes[len(st.closes)-2]
		f.Velocity = ptr(v1)
		if len(st.closes) == 3 {
			v0 := st.closes[len(st.closes)-2] - st.closes[len(st.closes)-3]
			f.Acceleration = ptr(v1 - v0)
		}
	}

	st.closeHistory = append(st.closeHistory, c.Close)
	if len(st.closeHistory) > CorrelationWindow {
		st.closeHistory = st.closeHistory[len(st.closeHistory)-CorrelationWindow:]
	}

	f.MicrostructurePresent = st.microPresent
	if st.microPresent {
		f.SpreadBps = st.microSpreadBps
		f.BookImbalance = st.microBookImbalance
		f.DepthTop5Usdc = st.microDepthTop5
		f.TradeIntensity = st.microTradeIntensity
	}

	now := time.Unix(f.ComputedTs, 0).UTC()
	hourFrac := (float64(now.Hour()) + float64(now.Minute())/60) / 24 * 2 * math.Pi
	dayFrac := float64(now.Weekday()) / 7 * 2 * math.Pi
	f.HourSin, f.HourCos = ptr(math.Sin(hourFrac)), ptr(math.Cos(hourFrac))
	f.DaySin, f.DayCos = ptr(math.Sin(dayFrac)), ptr(math.Cos(dayFrac))

	calibLookup := e.CalibrationLookup
	closeLookup := e.MarketCloseLookup
	history := append([]float64(nil), st.closeHistory...)
	e.mu.Unlock()

	if closeLookup != nil {
		if closeTs, ok := closeLookup(key); ok {
			mins := float64(closeTs-f.ComputedTs) / 60
			f.MinutesToClose = ptr(mins)
		}
	}
	if calibLookup != nil {
		if summary, ok := calibLookup(key); ok {
			status := string(summary.Status)
			f.CalibrationStatus = &status
			f.CalibrationWinRate = ptr(summary.WinRate)
		}
	}
	if key.Asset != domain.BTC {
		if corr, ok := e.btcCorrelation(key.Timeframe, history); ok {
			f.BTCCorrelation = ptr(corr)
		}
	}

	if st.candleCount >= RSIPeriod+1+MACDSlow+MACDSignal && f.RSI == nil && f.MACDLine == nil {
		e.log.Warn("features computed but RSI/MACD are both None despite sufficient candle count",
			"asset", c.Asset, "timeframe", c.Timeframe, "candle_count", st.candleCount)
		if e.bus != nil {
			e.bus.PublishError("features", "RSI and MACD both missing with sufficient history", nil)
		}
	}

	e.emit(*f)
}

// btcCorrelation computes a Pearson correlation between history and the
// matching-timeframe BTC close series, guarding zero variance.
func (e *Engine) btcCorrelation(tf domain.Timeframe, history []float64) (float64, bool) {
	e.mu.Lock()
	btcState, ok := e.states[domain.Key{Asset: domain.BTC, Timeframe: tf}]
	var btcHistory []float64
	if ok {
		btcHistory = append([]float64(nil), btcState.closeHistory...)
	}
	e.mu.Unlock()
	if !ok {
		return 0, false
	}
	n := len(history)
	if len(btcHistory) < n {
		n = len(btcHistory)
	}
	if n < 3 {
		return 0, false
	}
	x := history[len(history)-n:]
	y := btcHistory[len(btcHistory)-n:]
	return pearson(x, y)
}

func pearson(x, y []float64) (float64, bool) {
	n := float64(len(x))
	if n == 0 {
		return 0, false
	}
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}

func (e *Engine) emit(f domain.Features) {
	select {
	case e.out <- f:
	default:
		e.log.Warn("features queue full, dropping oldest", "asset", f.Asset, "timeframe", f.Timeframe)
		select {
		case <-e.out:
		default:
		}
		select {
		case e.out <- f:
		default:
		}
	}
}

func ptr(v float64) *float64 { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

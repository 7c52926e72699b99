// Package features implements C3, the Feature Engine: incremental,
// numerically-stable indicator state per (asset, timeframe), and the
// engine that folds candle updates into a 50-dimensional Features record.
//
// Every indicator here keeps its own small accumulator instead of
// recomputing from history on every update, per spec.md §4.3 and §9 --
// Wilder RSI/ATR/ADX carry a running average, MACD carries three EMA
// accumulators, Bollinger and StochRSI carry bounded ring buffers. All
// arithmetic is float64; any divisor that could be zero is guarded to
// yield a missing (nil) value rather than NaN/Inf, per the numerical
// policy in spec.md §4.3.
package features

import "math"

// wilderAverage is the shared Wilder-smoothed running average used by
// RSI, ATR, ADX and DI+/DI-: avg = (avg*(n-1) + x) / n once seeded, seeded
// by a plain mean of the first `period` samples.
type wilderAverage struct {
	period      int
	value       float64
	seedSum     float64
	seedCount   int
	initialized bool
}

func newWilderAverage(period int) *wilderAverage {
	return &wilderAverage{period: period}
}

// update folds one new sample in and returns the current average, or
// false if not yet seeded (fewer than `period` samples seen).
func (w *wilderAverage) update(x float64) (float64, bool) {
	if !w.initialized {
		w.seedSum += x
		w.seedCount++
		if w.seedCount < w.period {
			return 0, false
		}
		w.value = w.seedSum / float64(w.period)
		w.initialized = true
		return w.value, true
	}
	w.value = (w.value*float64(w.period-1) + x) / float64(w.period)
	return w.value, true
}

// RSI is Wilder's Relative Strength Index, period 14 by default.
type RSI struct {
	period    int
	avgGain   *wilderAverage
	avgLoss   *wilderAverage
	prevClose float64
	haveClose bool
}

// NewRSI constructs a Wilder RSI accumulator.
func NewRSI(period int) *RSI {
	return &RSI{period: period, avgGain: newWilderAverage(period), avgLoss: newWilderAverage(period)}
}

// Update folds in the latest close and returns (rsi, ok). ok is false
// until period+1 closes have been observed, per spec.md §4.3/§8.
func (r *RSI) Update(close float64) (float64, bool) {
	if !r.haveClose {
		r.prevClose = close
		r.haveClose = true
		return 0, false
	}
	change := close - r.prevClose
	r.prevClose = close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	avgGain, gok := r.avgGain.update(gain)
	avgLoss, lok := r.avgLoss.update(loss)
	if !gok || !lok {
		return 0, false
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// EMA is a standard exponential moving average, seeded by a plain mean of
// its first `period` samples.
type EMA struct {
	period      int
	multiplier  float64
	value       float64
	seedSum     float64
	seedCount   int
	initialized bool
}

// NewEMA constructs an EMA accumulator.
func NewEMA(period int) *EMA {
	return &EMA{period: period, multiplier: 2.0 / float64(period+1)}
}

// Update folds in x and returns (ema, ok).
func (e *EMA) Update(x float64) (float64, bool) {
	if !e.initialized {
		e.seedSum += x
		e.seedCount++
		if e.seedCount < e.period {
			return 0, false
		}
		e.value = e.seedSum / float64(e.period)
		e.initialized = true
		return e.value, true
	}
	e.value = x*e.multiplier + e.value*(1-e.multiplier)
	return e.value, true
}

// MACDResult carries the line, signal and histogram for one update.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
	Slope     float64
}

// signalEMA seeds from its very first sample instead of a period-length
// SMA: the signal line only exists once the slow EMA has already paid
// its own warm-up cost, so re-paying a second full window before MACD
// ever produces a value would push first-output out past what spec.md's
// warm-up scenario expects. This mirrors how the teacher's own EMA seed
// (a plain mean of the first `period` closes) exists to avoid an
// unrepresentative single-sample start for price EMAs -- that concern
// doesn't apply to a line that already carries the slow EMA's history.
type signalEMA struct {
	multiplier  float64
	value       float64
	initialized bool
}

func newSignalEMA(period int) *signalEMA {
	return &signalEMA{multiplier: 2.0 / float64(period+1)}
}

func (s *signalEMA) update(x float64) float64 {
	if !s.initialized {
		s.value = x
		s.initialized = true
		return s.value
	}
	s.value = x*s.multiplier + s.value*(1-s.multiplier)
	return s.value
}

// MACD computes MACD(12,26,9) from EMA accumulators, with a trailing
// histogram value to derive the slope.
type MACD struct {
	fast, slow *EMA
	signal     *signalEMA
	prevHist   *float64
}

// NewMACD constructs the standard 12/26/9 MACD accumulator.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{fast: NewEMA(fastPeriod), slow: NewEMA(slowPeriod), signal: newSignalEMA(signalPeriod)}
}

// Update folds in a close and returns (result, ok).
func (m *MACD) Update(close float64) (MACDResult, bool) {
	fast, fok := m.fast.Update(close)
	slow, sok := m.slow.Update(close)
	if !fok || !sok {
		return MACDResult{}, false
	}
	line := fast - slow
	signal := m.signal.update(line)
	hist := line - signal
	slope := 0.0
	if m.prevHist != nil {
		slope = hist - *m.prevHist
	}
	prev := hist
	m.prevHist = &prev
	return MACDResult{Line: line, Signal: signal, Histogram: hist, Slope: slope}, true
}

// Bollinger computes SMA/stddev bands over a fixed window, tracking the
// rolling minimum width for squeeze detection.
type Bollinger struct {
	period   int
	k        float64
	window   []float64
	widths   []float64
}

// NewBollinger constructs a Bollinger Bands accumulator (period 20, k=2 by default).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{period: period, k: k}
}

// BollingerResult carries position, width and squeeze flag.
type BollingerResult struct {
	Upper, Middle, Lower float64
	Position             float64
	Width                float64
	Squeeze              bool
}

// Update folds in a close and returns (result, ok).
func (b *Bollinger) Update(close float64) (BollingerResult, bool) {
	b.window = append(b.window, close)
	if len(b.window) > b.period {
		b.window = b.window[len(b.window)-b.period:]
	}
	if len(b.window) < b.period {
		return BollingerResult{}, false
	}

	sum := 0.0
	for _, v := range b.window {
		sum += v
	}
	mean := sum / float64(b.period)

	variance := 0.0
	for _, v := range b.window {
		d := v - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(b.period))

	upper := mean + stddev*b.k
	lower := mean - stddev*b.k

	res := BollingerResult{Upper: upper, Middle: mean, Lower: lower}
	if upper != lower {
		res.Position = (close - lower) / (upper - lower)
	}
	if mean != 0 {
		res.Width = (upper - lower) / mean
	}

	b.widths = append(b.widths, res.Width)
	if len(b.widths) > b.period {
		b.widths = b.widths[len(b.widths)-b.period:]
	}
	minWidth := res.Width
	for _, w := range b.widths {
		if w < minWidth {
			minWidth = w
		}
	}
	res.Squeeze = res.Width <= minWidth*1.1

	return res, true
}

// ATR is Wilder's Average True Range.
type ATR struct {
	period    int
	avg       *wilderAverage
	prevClose float64
	haveClose bool
}

// NewATR constructs a Wilder ATR accumulator (period 14 by default).
func NewATR(period int) *ATR {
	return &ATR{period: period, avg: newWilderAverage(period)}
}

// Update folds in a candle's high/low/close and returns (atr, ok).
func (a *ATR) Update(high, low, close float64) (float64, bool) {
	if !a.haveClose {
		a.prevClose = close
		a.haveClose = true
		return 0, false
	}
	tr := trueRange(high, low, a.prevClose)
	a.prevClose = close
	return a.avg.update(tr)
}

func trueRange(high, low, prevClose float64) float64 {
	hl := high - low
	hc := math.Abs(high - prevClose)
	lc := math.Abs(low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ADX computes Wilder-smoothed ADX along with DI+/DI-.
type ADX struct {
	period        int
	avgTR, avgDMP, avgDMM *wilderAverage
	avgDX         *wilderAverage
	prevHigh, prevLow, prevClose float64
	haveCandle    bool
}

// NewADX constructs a Wilder ADX/DI accumulator (period 14 by default).
func NewADX(period int) *ADX {
	return &ADX{
		period: period,
		avgTR:  newWilderAverage(period),
		avgDMP: newWilderAverage(period),
		avgDMM: newWilderAverage(period),
		avgDX:  newWilderAverage(period),
	}
}

// ADXResult carries ADX and the directional indicators.
type ADXResult struct {
	ADX, DIPlus, DIMinus float64
}

// Update folds in a candle and returns (result, ok).
func (a *ADX) Update(high, low, close float64) (ADXResult, bool) {
	if !a.haveCandle {
		a.prevHigh, a.prevLow, a.prevClose = high, low, close
		a.haveCandle = true
		return ADXResult{}, false
	}

	upMove := high - a.prevHigh
	downMove := a.prevLow - low

	dmPlus, dmMinus := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		dmPlus = upMove
	}
	if downMove > upMove && downMove > 0 {
		dmMinus = downMove
	}

	tr := trueRange(high, low, a.prevClose)
	a.prevHigh, a.prevLow, a.prevClose = high, low, close

	atr, trOk := a.avgTR.update(tr)
	smDMP, pOk := a.avgDMP.update(dmPlus)
	smDMM, mOk := a.avgDMM.update(dmMinus)
	if !trOk || !pOk || !mOk || atr == 0 {
		return ADXResult{}, false
	}

	diPlus := 100 * smDMP / atr
	diMinus := 100 * smDMM / atr

	dx := 0.0
	if diPlus+diMinus != 0 {
		dx = 100 * math.Abs(diPlus-diMinus) / (diPlus + diMinus)
	}
	adx, adxOk := a.avgDX.update(dx)
	if !adxOk {
		return ADXResult{DIPlus: diPlus, DIMinus: diMinus}, false
	}
	return ADXResult{ADX: adx, DIPlus: diPlus, DIMinus: diMinus}, true
}

// StochRSI derives a 0-1 oscillator from a rolling window of RSI values.
type StochRSI struct {
	period int
	window []float64
}

// NewStochRSI constructs a StochRSI accumulator (period 14 by default).
func NewStochRSI(period int) *StochRSI {
	return &StochRSI{period: period}
}

// Update folds in the latest RSI value and returns (stochRSI, ok).
func (s *StochRSI) Update(rsi float64) (float64, bool) {
	s.window = append(s.window, rsi)
	if len(s.window) > s.period {
		s.window = s.window[len(s.window)-s.period:]
	}
	if len(s.window) < s.period {
		return 0, false
	}
	min, max := s.window[0], s.window[0]
	for _, v := range s.window {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return 0, false
	}
	return (rsi - min) / (max - min), true
}

// VWAP accumulates a session volume-weighted average price, resetting at
// UTC midnight.
type VWAP struct {
	dayStartSecs  int64
	cumPV, cumVol float64
}

// Update folds in a trade/candle price+volume at epoch-seconds ts and
// returns (vwap, ok). ok is false only if cumulative volume is zero.
func (v *VWAP) Update(ts int64, price, volume float64) (float64, bool) {
	day := (ts / 86400) * 86400
	if day != v.dayStartSecs {
		v.dayStartSecs = day
		v.cumPV, v.cumVol = 0, 0
	}
	v.cumPV += price * volume
	v.cumVol += volume
	if v.cumVol == 0 {
		return 0, false
	}
	return v.cumPV / v.cumVol, true
}

package domain

// Features is the fixed-arity feature vector computed per (asset,
// timeframe) update. Every field is a pointer so that "missing" is
// representable without a sentinel float -- the feature engine must be
// able to emit this record even when every technical indicator is nil.
//
// Order matters: FeatureNames (below) is the canonical ordering consumed
// by the predictor ensemble and by the z-score trigger detector, and it
// must stay in lockstep with the slot indices Vector() assigns.
type Features struct {
	Asset       Asset
	Timeframe   Timeframe
	ComputedTs  int64
	CandleCount int

	// Technicals
	RSI          *float64
	RSINorm      *float64 // (RSI-50)/50
	MACDLine     *float64
	MACDSignal   *float64
	MACDHist     *float64
	MACDSlope    *float64
	BBPosition   *float64
	BBWidth      *float64
	BBSqueeze    *bool
	ADX          *float64
	DIPlus       *float64
	DIMinus      *float64

	// Momentum
	Velocity     *float64
	Acceleration *float64
	StochRSI     *float64
	VWAP         *float64

	// Microstructure
	MicrostructurePresent bool
	SpreadBps             *float64
	BookImbalance         *float64
	DepthTop5Usdc         *float64
	TradeIntensity        *float64

	// Temporal
	MinutesToClose *float64
	HourSin        *float64
	HourCos        *float64
	DaySin         *float64
	DayCos         *float64

	// Context
	Regime             *string
	VolatilityATRPct5m *float64
	BTCCorrelation     *float64

	// Calibrator summary (read-only snapshot from C7)
	CalibrationStatus  *string
	CalibrationWinRate *float64
}

// FeatureNames is the canonical, stable ordering used by the ensemble's
// 50-d vector and by features_triggered reporting. Fewer than 50 of these
// are populated for most markets; the remainder hold the reserved tail
// used by submodels that expect a fixed arity.
var FeatureNames = []string{
	"rsi", "rsi_norm", "macd_line", "macd_signal", "macd_hist", "macd_slope",
	"bb_position", "bb_width", "bb_squeeze", "adx", "di_plus", "di_minus",
	"velocity", "acceleration", "stoch_rsi", "vwap",
	"spread_bps", "book_imbalance", "depth_top5_usdc", "trade_intensity",
	"minutes_to_close", "hour_sin", "hour_cos", "day_sin", "day_cos",
	"volatility_atr_pct_5m", "btc_correlation", "calibration_win_rate",
}

const FeatureVectorSize = 50

// Vector flattens the populated subset of Features into a fixed-size
// 50-d array using 0.0 for missing entries, plus a parallel boolean mask
// marking which entries were actually observed. The ordering matches
// FeatureNames for the first len(FeatureNames) slots; the remaining slots
// are reserved and always absent, since the spec defines 50 dimensions
// but only this many named indicators are specified.
func (f *Features) Vector() (vec [FeatureVectorSize]float64, mask [FeatureVectorSize]bool) {
	set := func(i int, p *float64) {
		if p != nil {
			vec[i] = *p
			mask[i] = true
		}
	}
	set(0, f.RSI)
	set(1, f.RSINorm)
	set(2, f.MACDLine)
	set(3, f.MACDSignal)
	set(4, f.MACDHist)
	set(5, f.MACDSlope)
	set(6, f.BBPosition)
	set(7, f.BBWidth)
	if f.BBSqueeze != nil {
		if *f.BBSqueeze {
			vec[8] = 1
		}
		mask[8] = true
	}
	set(9, f.ADX)
	set(10, f.DIPlus)
	set(11, f.DIMinus)
	set(12, f.Velocity)
	set(13, f.Acceleration)
	set(14, f.StochRSI)
	set(15, f.VWAP)
	set(16, f.SpreadBps)
	set(17, f.BookImbalance)
	set(18, f.DepthTop5Usdc)
	set(19, f.TradeIntensity)
	set(20, f.MinutesToClose)
	set(21, f.HourSin)
	set(22, f.HourCos)
	set(23, f.DaySin)
	set(24, f.DayCos)
	set(25, f.VolatilityATRPct5m)
	set(26, f.BTCCorrelation)
	set(27, f.CalibrationWinRate)
	return vec, mask
}

// ReadyCount returns the number of non-missing entries in the named
// portion of the feature vector, used by the ensemble's
// min_ready_features gate.
func (f *Features) ReadyCount() int {
	_, mask := f.Vector()
	n := 0
	for _, ok := range mask {
		if ok {
			n++
		}
	}
	return n
}

package positions

// ConfidenceCurve implements spec.md §4.6's piecewise-linear sizing
// curve: confidence 0.55 -> 0.5x, 0.65 -> 0.75x, 0.80 -> 1.0x, clamped
// at the ends.
func ConfidenceCurve(confidence float64) float64 {
	switch {
	case confidence <= 0.55:
		return 0.5
	case confidence <= 0.65:
		return lerp(confidence, 0.55, 0.65, 0.5, 0.75)
	case confidence <= 0.80:
		return lerp(confidence, 0.65, 0.80, 0.75, 1.0)
	default:
		return 1.0
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

// SizeUsdc returns the position size for a given base size and
// confidence, clamped to perTradeCap.
func SizeUsdc(baseSize, confidence, perTradeCap float64) float64 {
	size := baseSize * ConfidenceCurve(confidence)
	if size > perTradeCap {
		size = perTradeCap
	}
	return size
}

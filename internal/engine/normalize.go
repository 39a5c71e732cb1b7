package engine

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SubScore converts a lower-is-better metric value into a [0,1] sub-score
// against its threshold: 1 at zero, 0 at or beyond the threshold. A missing
// value (negative) scores 0.
func SubScore(value, threshold float64) float64 {
	if value < 0 || threshold <= 0 {
		return 0
	}
	return Clamp01(1 - value/threshold)
}

// RateScore passes a success-rate style ratio through as-is, bounded to [0,1].
func RateScore(rate float64) float64 {
	return Clamp01(rate)
}

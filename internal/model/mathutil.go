package model

import (
	"math"
	"time"
)

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Ratio returns num/den, or def when den is zero.
func Ratio(num, den int, def float64) float64 {
	if den == 0 {
		return def
	}
	return float64(num) / float64(den)
}

// DaysBetween returns the fractional number of days from a to b.
func DaysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}

// WholeDays returns the number of whole days from a to b (floored, never
// negative).
func WholeDays(a, b time.Time) int {
	d := int(math.Floor(DaysBetween(a, b)))
	if d < 0 {
		return 0
	}
	return d
}

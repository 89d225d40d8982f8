package helpers

import "math"

// FloatToInt64 truncates f to an int64. Values that cannot be represented
// (NaN, infinities, anything outside the int64 range) report false.
func FloatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

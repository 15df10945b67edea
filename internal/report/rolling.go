package report

import "math"

// RollingMean returns the centred moving average of values over window
// samples. A window of even width sits one sample to the left of centre.
// Positions whose window is incomplete or contains NaN are NaN.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		window = 1
	}
	ahead := (window - 1) / 2
	for i := range values {
		hi := i + ahead
		lo := hi - window + 1
		if lo < 0 || hi >= len(values) {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[lo : hi+1] {
			sum += v
		}
		out[i] = sum / float64(window)
	}
	return out
}

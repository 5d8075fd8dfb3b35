package indicator

import "math"

// Bollinger returns the Bollinger Bands over the trailing `period` prices:
// simple moving average ± stdDev × population standard deviation.
// Degenerates to a flat band at the latest price when the series is too short.
func Bollinger(prices []float64, period int, stdDev float64) (upper, middle, lower float64) {
	n := len(prices)
	if n == 0 {
		return 0, 0, 0
	}
	if period <= 0 || n < period {
		last := prices[n-1]
		return last, last, last
	}

	window := prices[n-period:]
	var sum float64
	for _, p := range window {
		sum += p
	}
	mean := sum / float64(period)

	var variance float64
	for _, p := range window {
		d := p - mean
		variance += d * d
	}
	variance /= float64(period)
	sd := math.Sqrt(variance)

	return mean + stdDev*sd, mean, mean - stdDev*sd
}

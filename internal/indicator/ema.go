package indicator

// EMA returns the Exponential Moving Average of the series.
// Seeded with the simple average of the first `period` values, then the
// standard recurrence ema += (price - ema) * 2/(period+1) through the rest.
// Returns the latest price unchanged when fewer than `period` points exist.
func EMA(prices []float64, period int) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	if period <= 0 || n < period {
		return prices[n-1]
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < n; i++ {
		ema = (prices[i]-ema)*k + ema
	}
	return ema
}

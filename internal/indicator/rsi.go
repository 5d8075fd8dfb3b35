package indicator

// RSI returns the Relative Strength Index over the trailing `period` price
// changes, using Wilder's smoothing after an SMA seed.
// Returns 50 (neutral) when fewer than period+1 points are available — a
// defined degenerate case, not an error.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50
	}

	// SMA seed over the first `period` deltas
	var gains, losses float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder's smoothing: avg = (prevAvg*(period-1) + delta) / period
	p := float64(period)
	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			avgGain = (avgGain*(p-1) + d) / p
			avgLoss = (avgLoss * (p - 1)) / p
		} else {
			avgGain = (avgGain * (p - 1)) / p
			avgLoss = (avgLoss*(p-1) - d) / p
		}
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

package indicator

// MACD returns the MACD line (EMA12 − EMA26), signal line, and histogram.
//
// The signal line is an EMA(9) over a short synthetic series: the MACD-line
// values of the last 9 truncated series followed by the current value. This is
// an intentional approximation of the classic EMA-of-the-full-MACD-series
// signal line, kept as-is because "correcting" it would change every signal
// the scorer emits. Do not silently fix it.
func MACD(prices []float64) (line, signal, histogram float64) {
	n := len(prices)
	if n == 0 {
		return 0, 0, 0
	}

	line = EMA(prices, 12) - EMA(prices, 26)

	synthetic := make([]float64, 0, 10)
	start := n - 9
	if start < 1 {
		start = 1
	}
	for i := start; i < n; i++ {
		synthetic = append(synthetic, EMA(prices[:i], 12)-EMA(prices[:i], 26))
	}
	synthetic = append(synthetic, line)

	signal = EMA(synthetic, 9)
	histogram = line - signal
	return line, signal, histogram
}

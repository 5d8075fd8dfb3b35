package indicator

import (
	"math"

	"algoedge/internal/model"
)

// ATR returns the Average True Range over the trailing `period` true ranges.
// True range is Wilder's max(high−low, |high−prevClose|, |low−prevClose|);
// the average is a simple mean, not Wilder-smoothed.
// Returns 0 when fewer than period+1 bars are available.
func ATR(bars []model.PriceBar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}

	var sum float64
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		b := bars[i]
		prevClose := bars[i-1].Close
		tr := math.Max(b.High-b.Low,
			math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}

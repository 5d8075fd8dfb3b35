// Package indicator implements the pure technical-analysis transforms used by
// the signal scorer and the position close analyzer.
//
// Every function is a deterministic function of its inputs — no state, no I/O.
// Each has a defined degenerate result when the series is shorter than the
// lookback, so callers never need a length check before computing. Series are
// assumed to be in ascending chronological order.
package indicator

import "algoedge/internal/model"

// Compute builds the full IndicatorSet from one bar sequence.
// The set is what gets embedded in a Signal for auditability.
func Compute(bars []model.PriceBar) model.IndicatorSet {
	closes := model.Closes(bars)
	upper, middle, lower := Bollinger(closes, 20, 2)
	line, signal, hist := MACD(closes)

	return model.IndicatorSet{
		RSI:    RSI(closes, 14),
		MACD:   model.MACDValue{Value: line, Signal: signal, Histogram: hist},
		EMA20:  EMA(closes, 20),
		EMA50:  EMA(closes, 50),
		EMA200: EMA(closes, 200),
		ATR:    ATR(bars, 14),
		Bollinger: model.BollingerValue{
			Upper:  upper,
			Middle: middle,
			Lower:  lower,
		},
	}
}

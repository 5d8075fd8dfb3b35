package model

import "time"

// Direction is the side of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// MACDValue is a MACD reading: line, signal line, and histogram.
type MACDValue struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerValue is one Bollinger Bands reading.
type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSet is a snapshot of all indicator values computed from one bar
// sequence at one point in time. It is embedded in every Signal so a signal
// can be audited and reproduced from the same inputs.
type IndicatorSet struct {
	RSI       float64        `json:"rsi"`
	MACD      MACDValue      `json:"macd"`
	EMA20     float64        `json:"ema20"`
	EMA50     float64        `json:"ema50"`
	EMA200    float64        `json:"ema200"`
	ATR       float64        `json:"atr"`
	Bollinger BollingerValue `json:"bollinger"`
}

// Signal is a scored trading opportunity. Immutable once created.
type Signal struct {
	Symbol         string       `json:"symbol"`
	Direction      Direction    `json:"direction"`
	Confidence     int          `json:"confidence"` // 0–100
	Entry          float64      `json:"entry"`
	StopLoss       float64      `json:"stop_loss"`
	TakeProfits    []float64    `json:"take_profits"`
	Rationale      string       `json:"rationale"`
	Priority       int          `json:"priority"`        // universe tier weight
	ExpectedProfit float64      `json:"expected_profit"` // per-lot estimate to first TP
	RiskReward     float64      `json:"risk_reward"`
	Forced         bool         `json:"forced"` // true for the relaxed fallback path
	Indicators     IndicatorSet `json:"indicators"`
	CreatedAt      time.Time    `json:"created_at"`
}

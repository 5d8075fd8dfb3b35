package model

import "time"

// Trade record status values.
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// TradeRecord is the ledger's persisted view of an executed trade.
// At most one record with status "open" exists per (account, symbol).
type TradeRecord struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Volume     float64   `json:"volume"`
	OpenPrice  float64   `json:"open_price"`
	OpenTime   time.Time `json:"open_time"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Confidence int       `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Status     string    `json:"status"`
	ClosePrice float64   `json:"close_price"`
	CloseTime  time.Time `json:"close_time"`
	Profit     float64   `json:"profit"`
}

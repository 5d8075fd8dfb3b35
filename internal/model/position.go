package model

import "time"

// OpenPosition is a read-only snapshot of a live position at the venue.
// The venue owns the authoritative state; the engine never mutates a
// position directly, only through gateway close/partial-close/modify calls.
type OpenPosition struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"` // lots
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	StopLoss     float64   `json:"stop_loss"`   // 0 = none
	TakeProfit   float64   `json:"take_profit"` // 0 = none
	Profit       float64   `json:"profit"`      // unrealized, account currency
	OpenTime     time.Time `json:"open_time"`
}

// Favorable returns how far price has moved in the position's favor,
// in price units (negative when under water).
func (p *OpenPosition) Favorable() float64 {
	if p.Direction == Long {
		return p.CurrentPrice - p.OpenPrice
	}
	return p.OpenPrice - p.CurrentPrice
}

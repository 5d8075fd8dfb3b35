package mt5bridge

// Wire DTOs for the bridge REST API. Field names follow the bridge's JSON,
// not the engine's domain model; conversion happens in the broker adapter.

// AccountInfo is the account snapshot returned by the bridge.
type AccountInfo struct {
	Login      string  `json:"login"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// Candle is one OHLCV bar. Time is a Unix timestamp in seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Position is a live position at the venue.
type Position struct {
	Ticket       string  `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // "buy" or "sell"
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
	Profit       float64 `json:"profit"`
	Time         int64   `json:"time"` // open time, Unix seconds
}

// OrderRequest opens a market order.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"` // "buy" or "sell"
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

// OrderResult is the bridge's acknowledgement of an order.
type OrderResult struct {
	Ticket string  `json:"ticket"`
	Price  float64 `json:"price"`
}

// Deal is one entry from the closed-deal history.
type Deal struct {
	Ticket     string  `json:"ticket"`
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	Profit     float64 `json:"profit"`
	Time       int64   `json:"time"` // Unix seconds
}

// Quote is one streamed price update.
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"` // Unix milliseconds
}

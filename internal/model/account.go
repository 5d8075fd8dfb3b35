package model

// AccountState is the venue's view of the account, read once per cycle.
type AccountState struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
}

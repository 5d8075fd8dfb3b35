package engine

import (
	"context"
	"time"

	"algoedge/internal/model"
)

// Gateway is the venue-side boundary: everything the engine needs from the
// broker bridge. Implementations are expected to be safe for sequential use
// within a cycle; the engine never calls the gateway concurrently.
type Gateway interface {
	// GetAccountState returns the current account snapshot. A cycle cannot
	// run without it; an error here aborts the cycle.
	GetAccountState(ctx context.Context) (*model.AccountState, error)

	// GetPriceBars returns up to count most-recent bars for the symbol at
	// the given timeframe, oldest first.
	GetPriceBars(ctx context.Context, symbol, timeframe string, count int) ([]model.PriceBar, error)

	// GetOpenPositions returns all live positions on the account.
	GetOpenPositions(ctx context.Context) ([]model.OpenPosition, error)

	// PlaceTrade opens a market order for the signal at the given volume and
	// returns the venue position ID. Stop and target come from the signal.
	PlaceTrade(ctx context.Context, sig *model.Signal, volume float64) (string, error)

	// ClosePosition closes the full remaining volume of a position.
	ClosePosition(ctx context.Context, positionID string) error

	// PartialClose closes the given percentage of a position's volume.
	PartialClose(ctx context.Context, positionID string, percent float64) error

	// ModifyPosition replaces the stop-loss and take-profit of a position.
	// A zero value leaves that level unchanged.
	ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error

	// GetTradeHistory returns closed deals between from and to, used to
	// reconcile the ledger after downtime.
	GetTradeHistory(ctx context.Context, from, to time.Time) ([]model.TradeRecord, error)
}

// Ledger is the engine's durable record of its own actions. The venue stays
// authoritative for position state; the ledger exists for audit and for
// reconciliation after restarts.
type Ledger interface {
	CreateTradeRecord(ctx context.Context, rec *model.TradeRecord) error
	CloseTradeRecord(ctx context.Context, positionID string, closePrice, profit float64, closedAt time.Time) error
	ReduceTradeVolume(ctx context.Context, positionID string, newVolume float64) error
	UpdateStop(ctx context.Context, positionID string, stop float64) error
	OpenTradeRecords(ctx context.Context) ([]model.TradeRecord, error)
	AppendAudit(ctx context.Context, action, positionID, symbol, detail string) error
}

package engine

import (
	"context"
	"fmt"
	"time"
)

// Reconcile aligns the ledger with the venue after downtime. Any trade the
// ledger still records as open but the venue no longer holds was closed
// while the engine was away; the closing deal is looked up in the venue's
// trade history so the record carries the real close price and profit.
//
// Run once at startup, before the first cycle.
func (e *Engine) Reconcile(ctx context.Context) error {
	positions, err := e.gw.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list open positions: %w", err)
	}
	live := make(map[string]bool, len(positions))
	for _, p := range positions {
		live[p.ID] = true
	}

	open, err := e.ledger.OpenTradeRecords(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: read ledger: %w", err)
	}

	oldest := time.Now().UTC()
	var stale []string
	staleIdx := make(map[string]int)
	for i, rec := range open {
		if live[rec.ID] {
			continue
		}
		stale = append(stale, rec.ID)
		staleIdx[rec.ID] = i
		if rec.OpenTime.Before(oldest) {
			oldest = rec.OpenTime
		}
	}
	if len(stale) == 0 {
		return nil
	}
	e.logger.Printf("reconcile: %d ledger trades no longer open at venue", len(stale))

	history, err := e.gw.GetTradeHistory(ctx, oldest, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reconcile: fetch trade history: %w", err)
	}
	deals := make(map[string]int, len(history))
	for i, h := range history {
		deals[h.ID] = i
	}

	now := time.Now().UTC()
	for _, id := range stale {
		rec := open[staleIdx[id]]
		closePrice, profit, closedAt := 0.0, 0.0, now
		detail := "closed while engine offline, no matching deal in history"
		if i, ok := deals[id]; ok {
			h := history[i]
			closePrice, profit = h.ClosePrice, h.Profit
			if !h.CloseTime.IsZero() {
				closedAt = h.CloseTime
			}
			detail = fmt.Sprintf("closed while engine offline at %.5f, profit %.2f", closePrice, profit)
		}
		if err := e.ledger.CloseTradeRecord(ctx, id, closePrice, profit, closedAt); err != nil {
			return fmt.Errorf("reconcile: close ledger record %s: %w", id, err)
		}
		e.audit(ctx, "reconcile", id, rec.Symbol, detail)
	}
	return nil
}

// Package broker adapts the MT5 bridge client to the engine's Gateway
// boundary: wire DTOs become domain types, every call runs through a
// circuit breaker, and failures carry typed sentinels.
package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"algoedge/internal/metrics"
	"algoedge/internal/model"
	"algoedge/pkg/mt5bridge"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second

	// MT5 truncates order comments around this length
	maxCommentLen = 31
)

// Adapter implements engine.Gateway over a bridge client.
type Adapter struct {
	client  *mt5bridge.Client
	breaker *CircuitBreaker
	met     *metrics.Metrics

	mu      sync.Mutex
	volumes map[string]float64 // ticket -> volume, from the last position list
}

// NewAdapter wraps a bridge client. met may be nil.
func NewAdapter(client *mt5bridge.Client, met *metrics.Metrics) *Adapter {
	a := &Adapter{
		client:  client,
		breaker: NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout),
		met:     met,
		volumes: make(map[string]float64),
	}
	if met != nil {
		a.breaker.OnStateChange = func(from, to State) {
			met.BreakerState.Set(float64(to))
			if to == StateOpen {
				met.BreakerTrips.Inc()
			}
		}
	}
	return a
}

// call runs fn through the breaker and records latency per method.
func (a *Adapter) call(method string, fn func() error) error {
	start := time.Now()
	err := a.breaker.Execute(fn)
	if a.met != nil {
		a.met.GatewayCallDur.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err != nil {
			a.met.GatewayErrors.WithLabelValues(method).Inc()
		}
	}
	return err
}

func (a *Adapter) GetAccountState(ctx context.Context) (*model.AccountState, error) {
	var info *mt5bridge.AccountInfo
	err := a.call("account_info", func() error {
		var e error
		info, e = a.client.AccountInfo(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	return &model.AccountState{
		Balance:    info.Balance,
		Equity:     info.Equity,
		Margin:     info.Margin,
		FreeMargin: info.FreeMargin,
	}, nil
}

func (a *Adapter) GetPriceBars(ctx context.Context, symbol, timeframe string, count int) ([]model.PriceBar, error) {
	var candles []mt5bridge.Candle
	err := a.call("candles", func() error {
		var e error
		candles, e = a.client.Candles(ctx, symbol, timeframe, count)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", symbol, err)
	}

	bars := make([]model.PriceBar, len(candles))
	for i, c := range candles {
		bars[i] = model.PriceBar{
			TS:     time.Unix(c.Time, 0).UTC(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
	}
	return bars, nil
}

func (a *Adapter) GetOpenPositions(ctx context.Context) ([]model.OpenPosition, error) {
	var raw []mt5bridge.Position
	err := a.call("positions", func() error {
		var e error
		raw, e = a.client.Positions(ctx)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}

	a.mu.Lock()
	a.volumes = make(map[string]float64, len(raw))
	positions := make([]model.OpenPosition, len(raw))
	for i, p := range raw {
		a.volumes[p.Ticket] = p.Volume
		positions[i] = model.OpenPosition{
			ID:           p.Ticket,
			Symbol:       p.Symbol,
			Direction:    direction(p.Type),
			Volume:       p.Volume,
			OpenPrice:    p.PriceOpen,
			CurrentPrice: p.PriceCurrent,
			StopLoss:     p.StopLoss,
			TakeProfit:   p.TakeProfit,
			Profit:       p.Profit,
			OpenTime:     time.Unix(p.Time, 0).UTC(),
		}
	}
	a.mu.Unlock()
	return positions, nil
}

func (a *Adapter) PlaceTrade(ctx context.Context, sig *model.Signal, volume float64) (string, error) {
	req := mt5bridge.OrderRequest{
		Symbol:   sig.Symbol,
		Type:     orderType(sig.Direction),
		Volume:   volume,
		StopLoss: sig.StopLoss,
		Comment:  comment(sig),
	}
	if len(sig.TakeProfits) > 0 {
		req.TakeProfit = sig.TakeProfits[0]
	}

	var res *mt5bridge.OrderResult
	err := a.call("order_open", func() error {
		var e error
		res, e = a.client.OpenOrder(ctx, req)
		return e
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %v", ErrOrderRejected, sig.Symbol, sig.Direction, err)
	}
	return res.Ticket, nil
}

func (a *Adapter) ClosePosition(ctx context.Context, positionID string) error {
	err := a.call("position_close", func() error {
		return a.client.ClosePosition(ctx, positionID)
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", positionID, err)
	}
	return nil
}

// PartialClose converts the engine's percentage into lots using the volume
// seen on the last position list. The bridge API takes absolute volume.
func (a *Adapter) PartialClose(ctx context.Context, positionID string, percent float64) error {
	a.mu.Lock()
	total, ok := a.volumes[positionID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("partial close %s: %w", positionID, ErrPositionNotFound)
	}

	volume := math.Round(total*percent) / 100 // lots, 2 decimals
	if volume <= 0 {
		return fmt.Errorf("partial close %s: volume %.2f too small", positionID, volume)
	}

	err := a.call("position_close_partial", func() error {
		return a.client.ClosePartial(ctx, positionID, volume)
	})
	if err != nil {
		return fmt.Errorf("partial close %s: %w", positionID, err)
	}
	return nil
}

func (a *Adapter) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	err := a.call("position_modify", func() error {
		return a.client.ModifyPosition(ctx, positionID, stopLoss, takeProfit)
	})
	if err != nil {
		return fmt.Errorf("modify %s: %w", positionID, err)
	}
	return nil
}

func (a *Adapter) GetTradeHistory(ctx context.Context, from, to time.Time) ([]model.TradeRecord, error) {
	var deals []mt5bridge.Deal
	err := a.call("history_deals", func() error {
		var e error
		deals, e = a.client.Deals(ctx, from, to)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("trade history: %w", err)
	}

	recs := make([]model.TradeRecord, len(deals))
	for i, d := range deals {
		id := d.PositionID
		if id == "" {
			id = d.Ticket
		}
		recs[i] = model.TradeRecord{
			ID:         id,
			Symbol:     d.Symbol,
			Direction:  direction(d.Type),
			Volume:     d.Volume,
			ClosePrice: d.Price,
			CloseTime:  time.Unix(d.Time, 0).UTC(),
			Profit:     d.Profit,
			Status:     model.TradeClosed,
		}
	}
	return recs, nil
}

func direction(orderType string) model.Direction {
	if strings.EqualFold(orderType, "sell") {
		return model.Short
	}
	return model.Long
}

func orderType(d model.Direction) string {
	if d == model.Short {
		return "sell"
	}
	return "buy"
}

func comment(sig *model.Signal) string {
	c := fmt.Sprintf("c%d %s", sig.Confidence, sig.Rationale)
	if sig.Forced {
		c = "forced " + c
	}
	if len(c) > maxCommentLen {
		c = c[:maxCommentLen]
	}
	return c
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"algoedge/internal/model"
	"algoedge/internal/universe"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// --- fakes ---------------------------------------------------------------

type placedOrder struct {
	symbol string
	dir    model.Direction
	volume float64
	forced bool
}

type partialCall struct {
	id      string
	percent float64
}

type modifyCall struct {
	id   string
	stop float64
	tp   float64
}

type fakeGateway struct {
	account      *model.AccountState
	accountErr   error
	positions    []model.OpenPosition
	positionsErr error
	bars         map[string][]model.PriceBar
	barsErr      map[string]error
	placeErr     map[string]error
	history      []model.TradeRecord

	placed   []placedOrder
	closed   []string
	partials []partialCall
	modified []modifyCall
}

func (g *fakeGateway) GetAccountState(ctx context.Context) (*model.AccountState, error) {
	if g.accountErr != nil {
		return nil, g.accountErr
	}
	return g.account, nil
}

func (g *fakeGateway) GetPriceBars(ctx context.Context, symbol, timeframe string, count int) ([]model.PriceBar, error) {
	if err := g.barsErr[symbol]; err != nil {
		return nil, err
	}
	return g.bars[symbol], nil
}

func (g *fakeGateway) GetOpenPositions(ctx context.Context) ([]model.OpenPosition, error) {
	if g.positionsErr != nil {
		return nil, g.positionsErr
	}
	return g.positions, nil
}

func (g *fakeGateway) PlaceTrade(ctx context.Context, sig *model.Signal, volume float64) (string, error) {
	if err := g.placeErr[sig.Symbol]; err != nil {
		return "", err
	}
	g.placed = append(g.placed, placedOrder{sig.Symbol, sig.Direction, volume, sig.Forced})
	return fmt.Sprintf("t%d", len(g.placed)), nil
}

func (g *fakeGateway) ClosePosition(ctx context.Context, positionID string) error {
	g.closed = append(g.closed, positionID)
	return nil
}

func (g *fakeGateway) PartialClose(ctx context.Context, positionID string, percent float64) error {
	g.partials = append(g.partials, partialCall{positionID, percent})
	return nil
}

func (g *fakeGateway) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit float64) error {
	g.modified = append(g.modified, modifyCall{positionID, stopLoss, takeProfit})
	return nil
}

func (g *fakeGateway) GetTradeHistory(ctx context.Context, from, to time.Time) ([]model.TradeRecord, error) {
	return g.history, nil
}

type ledgerClose struct {
	price  float64
	profit float64
	at     time.Time
}

type fakeLedger struct {
	created []model.TradeRecord
	closes  map[string]ledgerClose
	reduced map[string]float64
	stops   map[string]float64
	open    []model.TradeRecord
	audits  []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		closes:  make(map[string]ledgerClose),
		reduced: make(map[string]float64),
		stops:   make(map[string]float64),
	}
}

func (l *fakeLedger) CreateTradeRecord(ctx context.Context, rec *model.TradeRecord) error {
	l.created = append(l.created, *rec)
	return nil
}

func (l *fakeLedger) CloseTradeRecord(ctx context.Context, positionID string, closePrice, profit float64, closedAt time.Time) error {
	l.closes[positionID] = ledgerClose{closePrice, profit, closedAt}
	return nil
}

func (l *fakeLedger) ReduceTradeVolume(ctx context.Context, positionID string, newVolume float64) error {
	l.reduced[positionID] = newVolume
	return nil
}

func (l *fakeLedger) UpdateStop(ctx context.Context, positionID string, stop float64) error {
	l.stops[positionID] = stop
	return nil
}

func (l *fakeLedger) OpenTradeRecords(ctx context.Context) ([]model.TradeRecord, error) {
	return l.open, nil
}

func (l *fakeLedger) AppendAudit(ctx context.Context, action, positionID, symbol, detail string) error {
	l.audits = append(l.audits, action+":"+positionID)
	return nil
}

// --- fixtures ------------------------------------------------------------

// signalBars builds an oversold pullback inside an uptrend that scores
// exactly at the confidence floor on the long side. scale stretches the
// price axis, which stretches ATR and thus expected profit proportionally.
func signalBars(scale float64) []model.PriceBar {
	bars := make([]model.PriceBar, 0, 200)
	price := 100.0
	add := func(i int, c, vol float64) {
		bars = append(bars, model.PriceBar{
			TS: t0.Add(time.Duration(i) * time.Minute), Open: c * scale,
			High: (c + 0.5) * scale, Low: (c - 0.5) * scale, Close: c * scale, Volume: vol,
		})
	}
	for i := 0; i < 190; i++ {
		add(i, price, 100)
		price++
	}
	for i := 190; i < 200; i++ {
		price -= 3
		vol := 100.0
		if i == 199 {
			vol = 1000
		}
		add(i, price, vol)
	}
	return bars
}

// flatSeries never scores: every indicator is degenerate and neither side
// clears the floor, but it is long enough for the forced fallback.
func flatSeries(n int, close float64) []model.PriceBar {
	bars := make([]model.PriceBar, n)
	for i := range bars {
		bars[i] = model.PriceBar{
			TS: t0.Add(time.Duration(i) * time.Minute), Open: close,
			High: close + 0.5, Low: close - 0.5, Close: close, Volume: 100,
		}
	}
	return bars
}

func mustUniverse(t *testing.T, spec string) *universe.Universe {
	t.Helper()
	u, err := universe.Parse(spec)
	if err != nil {
		t.Fatalf("parse universe: %v", err)
	}
	return u
}

func newTestEngine(gw *fakeGateway, ld *fakeLedger, uni *universe.Universe) *Engine {
	return New(gw, ld, uni, Config{
		AccountID:   "acct-1",
		RiskPercent: 1.0,
		Timeframe:   "1h",
	}, nil)
}

// --- cycle tests ---------------------------------------------------------

func TestRunCycle_FatalWhenAccountUnavailable(t *testing.T) {
	gw := &fakeGateway{accountErr: errors.New("bridge timeout")}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD"))

	rep, err := e.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected an error when account state is unavailable")
	}
	if rep != nil {
		t.Errorf("expected nil report, got %+v", rep)
	}
	if len(gw.placed) != 0 {
		t.Errorf("no trades may be placed without account state")
	}
}

func TestRunCycle_OpensWithinSlotBudget(t *testing.T) {
	// $800 balance → 1 slot. Two instruments both score; only the first
	// ranked one may open.
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 800},
		bars: map[string][]model.PriceBar{
			"EURUSD": signalBars(1),
			"GBPUSD": signalBars(1),
		},
	}
	ld := newFakeLedger()
	e := newTestEngine(gw, ld, mustUniverse(t, "3:EURUSD,GBPUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Signals) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(rep.Signals))
	}
	if len(gw.placed) != 1 {
		t.Fatalf("expected exactly 1 trade within the slot budget, got %d", len(gw.placed))
	}
	if len(ld.created) != 1 || ld.created[0].Status != model.TradeOpen {
		t.Errorf("expected 1 open ledger record, got %+v", ld.created)
	}
	if rep.OpenPositions != 1 {
		t.Errorf("expected 1 open position after cycle, got %d", rep.OpenPositions)
	}
}

func TestRunCycle_SkipsHeldInstruments(t *testing.T) {
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 3000}, // 3 slots
		positions: []model.OpenPosition{{
			ID: "p1", Symbol: "EURUSD", Direction: model.Long, Volume: 0.1,
			OpenPrice: 100, CurrentPrice: 100.1, StopLoss: 99, OpenTime: t0,
		}},
		bars: map[string][]model.PriceBar{
			"EURUSD": flatSeries(30, 100.1), // held: analyzer says hold
			"GBPUSD": signalBars(1),
		},
	}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD,GBPUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sig := range rep.Signals {
		if sig.Symbol == "EURUSD" {
			t.Error("held instrument must not be scanned for entry")
		}
	}
	if len(rep.Opened) != 1 || rep.Opened[0] != "GBPUSD" {
		t.Errorf("expected to open GBPUSD only, got %v", rep.Opened)
	}
	if rep.OpenPositions != 2 {
		t.Errorf("expected 2 open positions, got %d", rep.OpenPositions)
	}
}

func TestRunCycle_ForcedFallbackWhenNothingScores(t *testing.T) {
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 800},
		bars: map[string][]model.PriceBar{
			"EURUSD": flatSeries(250, 100),
			"XAUUSD": flatSeries(250, 2000),
		},
	}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD;1:XAUUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.Forced {
		t.Fatal("expected the forced fallback to fire")
	}
	if len(rep.Signals) != 1 {
		t.Fatalf("forced pass must yield exactly one candidate, got %d", len(rep.Signals))
	}
	sig := rep.Signals[0]
	if !sig.Forced || sig.Confidence != 50 || sig.Symbol != "EURUSD" {
		t.Errorf("unexpected forced signal: %+v", sig)
	}
	if len(gw.placed) != 1 || !gw.placed[0].forced {
		t.Errorf("expected the forced signal to be executed, got %+v", gw.placed)
	}
}

func TestRunCycle_RanksByPriorityThenExpectedProfit(t *testing.T) {
	// XAUUSD has 10x the ATR (and expected profit) but sits in a lower
	// tier, so EURUSD must still rank first.
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 20000}, // 8 slots
		bars: map[string][]model.PriceBar{
			"EURUSD": signalBars(1),
			"XAUUSD": signalBars(10),
		},
	}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD;1:XAUUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Signals) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(rep.Signals))
	}
	if rep.Signals[0].Symbol != "EURUSD" {
		t.Errorf("higher tier must rank first: %v then %v", rep.Signals[0].Symbol, rep.Signals[1].Symbol)
	}

	// Same tier: bigger expected profit wins despite later scan order.
	gw2 := &fakeGateway{
		account: &model.AccountState{Balance: 20000},
		bars: map[string][]model.PriceBar{
			"EURUSD": signalBars(1),
			"GBPUSD": signalBars(10),
		},
	}
	e2 := newTestEngine(gw2, newFakeLedger(), mustUniverse(t, "3:EURUSD,GBPUSD"))
	rep2, err := e2.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep2.Signals[0].Symbol != "GBPUSD" {
		t.Errorf("within a tier, expected profit must break the tie: got %v first", rep2.Signals[0].Symbol)
	}
}

func TestRunCycle_RejectedOrderConsumesNoSlot(t *testing.T) {
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 800}, // 1 slot
		bars: map[string][]model.PriceBar{
			"EURUSD": signalBars(1),
			"GBPUSD": signalBars(1),
		},
		placeErr: map[string]error{"EURUSD": errors.New("order rejected")},
	}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD,GBPUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Opened) != 1 || rep.Opened[0] != "GBPUSD" {
		t.Errorf("rejection must pass the slot to the next candidate, opened %v", rep.Opened)
	}
	if len(rep.Errors) == 0 {
		t.Error("the rejection must be recorded in the report")
	}
}

func TestRunCycle_PositionFailuresAreIsolated(t *testing.T) {
	// Bars for p1's symbol are unavailable; p2 still gets managed.
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 800}, // no free slots with 2 open
		positions: []model.OpenPosition{
			{ID: "p1", Symbol: "EURUSD", Direction: model.Long, Volume: 0.2,
				OpenPrice: 1.10, CurrentPrice: 1.11, StopLoss: 1.09, OpenTime: t0},
			{ID: "p2", Symbol: "GBPUSD", Direction: model.Long, Volume: 0.4,
				OpenPrice: 100, CurrentPrice: 101.6, StopLoss: 99, OpenTime: t0},
		},
		barsErr: map[string]error{"EURUSD": errors.New("feed down")},
		bars:    map[string][]model.PriceBar{"GBPUSD": flatSeries(30, 101.6)},
	}
	ld := newFakeLedger()
	e := newTestEngine(gw, ld, mustUniverse(t, "3:EURUSD,GBPUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("one failing position must not abort the cycle: %v", err)
	}
	if len(rep.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %v", rep.Errors)
	}
	if len(gw.partials) != 1 || gw.partials[0].id != "p2" || gw.partials[0].percent != 50 {
		t.Fatalf("expected a 50%% partial close of p2, got %+v", gw.partials)
	}
	if got := ld.reduced["p2"]; got != 0.2 {
		t.Errorf("ledger volume after partial = %.2f, want 0.20", got)
	}
	if len(gw.modified) != 1 || gw.modified[0].stop != 100 {
		t.Errorf("expected the stop moved to breakeven 100, got %+v", gw.modified)
	}
	if _, closed := ld.closes["p2"]; closed {
		t.Error("a partially closed position must stay open in the ledger")
	}
}

func TestRunCycle_ClosesInvalidatedPosition(t *testing.T) {
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 800},
		positions: []model.OpenPosition{{
			ID: "p1", Symbol: "EURUSD", Direction: model.Long, Volume: 0.2,
			OpenPrice: 100, CurrentPrice: 97.9, StopLoss: 98,
			Profit: -42, OpenTime: t0,
		}},
		bars: map[string][]model.PriceBar{"EURUSD": flatSeries(30, 97.9)},
	}
	ld := newFakeLedger()
	e := newTestEngine(gw, ld, mustUniverse(t, "3:EURUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gw.closed) != 1 || gw.closed[0] != "p1" {
		t.Fatalf("expected p1 closed at the venue, got %v", gw.closed)
	}
	lc, ok := ld.closes["p1"]
	if !ok {
		t.Fatal("expected the ledger record closed")
	}
	if lc.price != 97.9 || lc.profit != -42 {
		t.Errorf("ledger close = %+v, want price 97.9 profit -42", lc)
	}
	if rep.OpenPositions != 0 {
		t.Errorf("expected 0 open positions, got %d", rep.OpenPositions)
	}
}

func TestRunCycle_CloseDoesNotFreeSlotSameCycle(t *testing.T) {
	// One slot, held by a position the analyzer closes during management.
	// The slot stays spent until the next cycle, so the scoring GBPUSD
	// candidate must not be opened now.
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 800}, // 1 slot
		positions: []model.OpenPosition{{
			ID: "p1", Symbol: "EURUSD", Direction: model.Long, Volume: 0.2,
			OpenPrice: 100, CurrentPrice: 97.9, StopLoss: 98, OpenTime: t0,
		}},
		bars: map[string][]model.PriceBar{
			"EURUSD": flatSeries(30, 97.9),
			"GBPUSD": signalBars(1),
		},
	}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD,GBPUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gw.closed) != 1 || gw.closed[0] != "p1" {
		t.Fatalf("expected p1 closed, got %v", gw.closed)
	}
	if len(gw.placed) != 0 {
		t.Errorf("a slot freed by a close is not reusable within the cycle, placed %+v", gw.placed)
	}
	if len(rep.Signals) != 0 {
		t.Errorf("discovery must not run with zero free slots, got %d candidates", len(rep.Signals))
	}
	if rep.OpenPositions != 0 {
		t.Errorf("expected 0 open positions after the close, got %d", rep.OpenPositions)
	}
}

func TestRunCycle_SkipsDiscoveryWithoutPositionList(t *testing.T) {
	gw := &fakeGateway{
		account:      &model.AccountState{Balance: 5000},
		positionsErr: errors.New("bridge 502"),
		bars:         map[string][]model.PriceBar{"EURUSD": signalBars(1)},
	}
	e := newTestEngine(gw, newFakeLedger(), mustUniverse(t, "3:EURUSD"))

	rep, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("position list failure is not fatal: %v", err)
	}
	if len(rep.Errors) != 1 {
		t.Errorf("expected the failure recorded, got %v", rep.Errors)
	}
	if len(gw.placed) != 0 {
		t.Error("must not open trades without knowing what is already held")
	}
}

func TestMaxSlotsForBalance(t *testing.T) {
	cases := []struct {
		balance float64
		want    int
	}{
		{0, 1}, {999, 1}, {1000, 2}, {2499, 2}, {2500, 3},
		{4999, 3}, {5000, 5}, {9999, 5}, {10000, 8}, {24999, 8},
		{25000, 10}, {1e6, 10},
	}
	for _, tc := range cases {
		if got := maxSlotsForBalance(tc.balance); got != tc.want {
			t.Errorf("maxSlotsForBalance(%.0f) = %d, want %d", tc.balance, got, tc.want)
		}
	}
}

// --- reconciliation ------------------------------------------------------

func TestReconcile_ClosesStaleLedgerRecords(t *testing.T) {
	closeTime := t0.Add(48 * time.Hour)
	gw := &fakeGateway{
		account: &model.AccountState{Balance: 5000},
		positions: []model.OpenPosition{{
			ID: "a", Symbol: "EURUSD", Direction: model.Long, Volume: 0.1,
			OpenPrice: 1.10, CurrentPrice: 1.11, OpenTime: t0,
		}},
		history: []model.TradeRecord{{
			ID: "b", Symbol: "GBPUSD", Status: model.TradeClosed,
			ClosePrice: 1.2750, Profit: 55, CloseTime: closeTime,
		}},
	}
	ld := newFakeLedger()
	ld.open = []model.TradeRecord{
		{ID: "a", Symbol: "EURUSD", Status: model.TradeOpen, OpenTime: t0},
		{ID: "b", Symbol: "GBPUSD", Status: model.TradeOpen, OpenTime: t0},
		{ID: "c", Symbol: "XAUUSD", Status: model.TradeOpen, OpenTime: t0},
	}
	e := newTestEngine(gw, ld, mustUniverse(t, "3:EURUSD"))

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ld.closes["a"]; ok {
		t.Error("record still open at the venue must not be closed")
	}
	b, ok := ld.closes["b"]
	if !ok {
		t.Fatal("stale record b must be closed from deal history")
	}
	if b.price != 1.2750 || b.profit != 55 || !b.at.Equal(closeTime) {
		t.Errorf("record b closed with %+v, want history values", b)
	}
	c, ok := ld.closes["c"]
	if !ok {
		t.Fatal("stale record c must be closed even without a matching deal")
	}
	if c.price != 0 || c.profit != 0 {
		t.Errorf("record c should close with zero values, got %+v", c)
	}
}

// Package engine runs the decision cycle: fetch account state, manage open
// positions, discover new opportunities across the instrument universe, rank
// them, and execute within the account's slot budget.
//
// The engine holds no position state between cycles. Every cycle re-derives
// its view of the world from the gateway, so a restart (or a second engine
// taking over the lease) picks up exactly where the last cycle left off.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"algoedge/internal/closer"
	"algoedge/internal/metrics"
	"algoedge/internal/model"
	"algoedge/internal/scorer"
	"algoedge/internal/sizer"
	"algoedge/internal/universe"
)

// Config carries the per-account engine parameters.
type Config struct {
	AccountID   string
	RiskPercent float64 // percent of balance risked per trade
	Timeframe   string  // bar timeframe requested from the gateway, e.g. "1h"
	BarCount    int     // bars fetched per instrument; 0 = defaultBarCount
}

const defaultBarCount = 250

// Engine orchestrates one account. Construct with New; run with RunCycle.
type Engine struct {
	gw     Gateway
	ledger Ledger
	uni    *universe.Universe
	cfg    Config
	met    *metrics.Metrics // optional
	logger *log.Logger
}

// New builds an engine. met may be nil (no metrics recorded).
func New(gw Gateway, ledger Ledger, uni *universe.Universe, cfg Config, met *metrics.Metrics) *Engine {
	if cfg.BarCount <= 0 {
		cfg.BarCount = defaultBarCount
	}
	return &Engine{
		gw:     gw,
		ledger: ledger,
		uni:    uni,
		cfg:    cfg,
		met:    met,
		logger: log.New(log.Writer(), "[engine] ", log.LstdFlags|log.Lmicroseconds),
	}
}

// CycleReport summarizes one decision cycle for logging and notification.
type CycleReport struct {
	StartedAt     time.Time
	Duration      time.Duration
	Balance       float64
	Slots         int
	OpenPositions int // open at the venue after management and execution

	Closed     []string // position IDs fully closed
	Partials   []string // position IDs partially closed
	StopsMoved []string // position IDs whose stop was modified

	Signals []*model.Signal // ranked candidates considered for entry
	Opened  []string        // symbols opened this cycle
	Forced  bool            // true when the fallback pass produced the entry candidate

	Errors []string // non-fatal errors, in occurrence order
}

// Summary renders a one-line human-readable digest.
func (r *CycleReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "balance=%.2f slots=%d open=%d closed=%d partial=%d moved=%d candidates=%d opened=%d errors=%d",
		r.Balance, r.Slots, r.OpenPositions, len(r.Closed), len(r.Partials),
		len(r.StopsMoved), len(r.Signals), len(r.Opened), len(r.Errors))
	if r.Forced {
		b.WriteString(" forced=true")
	}
	return b.String()
}

func (r *CycleReport) fail(logger *log.Logger, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Printf("cycle error: %s", msg)
	r.Errors = append(r.Errors, msg)
}

// maxSlotsForBalance maps account balance to the number of positions the
// account may hold at once. Small accounts get one shot at a time.
func maxSlotsForBalance(balance float64) int {
	switch {
	case balance < 1000:
		return 1
	case balance < 2500:
		return 2
	case balance < 5000:
		return 3
	case balance < 10000:
		return 5
	case balance < 25000:
		return 8
	default:
		return 10
	}
}

// RunCycle executes one full decision cycle. The only fatal condition is an
// unavailable account state; every other failure is recorded in the report
// and isolated to the position or instrument it occurred on.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	rep := &CycleReport{StartedAt: start}

	acct, err := e.gw.GetAccountState(ctx)
	if err != nil {
		return nil, fmt.Errorf("account state unavailable: %w", err)
	}
	rep.Balance = acct.Balance
	rep.Slots = maxSlotsForBalance(acct.Balance)

	positions, err := e.gw.GetOpenPositions(ctx)
	if err != nil {
		// Without the held set the engine can neither manage positions nor
		// open new ones safely. Skip the rest of the cycle.
		rep.fail(e.logger, "list open positions: %v", err)
		e.finish(rep, acct, start)
		return rep, nil
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	openCount := len(positions)

	// The free slot count is fixed from the position count at cycle start.
	// A position closed during management frees its slot next cycle, from
	// fresh venue state.
	free := rep.Slots - openCount

	// Stage 1: manage what we hold.
	for i := range positions {
		if e.managePosition(ctx, rep, &positions[i]) {
			openCount--
		}
	}

	// Stage 2: discover, rank, execute.
	if free > 0 {
		candidates := e.discover(ctx, rep, held)
		rank(candidates)
		rep.Signals = candidates
		openCount += e.execute(ctx, rep, acct, candidates, held, free)
	}

	rep.OpenPositions = openCount
	e.finish(rep, acct, start)
	e.logger.Printf("cycle done: %s", rep.Summary())
	return rep, nil
}

// managePosition runs the close analyzer on one position and executes its
// decision. Returns true when the position was fully closed.
func (e *Engine) managePosition(ctx context.Context, rep *CycleReport, pos *model.OpenPosition) bool {
	bars, err := e.gw.GetPriceBars(ctx, pos.Symbol, e.cfg.Timeframe, e.cfg.BarCount)
	if err != nil {
		rep.fail(e.logger, "manage %s (%s): fetch bars: %v", pos.ID, pos.Symbol, err)
		return false
	}

	d := closer.Analyze(pos, bars)
	switch d.Action {
	case closer.Close:
		if err := e.gw.ClosePosition(ctx, pos.ID); err != nil {
			rep.fail(e.logger, "close %s (%s): %v", pos.ID, pos.Symbol, err)
			return false
		}
		rep.Closed = append(rep.Closed, pos.ID)
		if e.met != nil {
			e.met.TradesClosed.Inc()
		}
		if err := e.ledger.CloseTradeRecord(ctx, pos.ID, pos.CurrentPrice, pos.Profit, time.Now().UTC()); err != nil {
			rep.fail(e.logger, "ledger close %s: %v", pos.ID, err)
		}
		e.audit(ctx, "close", pos.ID, pos.Symbol, d.Reason)
		return true

	case closer.PartialClose:
		if err := e.gw.PartialClose(ctx, pos.ID, d.Percent); err != nil {
			rep.fail(e.logger, "partial close %s (%s): %v", pos.ID, pos.Symbol, err)
			return false
		}
		rep.Partials = append(rep.Partials, pos.ID)
		if e.met != nil {
			e.met.PartialCloses.Inc()
		}
		remaining := pos.Volume * (1 - d.Percent/100)
		if err := e.ledger.ReduceTradeVolume(ctx, pos.ID, remaining); err != nil {
			rep.fail(e.logger, "ledger reduce %s: %v", pos.ID, err)
		}
		if d.NewStop != 0 {
			e.moveStop(ctx, rep, pos, d.NewStop)
		}
		e.audit(ctx, "partial_close", pos.ID, pos.Symbol, d.Reason)

	case closer.MoveStop:
		if e.moveStop(ctx, rep, pos, d.NewStop) {
			e.audit(ctx, "move_stop", pos.ID, pos.Symbol, d.Reason)
		}

	case closer.Hold:
		// nothing to do
	}
	return false
}

func (e *Engine) moveStop(ctx context.Context, rep *CycleReport, pos *model.OpenPosition, newStop float64) bool {
	if err := e.gw.ModifyPosition(ctx, pos.ID, newStop, pos.TakeProfit); err != nil {
		rep.fail(e.logger, "move stop %s (%s): %v", pos.ID, pos.Symbol, err)
		return false
	}
	rep.StopsMoved = append(rep.StopsMoved, pos.ID)
	if e.met != nil {
		e.met.StopsMoved.Inc()
	}
	if err := e.ledger.UpdateStop(ctx, pos.ID, newStop); err != nil {
		rep.fail(e.logger, "ledger stop %s: %v", pos.ID, err)
	}
	return true
}

// discover walks the universe tier by tier, scoring every instrument not
// already held. When the primary scorer produces nothing, a single relaxed
// fallback signal is taken from the top tier so the cycle is never idle
// while slots remain.
func (e *Engine) discover(ctx context.Context, rep *CycleReport, held map[string]bool) []*model.Signal {
	var candidates []*model.Signal

	for _, tier := range e.uni.Tiers() {
		for _, sym := range tier.Symbols {
			if held[sym] {
				continue
			}
			bars, err := e.gw.GetPriceBars(ctx, sym, e.cfg.Timeframe, e.cfg.BarCount)
			if err != nil {
				rep.fail(e.logger, "scan %s: fetch bars: %v", sym, err)
				continue
			}
			if sig := scorer.Score(sym, bars, tier.Priority); sig != nil {
				candidates = append(candidates, sig)
				if e.met != nil {
					e.met.SignalsTotal.WithLabelValues("scored").Inc()
				}
			}
		}
	}

	if len(candidates) > 0 {
		return candidates
	}

	top := e.uni.Top()
	for _, sym := range top.Symbols {
		if held[sym] {
			continue
		}
		bars, err := e.gw.GetPriceBars(ctx, sym, e.cfg.Timeframe, e.cfg.BarCount)
		if err != nil {
			rep.fail(e.logger, "forced scan %s: fetch bars: %v", sym, err)
			continue
		}
		if sig := scorer.Forced(sym, bars, top.Priority); sig != nil {
			rep.Forced = true
			if e.met != nil {
				e.met.SignalsTotal.WithLabelValues("forced").Inc()
			}
			return []*model.Signal{sig}
		}
	}
	return nil
}

// rank orders candidates by tier priority descending, then by expected
// profit descending. Stable so equal candidates keep scan order.
func rank(candidates []*model.Signal) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ExpectedProfit > candidates[j].ExpectedProfit
	})
}

// execute opens positions for the top-ranked candidates until the free slots
// are used up. A rejected order consumes no slot; the next candidate gets
// its chance. Returns the number of positions opened.
func (e *Engine) execute(ctx context.Context, rep *CycleReport, acct *model.AccountState,
	candidates []*model.Signal, held map[string]bool, free int) int {

	opened := 0
	for _, sig := range candidates {
		if opened >= free {
			break
		}
		if held[sig.Symbol] {
			// one position per instrument, full stop
			continue
		}

		vol := sizer.Volume(acct.Balance, e.cfg.RiskPercent, sig.Entry, sig.StopLoss, sizer.DefaultPipValue)
		id, err := e.gw.PlaceTrade(ctx, sig, vol)
		if err != nil {
			rep.fail(e.logger, "open %s %s: %v", sig.Symbol, sig.Direction, err)
			continue
		}

		opened++
		held[sig.Symbol] = true
		rep.Opened = append(rep.Opened, sig.Symbol)
		if e.met != nil {
			e.met.TradesOpened.Inc()
		}

		var tp float64
		if len(sig.TakeProfits) > 0 {
			tp = sig.TakeProfits[0]
		}
		rec := &model.TradeRecord{
			ID:         id,
			AccountID:  e.cfg.AccountID,
			Symbol:     sig.Symbol,
			Direction:  sig.Direction,
			Volume:     vol,
			OpenPrice:  sig.Entry,
			OpenTime:   time.Now().UTC(),
			StopLoss:   sig.StopLoss,
			TakeProfit: tp,
			Confidence: sig.Confidence,
			Rationale:  sig.Rationale,
			Status:     model.TradeOpen,
		}
		if err := e.ledger.CreateTradeRecord(ctx, rec); err != nil {
			rep.fail(e.logger, "ledger create %s: %v", id, err)
		}
		e.audit(ctx, "open", id, sig.Symbol, sig.Rationale)
	}
	return opened
}

// audit appends to the audit trail; a failed audit write is logged but does
// not alter the cycle outcome.
func (e *Engine) audit(ctx context.Context, action, positionID, symbol, detail string) {
	if err := e.ledger.AppendAudit(ctx, action, positionID, symbol, detail); err != nil {
		e.logger.Printf("audit %s %s: %v", action, positionID, err)
	}
}

func (e *Engine) finish(rep *CycleReport, acct *model.AccountState, start time.Time) {
	rep.Duration = time.Since(start)
	if e.met == nil {
		return
	}
	e.met.CyclesTotal.Inc()
	e.met.CycleDur.Observe(rep.Duration.Seconds())
	e.met.CycleErrors.Add(float64(len(rep.Errors)))
	e.met.OpenPositions.Set(float64(rep.OpenPositions))
	e.met.AccountBalance.Set(acct.Balance)
	e.met.AccountEquity.Set(acct.Equity)
}

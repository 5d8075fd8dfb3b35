// Package closer decides what to do with an open position each cycle:
// hold it, close it, bank part of it, or trail its stop.
//
// The analyzer is a per-position state machine evaluated fresh every cycle.
// It keeps no state of its own — every decision derives from the position
// snapshot and the latest bar sequence, so calling it twice with the same
// inputs yields the same decision. Execution is the orchestrator's job.
package closer

import (
	"fmt"

	"algoedge/internal/indicator"
	"algoedge/internal/model"
)

// Action is the kind of decision taken for one position in one cycle.
type Action string

const (
	Hold         Action = "HOLD"
	Close        Action = "CLOSE"
	PartialClose Action = "PARTIAL_CLOSE"
	MoveStop     Action = "MOVE_STOP"
)

// Decision is the outcome of analyzing one open position.
// A PartialClose may carry a NewStop as well; the orchestrator applies the
// volume reduction and the stop adjustment in the same cycle. Close is
// exclusive and terminal.
type Decision struct {
	Action  Action
	Percent float64 // PartialClose: fraction of volume to bank, in percent
	NewStop float64 // MoveStop / PartialClose: new stop-loss price, 0 = none
	Reason  string
}

// ATR multiples defining the decision policy. The trail distance adapts to
// current volatility because it is recomputed from fresh bars each cycle.
const (
	invalidationATR = 2.0 // adverse move that invalidates the entry premise
	milestoneATR    = 1.5 // favorable move at which half the position is banked
	givebackFloorATR = 0.25 // profit retained below this after a milestone → close
	trailTriggerATR = 1.0 // favorable move required before trailing begins
	trailDistATR    = 1.5 // stop trails this far behind price

	partialPercent = 50.0
)

// Analyze returns the decision for one open position given fresh bars for
// its instrument. atrPeriod is normally 14; too few bars for ATR yields HOLD
// (skip, not an error — there is nothing safe to decide without a range).
func Analyze(pos *model.OpenPosition, bars []model.PriceBar) Decision {
	atr := indicator.ATR(bars, 14)
	if atr <= 0 {
		return Decision{Action: Hold, Reason: "insufficient data for ATR"}
	}

	favorable := pos.Favorable()

	// Structural invalidation: price has moved a full stop distance against
	// the entry. Whatever the attached stop says, the premise is gone.
	if favorable <= -invalidationATR*atr {
		return Decision{
			Action: Close,
			Reason: fmt.Sprintf("adverse move %.5f beyond %.1fxATR invalidation", -favorable, invalidationATR),
		}
	}

	// Giveback: the position reached the milestone at some point in the
	// lookback but price has come nearly all the way back. Peak excursion is
	// derived from the bars, not from stored analyzer state.
	if favorable < givebackFloorATR*atr && peakFavorable(pos, bars) >= milestoneATR*atr {
		return Decision{
			Action: Close,
			Reason: fmt.Sprintf("profit retraced to %.5f after reaching %.1fxATR milestone", favorable, milestoneATR),
		}
	}

	// First milestone: bank half, move the stop to breakeven. Gated on the
	// stop still being on the risk side of the open price, so a position
	// that was already banked is not banked again next cycle.
	if favorable >= milestoneATR*atr && !stopAtOrBeyondBreakeven(pos) {
		return Decision{
			Action:  PartialClose,
			Percent: partialPercent,
			NewStop: pos.OpenPrice,
			Reason:  fmt.Sprintf("reached %.1fxATR milestone, banking %.0f%% and moving stop to breakeven", milestoneATR, partialPercent),
		}
	}

	// Trail: enough favorable movement to pull the stop along. Only emitted
	// when the new stop strictly improves on the current one.
	if favorable >= trailTriggerATR*atr {
		newStop := pos.CurrentPrice - trailDistATR*atr
		if pos.Direction == model.Short {
			newStop = pos.CurrentPrice + trailDistATR*atr
		}
		if improvesStop(pos, newStop) {
			return Decision{
				Action:  MoveStop,
				NewStop: newStop,
				Reason:  fmt.Sprintf("trailing stop to %.5f (%.1fxATR behind price)", newStop, trailDistATR),
			}
		}
	}

	return Decision{Action: Hold, Reason: "no exit condition met"}
}

// peakFavorable returns the best favorable excursion seen across the bar
// sequence since the position opened, in price units.
func peakFavorable(pos *model.OpenPosition, bars []model.PriceBar) float64 {
	peak := 0.0
	for _, b := range bars {
		if b.TS.Before(pos.OpenTime) {
			continue
		}
		var f float64
		if pos.Direction == model.Long {
			f = b.High - pos.OpenPrice
		} else {
			f = pos.OpenPrice - b.Low
		}
		if f > peak {
			peak = f
		}
	}
	return peak
}

// stopAtOrBeyondBreakeven reports whether the stop already protects the
// entry price (the marker that the milestone was banked in a prior cycle).
func stopAtOrBeyondBreakeven(pos *model.OpenPosition) bool {
	if pos.StopLoss == 0 {
		return false
	}
	if pos.Direction == model.Long {
		return pos.StopLoss >= pos.OpenPrice
	}
	return pos.StopLoss <= pos.OpenPrice
}

// improvesStop reports whether newStop strictly tightens the current stop.
func improvesStop(pos *model.OpenPosition, newStop float64) bool {
	if pos.StopLoss == 0 {
		return true
	}
	if pos.Direction == model.Long {
		return newStop > pos.StopLoss
	}
	return newStop < pos.StopLoss
}

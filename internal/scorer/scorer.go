// Package scorer turns a bar sequence into a directional trading signal.
//
// Scoring is an additive point system evaluated independently for each
// direction; a Signal is emitted only when one direction clears the
// confidence floor AND strictly beats the other. A tie — even above the
// floor — yields no signal, since "both directions confirmed" is a
// contradiction, not a conviction.
package scorer

import (
	"fmt"
	"strings"
	"time"

	"algoedge/internal/indicator"
	"algoedge/internal/model"
)

const (
	// MinBars is the lookback required by the slowest trend filter (EMA200).
	MinBars = 200

	// ConfidenceFloor is the minimum score a direction needs to emit a signal.
	ConfidenceFloor = 75

	stopATRMult   = 2.0
	targetATRMult = 3.0

	volumeSpikeRatio = 1.5
	volumeAvgWindow  = 20
)

// scorecard accumulates per-direction points and the rules that fired,
// in evaluation order.
type scorecard struct {
	long    int
	short   int
	reasons []string
}

func (s *scorecard) addLong(pts int, reason string) {
	s.long += pts
	s.reasons = append(s.reasons, fmt.Sprintf("%s (+%d long)", reason, pts))
}

func (s *scorecard) addShort(pts int, reason string) {
	s.short += pts
	s.reasons = append(s.reasons, fmt.Sprintf("%s (+%d short)", reason, pts))
}

func (s *scorecard) addBoth(pts int, reason string) {
	s.long += pts
	s.short += pts
	s.reasons = append(s.reasons, fmt.Sprintf("%s (+%d both)", reason, pts))
}

func (s *scorecard) cap() {
	if s.long > 100 {
		s.long = 100
	}
	if s.short > 100 {
		s.short = 100
	}
}

// evaluate applies every scoring rule to one indicator snapshot.
// Pure: the whole scorer's behavior is a function of these inputs.
func evaluate(ind model.IndicatorSet, price, volume, avgVolume float64) scorecard {
	var sc scorecard

	// Trend alignment
	if ind.EMA20 > ind.EMA50 && ind.EMA50 > ind.EMA200 {
		sc.addLong(20, "uptrend EMA20>EMA50>EMA200")
	} else if ind.EMA20 < ind.EMA50 && ind.EMA50 < ind.EMA200 {
		sc.addShort(20, "downtrend EMA20<EMA50<EMA200")
	}
	if price > ind.EMA20 && price > ind.EMA50 {
		sc.addLong(10, "price above EMA20/EMA50")
	} else if price < ind.EMA20 && price < ind.EMA50 {
		sc.addShort(10, "price below EMA20/EMA50")
	}

	// RSI bands are disjoint — exactly one rule can fire
	switch {
	case ind.RSI < 30:
		sc.addLong(25, fmt.Sprintf("RSI oversold %.1f", ind.RSI))
	case ind.RSI > 70:
		sc.addShort(25, fmt.Sprintf("RSI overbought %.1f", ind.RSI))
	case ind.RSI >= 30 && ind.RSI <= 40:
		sc.addLong(10, fmt.Sprintf("RSI weak %.1f", ind.RSI))
	case ind.RSI >= 60 && ind.RSI <= 70:
		sc.addShort(10, fmt.Sprintf("RSI strong %.1f", ind.RSI))
	}

	// MACD momentum
	if ind.MACD.Histogram > 0 && ind.MACD.Value > ind.MACD.Signal {
		sc.addLong(15, "MACD bullish")
	} else if ind.MACD.Histogram < 0 && ind.MACD.Value < ind.MACD.Signal {
		sc.addShort(15, "MACD bearish")
	}

	// Bollinger band touches
	if price <= ind.Bollinger.Lower {
		sc.addLong(20, "price at lower Bollinger band")
	} else if price >= ind.Bollinger.Upper {
		sc.addShort(20, "price at upper Bollinger band")
	}

	// A volume spike confirms whichever direction already has support;
	// it is not directional on its own, so both sides get the points.
	if avgVolume > 0 && volume > volumeSpikeRatio*avgVolume {
		sc.addBoth(10, fmt.Sprintf("volume spike %.1fx", volume/avgVolume))
	}

	sc.cap()
	return sc
}

// pick applies the emission rule: one side must reach the floor and
// strictly beat the other. Returns false when no signal should be emitted.
func pick(long, short int) (model.Direction, int, bool) {
	if long >= ConfidenceFloor && long > short {
		return model.Long, long, true
	}
	if short >= ConfidenceFloor && short > long {
		return model.Short, short, true
	}
	return "", 0, false
}

// Score evaluates one instrument and returns a Signal, or nil when the bar
// sequence is too short or no direction qualifies. priority is the universe
// tier weight carried into ranking.
func Score(symbol string, bars []model.PriceBar, priority int) *model.Signal {
	if len(bars) < MinBars {
		return nil
	}

	ind := indicator.Compute(bars)
	last := bars[len(bars)-1]

	var avgVolume float64
	start := len(bars) - volumeAvgWindow
	for _, b := range bars[start:] {
		avgVolume += b.Volume
	}
	avgVolume /= volumeAvgWindow

	sc := evaluate(ind, last.Close, last.Volume, avgVolume)
	dir, confidence, ok := pick(sc.long, sc.short)
	if !ok {
		return nil
	}

	return buildSignal(symbol, dir, confidence, last.Close, ind, priority,
		strings.Join(sc.reasons, "; "), false)
}

// buildSignal derives stops and targets from ATR and assembles the
// immutable Signal. Shared by the primary and forced paths.
func buildSignal(symbol string, dir model.Direction, confidence int, entry float64,
	ind model.IndicatorSet, priority int, rationale string, forced bool) *model.Signal {

	atr := ind.ATR
	if atr <= 0 {
		// Degenerate series with no usable range — fall back to a 0.5%
		// stop distance so the sizer never sees entry == stop.
		atr = entry * 0.005 / stopATRMult
	}

	stop := entry - stopATRMult*atr
	target := entry + targetATRMult*atr
	if dir == model.Short {
		stop = entry + stopATRMult*atr
		target = entry - targetATRMult*atr
	}

	return &model.Signal{
		Symbol:         symbol,
		Direction:      dir,
		Confidence:     confidence,
		Entry:          entry,
		StopLoss:       stop,
		TakeProfits:    []float64{target},
		Rationale:      rationale,
		Priority:       priority,
		ExpectedProfit: targetATRMult * atr,
		RiskReward:     targetATRMult / stopATRMult,
		Forced:         forced,
		Indicators:     ind,
		CreatedAt:      time.Now().UTC(),
	}
}

// Forced produces the relaxed fallback signal: a simple bias of the current
// price against its 20-bar average, used only when a cycle discovers nothing
// and slots remain. It is clearly labeled so it can be audited or disabled
// separately from the primary scorer.
func Forced(symbol string, bars []model.PriceBar, priority int) *model.Signal {
	if len(bars) < volumeAvgWindow {
		return nil
	}

	ind := indicator.Compute(bars)
	last := bars[len(bars)-1]

	var mean float64
	window := bars[len(bars)-volumeAvgWindow:]
	for _, b := range window {
		mean += b.Close
	}
	mean /= float64(len(window))

	dir := model.Short
	if last.Close >= mean {
		dir = model.Long
	}

	rationale := fmt.Sprintf("forced entry: price %.5f vs 20-bar average %.5f", last.Close, mean)
	return buildSignal(symbol, dir, 50, last.Close, ind, priority, rationale, true)
}

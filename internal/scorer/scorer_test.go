package scorer

import (
	"strings"
	"testing"
	"time"

	"algoedge/internal/model"
)

func bar(ts time.Time, c, vol float64) model.PriceBar {
	return model.PriceBar{TS: ts, Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: vol}
}

// riseThenDip builds an oversold pullback inside an uptrend: 190 rising bars
// then 10 sharp drops, with a volume spike on the last bar. This fires
// trend(+20), RSI oversold(+25), lower band(+20), and volume(+10) for the
// long side — exactly the confidence floor.
func riseThenDip() []model.PriceBar {
	ts := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, 0, 200)
	price := 100.0
	for i := 0; i < 190; i++ {
		bars = append(bars, bar(ts.Add(time.Duration(i)*time.Minute), price, 100))
		price++
	}
	for i := 190; i < 200; i++ {
		price -= 3
		vol := 100.0
		if i == 199 {
			vol = 1000
		}
		bars = append(bars, bar(ts.Add(time.Duration(i)*time.Minute), price, vol))
	}
	return bars
}

func TestScore_RequiresMinBars(t *testing.T) {
	bars := riseThenDip()
	if sig := Score("EURUSD", bars[:199], 3); sig != nil {
		t.Fatalf("expected no signal below %d bars, got %+v", MinBars, sig)
	}
}

func TestScore_OversoldPullbackGoesLong(t *testing.T) {
	sig := Score("EURUSD", riseThenDip(), 3)
	if sig == nil {
		t.Fatal("expected a long signal, got none")
	}
	if sig.Direction != model.Long {
		t.Fatalf("expected LONG, got %s", sig.Direction)
	}
	if sig.Confidence < ConfidenceFloor {
		t.Errorf("confidence %d below floor", sig.Confidence)
	}
	if sig.Forced {
		t.Error("primary signal must not be marked forced")
	}
	if sig.StopLoss >= sig.Entry {
		t.Errorf("long stop %.4f must be below entry %.4f", sig.StopLoss, sig.Entry)
	}
	if len(sig.TakeProfits) == 0 || sig.TakeProfits[0] <= sig.Entry {
		t.Errorf("long target must be above entry, got %v", sig.TakeProfits)
	}
	for _, want := range []string{"uptrend", "RSI oversold", "lower Bollinger", "volume spike"} {
		if !strings.Contains(sig.Rationale, want) {
			t.Errorf("rationale missing %q: %s", want, sig.Rationale)
		}
	}
}

func TestScore_StopsAndTargetsFromATR(t *testing.T) {
	sig := Score("EURUSD", riseThenDip(), 3)
	if sig == nil {
		t.Fatal("expected a signal")
	}
	atr := sig.Indicators.ATR
	if atr <= 0 {
		t.Fatal("expected positive ATR")
	}
	wantStop := sig.Entry - 2*atr
	wantTP := sig.Entry + 3*atr
	if diff := sig.StopLoss - wantStop; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("stop = %.6f, want entry-2*ATR = %.6f", sig.StopLoss, wantStop)
	}
	if diff := sig.TakeProfits[0] - wantTP; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("target = %.6f, want entry+3*ATR = %.6f", sig.TakeProfits[0], wantTP)
	}
	if sig.RiskReward != 1.5 {
		t.Errorf("risk/reward = %.2f, want 1.5", sig.RiskReward)
	}
}

func TestPick_TieYieldsNoSignal(t *testing.T) {
	cases := []struct {
		long, short int
		wantOK      bool
		wantDir     model.Direction
	}{
		{80, 80, false, ""},  // tie above floor → contradiction, no signal
		{74, 74, false, ""},  // tie below floor
		{80, 75, true, model.Long},
		{75, 80, true, model.Short},
		{74, 60, false, ""},  // below floor
		{100, 99, true, model.Long},
		{0, 0, false, ""},
	}
	for _, tc := range cases {
		dir, conf, ok := pick(tc.long, tc.short)
		if ok != tc.wantOK {
			t.Errorf("pick(%d,%d): ok=%v, want %v", tc.long, tc.short, ok, tc.wantOK)
			continue
		}
		if ok && dir != tc.wantDir {
			t.Errorf("pick(%d,%d): dir=%s, want %s", tc.long, tc.short, dir, tc.wantDir)
		}
		if ok && conf < ConfidenceFloor {
			t.Errorf("pick(%d,%d): confidence %d below floor", tc.long, tc.short, conf)
		}
	}
}

func TestEvaluate_RSIBandsAreDisjoint(t *testing.T) {
	// EMAs straddle the price so no trend or price-location rule fires.
	base := model.IndicatorSet{
		EMA20: 10, EMA50: 1, EMA200: 1,
		Bollinger: model.BollingerValue{Upper: 10, Middle: 5, Lower: 1},
	}
	cases := []struct {
		rsi        float64
		wantLong   int
		wantShort  int
	}{
		{25, 25, 0},
		{35, 10, 0},
		{50, 0, 0},
		{65, 0, 10},
		{75, 0, 25},
	}
	for _, tc := range cases {
		ind := base
		ind.RSI = tc.rsi
		sc := evaluate(ind, 5, 100, 100)
		if sc.long != tc.wantLong || sc.short != tc.wantShort {
			t.Errorf("RSI=%.0f: got long=%d short=%d, want %d/%d",
				tc.rsi, sc.long, sc.short, tc.wantLong, tc.wantShort)
		}
	}
}

func TestEvaluate_VolumeSpikeConfirmsBothSides(t *testing.T) {
	ind := model.IndicatorSet{
		EMA20: 10, EMA50: 1, EMA200: 1, RSI: 50,
		Bollinger: model.BollingerValue{Upper: 10, Middle: 5, Lower: 1},
	}
	sc := evaluate(ind, 5, 200, 100) // 2x average volume
	if sc.long != 10 || sc.short != 10 {
		t.Errorf("volume spike should add +10 to both, got long=%d short=%d", sc.long, sc.short)
	}

	sc = evaluate(ind, 5, 140, 100) // 1.4x — below the 1.5x threshold
	if sc.long != 0 || sc.short != 0 {
		t.Errorf("sub-threshold volume should add nothing, got long=%d short=%d", sc.long, sc.short)
	}
}

func TestEvaluate_AllLongRulesSumToExactly100(t *testing.T) {
	// Every long rule firing at once sums to exactly the 100 cap. RSI oversold
	// and price-above can't coexist with a lower-band touch in real data, so
	// fabricate a set where they do: evaluate checks numbers, not plausibility.
	ind := model.IndicatorSet{
		EMA20: 4, EMA50: 3, EMA200: 2, // uptrend
		RSI:  25,                       // +25
		MACD: model.MACDValue{Value: 1, Signal: 0.5, Histogram: 0.5}, // +15
		Bollinger: model.BollingerValue{Upper: 10, Middle: 7, Lower: 5},
	}
	sc := evaluate(ind, 5, 200, 100) // price above EMAs, at lower band, volume spike
	if sc.long != 100 {
		t.Errorf("expected long score capped at 100, got %d", sc.long)
	}
}

func TestForced_BiasFollowsRecentAverage(t *testing.T) {
	ts := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, 0, 40)
	for i := 0; i < 40; i++ {
		bars = append(bars, bar(ts.Add(time.Duration(i)*time.Minute), 100+float64(i)*0.1, 100))
	}

	sig := Forced("EURUSD", bars, 3)
	if sig == nil {
		t.Fatal("expected a forced signal")
	}
	if sig.Direction != model.Long {
		t.Errorf("rising price vs average should bias LONG, got %s", sig.Direction)
	}
	if !sig.Forced {
		t.Error("forced signal must be flagged")
	}
	if sig.Confidence != 50 {
		t.Errorf("forced confidence = %d, want 50", sig.Confidence)
	}
	if !strings.HasPrefix(sig.Rationale, "forced entry") {
		t.Errorf("forced rationale must be labeled, got %q", sig.Rationale)
	}
}

func TestForced_TooFewBars(t *testing.T) {
	if sig := Forced("EURUSD", make([]model.PriceBar, 5), 3); sig != nil {
		t.Fatalf("expected nil for too few bars, got %+v", sig)
	}
}

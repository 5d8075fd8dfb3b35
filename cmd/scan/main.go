// Command scan runs one discovery pass over the universe and prints the
// scorecard without placing any orders. Useful for checking what the engine
// would do right now.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"algoedge/config"
	"algoedge/internal/broker"
	"algoedge/internal/markethours"
	"algoedge/internal/scorer"
	"algoedge/internal/universe"
	"algoedge/pkg/mt5bridge"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		timeframe    = flag.String("timeframe", "", "candle timeframe (default from config)")
		barCount     = flag.Int("bars", 250, "bars to fetch per instrument")
		universeSpec = flag.String("universe", "", "universe spec (default from config)")
		showForced   = flag.Bool("forced", true, "show the forced fallback when nothing scores")
	)
	flag.Parse()

	cfg := config.Load()
	if *timeframe == "" {
		*timeframe = cfg.Timeframe
	}
	if *universeSpec == "" {
		*universeSpec = cfg.UniverseSpec
	}

	uni, err := universe.Parse(*universeSpec)
	if err != nil {
		log.Fatalf("[scan] %v", err)
	}

	bridge := mt5bridge.New(mt5bridge.Config{
		BaseURL:    cfg.BridgeBaseURL,
		APIKey:     cfg.BridgeAPIKey,
		AccountID:  cfg.AccountID,
		Password:   cfg.BridgePassword,
		TOTPSecret: cfg.BridgeTOTPSecret,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := bridge.Login(ctx); err != nil {
		log.Fatalf("[scan] %v", err)
	}
	gw := broker.NewAdapter(bridge, nil)

	fmt.Printf("%s\n", markethours.StatusString(time.Now()))
	fmt.Printf("scanning %d instruments at %s\n\n", uni.Size(), *timeframe)

	signals := 0
	for _, tier := range uni.Tiers() {
		for _, sym := range tier.Symbols {
			bars, err := gw.GetPriceBars(ctx, sym, *timeframe, *barCount)
			if err != nil {
				fmt.Printf("%-8s tier %d  ERROR: %v\n", sym, tier.Priority, err)
				continue
			}
			sig := scorer.Score(sym, bars, tier.Priority)
			if sig == nil {
				fmt.Printf("%-8s tier %d  no signal (%d bars)\n", sym, tier.Priority, len(bars))
				continue
			}
			signals++
			fmt.Printf("%-8s tier %d  %-5s conf=%d entry=%.5f stop=%.5f target=%.5f\n",
				sym, tier.Priority, sig.Direction, sig.Confidence,
				sig.Entry, sig.StopLoss, sig.TakeProfits[0])
			fmt.Printf("         %s\n", sig.Rationale)
		}
	}

	if signals == 0 && *showForced {
		fmt.Println("\nnothing scored; forced fallback would pick:")
		top := uni.Top()
		for _, sym := range top.Symbols {
			bars, err := gw.GetPriceBars(ctx, sym, *timeframe, *barCount)
			if err != nil {
				continue
			}
			if sig := scorer.Forced(sym, bars, top.Priority); sig != nil {
				fmt.Printf("%-8s %-5s entry=%.5f stop=%.5f  %s\n",
					sym, sig.Direction, sig.Entry, sig.StopLoss, sig.Rationale)
				break
			}
		}
	}

	fmt.Printf("\n%d signal(s) across %d instruments\n", signals, uni.Size())
}

// Command engine runs the autonomous trading decision loop against one
// account: acquire the account lease, reconcile the ledger, then run a
// decision cycle on every tick while the market is open.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"algoedge/config"
	"algoedge/internal/broker"
	"algoedge/internal/engine"
	"algoedge/internal/lease"
	"algoedge/internal/ledger"
	"algoedge/internal/markethours"
	"algoedge/internal/metrics"
	"algoedge/internal/notification"
	"algoedge/internal/universe"
	"algoedge/pkg/mt5bridge"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	cfg := config.Load()

	uni, err := universe.Parse(cfg.UniverseSpec)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	log.Printf("[main] universe: %d instruments in %d tiers", uni.Size(), len(uni.Tiers()))

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("[main] create data dir: %v", err)
		}
	}
	store, err := ledger.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// One engine per account. The lease outlives a hung cycle but expires
	// fast enough for a standby instance to take over.
	acctLease := lease.New(cfg.RedisAddr, cfg.RedisPassword, cfg.AccountID, 3*cfg.CycleInterval)
	if err := acctLease.Acquire(ctx); err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer acctLease.Release(context.Background())

	met := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, nil, store.DB(), 30*time.Second)
	msrv := metrics.NewServer(cfg.MetricsAddr, health)
	msrv.Start()
	defer msrv.Stop(context.Background())

	bridge := mt5bridge.New(mt5bridge.Config{
		BaseURL:    cfg.BridgeBaseURL,
		APIKey:     cfg.BridgeAPIKey,
		AccountID:  cfg.AccountID,
		Password:   cfg.BridgePassword,
		TOTPSecret: cfg.BridgeTOTPSecret,
	})
	if err := bridge.Login(ctx); err != nil {
		log.Fatalf("[main] %v", err)
	}
	health.SetBridgeConnected(true)

	if cfg.BridgeStreamURL != "" {
		startQuoteStream(ctx, cfg, uni, health)
	}

	var notify notification.Notifier = notification.NewLogNotifier()
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notify = notification.Fanout{
			notification.NewLogNotifier(),
			notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID),
		}
	}

	gw := broker.NewAdapter(bridge, met)
	eng := engine.New(gw, store, uni, engine.Config{
		AccountID:   cfg.AccountID,
		RiskPercent: cfg.RiskPercent,
		Timeframe:   cfg.Timeframe,
	}, met)

	if err := eng.Reconcile(ctx); err != nil {
		log.Printf("[main] reconcile: %v", err)
	}

	runCycle := func() {
		now := time.Now()
		if !markethours.IsMarketOpen(now) {
			met.MarketState.Set(0)
			log.Printf("[main] %s", markethours.StatusString(now))
			return
		}
		met.MarketState.Set(1)

		if err := acctLease.Renew(ctx); err != nil {
			notify.Send(ctx, notification.Alert{
				Level: notification.AlertCritical, Title: "account lease lost",
				Message: err.Error(),
			})
			log.Fatalf("[main] lease lost, refusing to trade: %v", err)
		}

		cctx, ccancel := context.WithTimeout(ctx, cfg.CycleInterval)
		rep, err := eng.RunCycle(cctx)
		ccancel()
		if err != nil {
			log.Printf("[main] cycle failed: %v", err)
			notify.Send(ctx, notification.Alert{
				Level: notification.AlertCritical, Title: "cycle failed",
				Message: err.Error(),
			})
			return
		}
		health.SetLastCycleAt(time.Now())

		if len(rep.Opened) > 0 || len(rep.Closed) > 0 || len(rep.Errors) > 0 {
			level := notification.AlertInfo
			if len(rep.Errors) > 0 {
				level = notification.AlertWarning
			}
			notify.Send(ctx, notification.Alert{
				Level: level, Title: "cycle report", Message: rep.Summary(),
			})
		}
	}

	log.Printf("[main] engine started, cycle every %s", cfg.CycleInterval)
	runCycle()

	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[main] shutting down")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}

// startQuoteStream keeps a live feed open for health monitoring. The engine
// itself works from polled candles.
func startQuoteStream(ctx context.Context, cfg *config.Config, uni *universe.Universe, health *metrics.HealthStatus) {
	var symbols []string
	for _, tier := range uni.Tiers() {
		symbols = append(symbols, tier.Symbols...)
	}
	stream := mt5bridge.NewStream(cfg.BridgeStreamURL, cfg.BridgeAPIKey, symbols)
	stream.OnReconnect = func() { health.SetBridgeConnected(false) }

	go stream.Run(ctx)
	go func() {
		for range stream.Quotes() {
			health.SetBridgeConnected(true)
		}
	}()
	log.Printf("[main] quote stream started for %s", fmt.Sprint(symbols))
}

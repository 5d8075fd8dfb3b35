// Package config loads engine configuration from environment variables.
//
// A .env file in the working directory is honoured (loaded before reading)
// so local runs don't need exported credentials.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// MT5 bridge credentials
	BridgeBaseURL    string
	BridgeStreamURL  string
	BridgeAPIKey     string
	BridgePassword   string
	BridgeTOTPSecret string
	AccountID        string

	// Trading parameters
	RiskPercent   float64 // % of balance risked per trade, e.g. 1.0
	Timeframe     string  // candle timeframe, e.g. "15m", "1h"
	CycleInterval time.Duration
	UniverseSpec  string // "priority:SYM,SYM;priority:SYM,..." tiers

	// Infrastructure
	RedisAddr     string // empty = process-local lease only
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Notifications (optional)
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
// Credentials are required; everything else falls back to defaults.
func Load() *Config {
	// Best effort: a missing .env is fine, exported env vars still apply.
	_ = godotenv.Load()

	return &Config{
		BridgeBaseURL:    mustEnv("BRIDGE_BASE_URL"),
		BridgeStreamURL:  getEnv("BRIDGE_STREAM_URL", ""),
		BridgeAPIKey:     mustEnv("BRIDGE_API_KEY"),
		BridgePassword:   mustEnv("BRIDGE_PASSWORD"),
		BridgeTOTPSecret: mustEnv("BRIDGE_TOTP_SECRET"),
		AccountID:        mustEnv("ACCOUNT_ID"),

		RiskPercent:   getEnvFloat("RISK_PERCENT", 1.0),
		Timeframe:     getEnv("TIMEFRAME", "15m"),
		CycleInterval: getEnvDuration("CYCLE_INTERVAL", 5*time.Minute),

		// Default: majors first, yen crosses second, metals last
		UniverseSpec: getEnv("UNIVERSE", "3:EURUSD,GBPUSD,USDJPY,AUDUSD;2:EURJPY,GBPJPY,EURGBP;1:XAUUSD,XAGUSD"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/ledger.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[config] ignoring invalid %s=%q, using %.2f", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] ignoring invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the decision engine.
type Metrics struct {
	CyclesTotal  prometheus.Counter
	CycleDur     prometheus.Histogram
	CycleErrors  prometheus.Counter
	SignalsTotal *prometheus.CounterVec // labels: kind=scored|forced

	TradesOpened  prometheus.Counter
	TradesClosed  prometheus.Counter
	PartialCloses prometheus.Counter
	StopsMoved    prometheus.Counter

	GatewayCallDur *prometheus.HistogramVec // labels: method
	GatewayErrors  *prometheus.CounterVec   // labels: method

	OpenPositions  prometheus.Gauge
	AccountBalance prometheus.Gauge
	AccountEquity  prometheus.Gauge

	// Broker circuit breaker
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter

	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Total decision cycles run",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Wall-clock duration of one decision cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_cycle_errors_total",
			Help: "Non-fatal errors recorded across all cycles",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Signals produced (by kind: scored or forced)",
		}, []string{"kind"}),

		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_trades_opened_total",
			Help: "Trades opened at the venue",
		}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_trades_closed_total",
			Help: "Positions fully closed by the engine",
		}),
		PartialCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_partial_closes_total",
			Help: "Partial position closes executed",
		}),
		StopsMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_stops_moved_total",
			Help: "Stop-loss modifications executed",
		}),

		GatewayCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_gateway_call_duration_seconds",
			Help:    "Venue gateway call latency (by method)",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		GatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_gateway_errors_total",
			Help: "Venue gateway call failures (by method)",
		}, []string{"method"}),

		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Open positions at the venue after the last cycle",
		}),
		AccountBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_account_balance",
			Help: "Account balance at the last cycle, account currency",
		}),
		AccountEquity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_account_equity",
			Help: "Account equity at the last cycle, account currency",
		}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_broker_circuit_breaker_state",
			Help: "Broker circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_broker_circuit_breaker_trips_total",
			Help: "Times the broker circuit breaker tripped open",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDur,
		m.CycleErrors,
		m.SignalsTotal,
		m.TradesOpened,
		m.TradesClosed,
		m.PartialCloses,
		m.StopsMoved,
		m.GatewayCallDur,
		m.GatewayErrors,
		m.OpenPositions,
		m.AccountBalance,
		m.AccountEquity,
		m.BreakerState,
		m.BreakerTrips,
		m.MarketState,
	)

	return m
}

// HealthStatus represents the engine's dependency health.
type HealthStatus struct {
	mu sync.RWMutex

	BridgeConnected bool      `json:"bridge_connected"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	LastCycleAt     time.Time `json:"last_cycle_at"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetBridgeConnected(v bool) {
	h.mu.Lock()
	h.BridgeConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycleAt(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.BridgeConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	cycleAge := ""
	if !h.LastCycleAt.IsZero() {
		cycleAge = time.Since(h.LastCycleAt).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		BridgeConnected bool    `json:"bridge_connected"`
		LastCycleAt     string  `json:"last_cycle_at"`
		CycleAge        string  `json:"cycle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		BridgeConnected: h.BridgeConnected,
		LastCycleAt:     h.LastCycleAt.Format(time.RFC3339),
		CycleAge:        cycleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

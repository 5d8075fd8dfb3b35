// Package mt5bridge is a client for the MT5 REST bridge: session handling,
// account and market data, order placement, and the quote stream.
//
// Usage:
//
//	c := mt5bridge.New(mt5bridge.Config{BaseURL: "...", APIKey: "...", AccountID: "...", Password: "...", TOTPSecret: "..."})
//	if err := c.Login(ctx); err != nil { log.Fatal(err) }
//	acct, err := c.AccountInfo(ctx)
package mt5bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Config configures the bridge client.
type Config struct {
	BaseURL    string
	APIKey     string
	AccountID  string
	Password   string
	TOTPSecret string        // base32 secret; a fresh code is generated per login
	Timeout    time.Duration // default 10s
	Debug      bool
}

// Client talks to the bridge REST API. Safe for use from one goroutine; the
// engine calls it sequentially within a cycle.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu           sync.Mutex
	sessionToken string
}

var routes = map[string]string{
	"session.login":          "/api/v1/session/login",
	"session.logout":         "/api/v1/session/logout",
	"account.info":           "/api/v1/account",
	"market.candles":         "/api/v1/candles",
	"positions.list":         "/api/v1/positions",
	"order.open":             "/api/v1/orders",
	"position.close":         "/api/v1/positions/close",
	"position.close_partial": "/api/v1/positions/close_partial",
	"position.modify":        "/api/v1/positions/modify",
	"history.deals":          "/api/v1/history/deals",
}

// New creates a bridge client. Call Login before any other method.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// envelope is the bridge's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login opens a session. The one-time code is generated from the TOTP secret
// at call time, so re-login after expiry needs no operator involvement.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generate: %w", err)
	}

	var data struct {
		Token string `json:"token"`
	}
	params := map[string]any{
		"account":  c.cfg.AccountID,
		"password": c.cfg.Password,
		"totp":     code,
	}
	if err := c.do(ctx, http.MethodPost, "session.login", params, &data); err != nil {
		return fmt.Errorf("bridge login: %w", err)
	}
	if data.Token == "" {
		return fmt.Errorf("bridge login: empty session token")
	}

	c.mu.Lock()
	c.sessionToken = data.Token
	c.mu.Unlock()
	log.Printf("[mt5bridge] session opened for account %s", c.cfg.AccountID)
	return nil
}

// Logout closes the session. Best effort; errors are returned but a dead
// session expires on its own.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "session.logout", nil, nil)
}

// AccountInfo returns the current account snapshot.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.do(ctx, http.MethodGet, "account.info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Candles returns up to count most-recent bars, oldest first.
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	var candles []Candle
	params := map[string]any{"symbol": symbol, "timeframe": timeframe, "count": count}
	if err := c.do(ctx, http.MethodGet, "market.candles", params, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// Positions returns all open positions on the account.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.do(ctx, http.MethodGet, "positions.list", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// OpenOrder places a market order and returns the venue's result.
func (c *Client) OpenOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	var res OrderResult
	params := map[string]any{
		"symbol": req.Symbol, "type": req.Type, "volume": req.Volume,
		"sl": req.StopLoss, "tp": req.TakeProfit, "comment": req.Comment,
	}
	if err := c.do(ctx, http.MethodPost, "order.open", params, &res); err != nil {
		return nil, err
	}
	if res.Ticket == "" {
		return nil, fmt.Errorf("order open: no ticket in response")
	}
	return &res, nil
}

// ClosePosition closes the full remaining volume of a position.
func (c *Client) ClosePosition(ctx context.Context, ticket string) error {
	return c.do(ctx, http.MethodPost, "position.close", map[string]any{"ticket": ticket}, nil)
}

// ClosePartial closes part of a position's volume, in lots.
func (c *Client) ClosePartial(ctx context.Context, ticket string, volume float64) error {
	params := map[string]any{"ticket": ticket, "volume": volume}
	return c.do(ctx, http.MethodPost, "position.close_partial", params, nil)
}

// ModifyPosition replaces the stop-loss and take-profit levels.
func (c *Client) ModifyPosition(ctx context.Context, ticket string, stopLoss, takeProfit float64) error {
	params := map[string]any{"ticket": ticket, "sl": stopLoss, "tp": takeProfit}
	return c.do(ctx, http.MethodPost, "position.modify", params, nil)
}

// Deals returns closed deals in [from, to].
func (c *Client) Deals(ctx context.Context, from, to time.Time) ([]Deal, error) {
	var deals []Deal
	params := map[string]any{"from": from.Unix(), "to": to.Unix()}
	if err := c.do(ctx, http.MethodGet, "history.deals", params, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// do performs one request against a named route. GET parameters go in the
// query string, everything else in a JSON body. On a 401 the session is
// re-opened once and the request retried.
func (c *Client) do(ctx context.Context, method, route string, params map[string]any, out any) error {
	status, err := c.doOnce(ctx, method, route, params, out)
	if status == http.StatusUnauthorized && route != "session.login" {
		log.Printf("[mt5bridge] session expired, re-login")
		if lerr := c.Login(ctx); lerr != nil {
			return lerr
		}
		_, err = c.doOnce(ctx, method, route, params, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, route string, params map[string]any, out any) (int, error) {
	path, ok := routes[route]
	if !ok {
		return 0, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := c.cfg.BaseURL + path

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, _ := json.Marshal(params)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	c.mu.Lock()
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
	c.mu.Unlock()

	if c.cfg.Debug {
		log.Printf("[mt5bridge] %s %s params=%v", method, reqURL, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%s: read body: %w", route, err)
	}
	if c.cfg.Debug {
		log.Printf("[mt5bridge] %s -> %d %s", route, resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("%s: parse response (status %d): %w", route, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%s: %s (status %d)", route, msg, resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: decode data: %w", route, err)
		}
	}
	return resp.StatusCode, nil
}

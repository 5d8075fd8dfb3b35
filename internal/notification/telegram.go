package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier delivers engine alerts to a Telegram chat. Cycle reports
// are key=value one-liners, so the body is rendered as a monospace block to
// keep the columns readable on a phone.
type TelegramNotifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for one bot token and target chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		apiBase:  telegramAPIBase,
		botToken: botToken,
		chatID:   strings.TrimSpace(chatID),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type tgMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type tgResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(tgMessage{
		ChatID:                t.chatID,
		Text:                  renderHTML(alert),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: encode alert: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	// The Bot API reports delivery failures (bad chat id, kicked bot,
	// flood limits) in the body, not only in the status code.
	var tr tgResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("telegram: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram: rejected (status %d): %s", resp.StatusCode, tr.Description)
	}

	log.Printf("[telegram] delivered %s alert: %s", alert.Level, alert.Title)
	return nil
}

// renderHTML lays an alert out as an icon + bold headline with the severity,
// followed by the body in a <pre> block so cycle summaries stay aligned.
func renderHTML(alert Alert) string {
	icon := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		icon = "⚠️"
	case AlertCritical:
		icon = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> [%s]", icon, html.EscapeString(alert.Title), alert.Level)
	if alert.Message != "" {
		fmt.Fprintf(&b, "\n<pre>%s</pre>", html.EscapeString(alert.Message))
	}
	return b.String()
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token         string
	defaultChatID string
	client        *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token. The
// defaultChatID receives notifications that carry no explicit recipient. It
// uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, defaultChatID string) *TelegramSender {
	return &TelegramSender{
		token:         token,
		defaultChatID: defaultChatID,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a message using the sendMessage API. A non-empty recipient is
// used as the target chat ID, so per-owner direct messages and the shared
// operations chat go through the same path. The title is rendered in bold.
func (t *TelegramSender) Send(ctx context.Context, recipient, title, message string) error {
	chatID := recipient
	if chatID == "" {
		chatID = t.defaultChatID
	}
	if chatID == "" {
		return fmt.Errorf("telegram: no chat id for notification %q", title)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	text := fmt.Sprintf("*%s*\n%s", title, message)

	payload := map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TelegramClient posts operator alerts to a Telegram chat via the Bot API.
// The zero-value client (no token) is disabled and drops messages silently.
type TelegramClient struct {
	token  string
	chatID string
	base   string
	client *http.Client
}

func NewTelegramClient(token string, chatID string) *TelegramClient {
	return &TelegramClient{
		token:  token,
		chatID: chatID,
		base:   "https://api.telegram.org",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TelegramClient) Enabled() bool {
	return c != nil && c.token != "" && c.chatID != ""
}

func (c *TelegramClient) SendMessage(ctx context.Context, text string) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.base, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram rejected message: %s", resp.Status)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Transport delivers one rendered message to one recipient. Implementations
// must treat a non-nil error as "not delivered": the dispatcher will leave
// the idempotency marker unset so the send can be retried.
type Transport interface {
	Send(ctx context.Context, recipient string, message string) error
}

// LogTransport writes outbound messages to the process log. It stands in for
// a real WhatsApp gateway in development and in tests.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, recipient string, message string) error {
	log.Printf("[notify] wa to %s: %s", recipient, message)
	return nil
}

// GatewayTransport posts messages to an HTTP WhatsApp gateway.
type GatewayTransport struct {
	url    string
	token  string
	client *http.Client
}

func NewGatewayTransport(url string, token string) *GatewayTransport {
	return &GatewayTransport{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *GatewayTransport) Send(ctx context.Context, recipient string, message string) error {
	body, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway rejected message: %s", resp.Status)
	}
	return nil
}

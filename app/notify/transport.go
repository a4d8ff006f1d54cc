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

// Message is one rendered notification. Text-only for the plain format;
// Embed carries the structured payload for rich and digest formats.
type Message struct {
	Text  string `json:"text,omitempty"`
	Embed *Embed `json:"embed,omitempty"`
}

// Embed is the chat platform's richly-formatted message shape.
type Embed struct {
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	Description string     `json:"description,omitempty"`
	Author      string     `json:"author,omitempty"`
	Footer      string     `json:"footer,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Fields      []Field    `json:"fields,omitempty"`
}

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Transport delivers a rendered message to a destination channel. Errors
// are recoverable per call and never fatal to a sweep.
type Transport interface {
	Send(ctx context.Context, destinationID string, msg Message) error
}

// WebhookTransport posts messages to the chat platform's per-channel
// webhook endpoint.
type WebhookTransport struct {
	client  *http.Client
	baseURL string
}

func NewWebhookTransport(baseURL string) *WebhookTransport {
	return &WebhookTransport{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
	}
}

func (t *WebhookTransport) Send(ctx context.Context, destinationID string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/"+destinationID+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("message delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("message delivery failed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

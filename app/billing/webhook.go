package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// WebhookEvent is an inbound processor callback. The payload is only
// trusted after its signature verifies.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the processor's "t=...,v1=..." signature header:
// HMAC-SHA256 over "{timestamp}.{payload}" with the shared secret. A
// mismatch is a hard rejection, never silently ignored.
func VerifySignature(secret string, payload []byte, header string) error {
	var timestamp, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			v1 = value
		}
	}

	if timestamp == "" || v1 == "" {
		return ErrWebhookVerification
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(v1)) != 1 {
		return ErrWebhookVerification
	}
	return nil
}

// HandleWebhook verifies and applies one processor callback.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := VerifySignature(s.webhookSecret, payload, signature); err != nil {
		return err
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook event: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, &event)
	case "customer.subscription.updated", "customer.subscription.deleted":
		return s.handleSubscriptionChanged(ctx, &event)
	default:
		slog.Debug("Ignoring webhook event", "type", event.Type, "id", event.ID)
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *WebhookEvent) error {
	var session struct {
		Customer     string            `json:"customer"`
		Subscription string            `json:"subscription"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	scope := session.Metadata["scope"]
	if scope == "" {
		return fmt.Errorf("checkout session %s carries no scope metadata", event.ID)
	}

	tier, err := ParseTier(session.Metadata["tier"])
	if err != nil {
		return err
	}

	return s.ActivateTier(ctx, scope, tier, session.Customer, session.Subscription)
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, event *WebhookEvent) error {
	var sub struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription object: %w", err)
	}

	scope := sub.Metadata["scope"]
	if scope == "" {
		slog.Warn("Subscription event carries no scope metadata", "id", event.ID, "type", event.Type)
		return nil
	}

	_, err := s.Refresh(ctx, scope)
	return err
}

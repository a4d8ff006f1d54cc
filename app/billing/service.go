package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/courant-io/courant/app/store"
)

const defaultProcessorBase = "https://api.stripe.com/v1"

// Service talks to the external payment processor and owns the billing
// record state machine (upgrade on payment success, downgrade on
// cancellation/expiry).
type Service struct {
	store         store.Store
	gate          *Gate
	client        *http.Client
	secretKey     string
	webhookSecret string
	processorBase string

	premiumPriceID    string
	enterprisePriceID string
}

func NewService(st store.Store, gate *Gate, secretKey, webhookSecret string) *Service {
	return &Service{
		store:             st,
		gate:              gate,
		client:            &http.Client{Timeout: 30 * time.Second},
		secretKey:         secretKey,
		webhookSecret:     webhookSecret,
		processorBase:     defaultProcessorBase,
		premiumPriceID:    "price_premium",
		enterprisePriceID: "price_enterprise",
	}
}

// SetProcessorBase overrides the processor endpoint; used by tests.
func (s *Service) SetProcessorBase(base string) {
	s.processorBase = base
}

// CreateCheckout creates a hosted checkout session for a tier upgrade and
// returns its URL.
func (s *Service) CreateCheckout(ctx context.Context, scope string, tier Tier) (string, error) {
	if tier == TierFree {
		return "", fmt.Errorf("%w: free tier requires no payment", ErrInvalidTier)
	}

	priceID := s.premiumPriceID
	if tier == TierEnterprise {
		priceID = s.enterprisePriceID
	}

	form := url.Values{}
	form.Set("success_url", "https://courant.example.com/success")
	form.Set("cancel_url", "https://courant.example.com/cancel")
	form.Set("mode", "subscription")
	form.Set("payment_method_types[]", "card")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[scope]", scope)
	form.Set("metadata[tier]", string(tier))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.processorBase+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("checkout session request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("checkout session creation failed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("failed to decode checkout response: %w", err)
	}

	return session.URL, nil
}

// ActivateTier applies a successful payment to the tenant's record.
func (s *Service) ActivateTier(ctx context.Context, scope string, tier Tier, customerID, subscriptionID string) error {
	record, err := s.gate.LoadRecord(ctx, scope)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	expires := now.AddDate(0, 0, 30)

	record.Tier = tier
	record.Active = true
	record.CustomerID = customerID
	record.SubscriptionID = subscriptionID
	record.LastPaymentAt = &now
	record.ExpiresAt = &expires

	if err := s.store.Put(ctx, store.CollectionBilling, scope, record); err != nil {
		return fmt.Errorf("failed to persist billing record: %w", err)
	}

	slog.Info("Tier activated", "scope", scope, "tier", tier)
	return nil
}

// Cancel cancels the processor subscription and downgrades the record to
// free. A processor-side failure is logged; the local downgrade proceeds.
func (s *Service) Cancel(ctx context.Context, scope string) error {
	record, err := s.gate.LoadRecord(ctx, scope)
	if err != nil {
		return err
	}

	if record.SubscriptionID != "" {
		if err := s.deleteSubscription(ctx, record.SubscriptionID); err != nil {
			slog.Warn("Processor subscription cancellation failed", "scope", scope, "error", err)
		}
	}

	now := time.Now().UTC()
	record.Tier = TierFree
	record.Active = false
	record.ExpiresAt = &now
	record.SubscriptionID = ""

	if err := s.store.Put(ctx, store.CollectionBilling, scope, record); err != nil {
		return fmt.Errorf("failed to persist billing record: %w", err)
	}

	slog.Info("Subscription cancelled", "scope", scope)
	return nil
}

// Refresh pulls the processor's view of the subscription and reconciles
// the local record, expiring overdue paid tiers down to free.
func (s *Service) Refresh(ctx context.Context, scope string) (*Record, error) {
	record, err := s.gate.LoadRecord(ctx, scope)
	if err != nil {
		return nil, err
	}

	if record.SubscriptionID != "" {
		status, periodEnd, err := s.getSubscription(ctx, record.SubscriptionID)
		if err != nil {
			slog.Warn("Processor subscription lookup failed", "scope", scope, "error", err)
		} else {
			switch status {
			case "active":
				record.Active = true
				if periodEnd != nil {
					record.ExpiresAt = periodEnd
				}
			case "canceled", "unpaid", "past_due":
				now := time.Now().UTC()
				record.Active = false
				record.Tier = TierFree
				record.ExpiresAt = &now
			default:
				slog.Warn("Unhandled processor subscription status", "scope", scope, "status", status)
			}
			if err := s.store.Put(ctx, store.CollectionBilling, scope, record); err != nil {
				slog.Warn("Failed to persist refreshed billing record", "scope", scope, "error", err)
			}
		}
	}

	now := time.Now().UTC()
	if record.Tier != TierFree && record.ExpiresAt != nil && !record.ExpiresAt.After(now) {
		record.Tier = TierFree
		record.Active = false
		if err := s.store.Put(ctx, store.CollectionBilling, scope, record); err != nil {
			slog.Warn("Failed to persist expired billing record", "scope", scope, "error", err)
		}
		slog.Info("Subscription expired, downgraded to free", "scope", scope)
	}

	return record, nil
}

func (s *Service) deleteSubscription(ctx context.Context, subscriptionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.processorBase+"/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *Service) getSubscription(ctx context.Context, subscriptionID string) (string, *time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.processorBase+"/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var sub struct {
		Status           string `json:"status"`
		CurrentPeriodEnd int64  `json:"current_period_end"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", nil, err
	}

	var periodEnd *time.Time
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	return sub.Status, periodEnd, nil
}

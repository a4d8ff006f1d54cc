package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTier         = errors.New("invalid subscription tier")
	ErrWebhookVerification = errors.New("webhook signature verification failed")
)

type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// FeedLimit returns the maximum enabled sources a tenant on this tier may
// hold, or -1 for no limit.
func (t Tier) FeedLimit() int {
	switch t {
	case TierPremium, TierEnterprise:
		return -1
	default:
		return 3
	}
}

func (t Tier) PriceCents() int {
	switch t {
	case TierPremium:
		return 499
	case TierEnterprise:
		return 1999
	default:
		return 0
	}
}

func (t Tier) Description() string {
	switch t {
	case TierPremium:
		return "Unlimited sources, advanced filtering, priority support"
	case TierEnterprise:
		return "Unlimited sources, multi-workspace support, dedicated support"
	default:
		return "Up to 3 sources, RSS/Atom support"
	}
}

func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, nil
	case "premium":
		return TierPremium, nil
	case "enterprise":
		return TierEnterprise, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// Record is a tenant's billing state. Created lazily on first query,
// mutated by payment events, never deleted.
type Record struct {
	Scope          string     `json:"scope"`
	Tier           Tier       `json:"tier"`
	Active         bool       `json:"active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CustomerID     string     `json:"customer_id,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	LastPaymentAt  *time.Time `json:"last_payment_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FeedCount      int        `json:"feed_count"`
}

// Valid reports whether the record's tier currently applies. An expired or
// inactive record behaves as free for quota purposes.
func (r *Record) Valid(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return false
	}
	return true
}

// EffectiveTier resolves the tier the quota check should apply.
func (r *Record) EffectiveTier(now time.Time) Tier {
	if r.Valid(now) {
		return r.Tier
	}
	return TierFree
}

func NewFreeRecord(scope string, now time.Time) *Record {
	return &Record{
		Scope:     scope,
		Tier:      TierFree,
		Active:    true,
		CreatedAt: now,
	}
}

// Package api exposes the command surface: source registration, channel
// subscriptions, billing, and the inbound payment webhook.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courant-io/courant/app/billing"
	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/notify"
	"github.com/courant-io/courant/app/preview"
	"github.com/courant-io/courant/app/registry"
	"github.com/courant-io/courant/app/subscription"
)

const previewLimit = 200

func NewHandler(reg *registry.Registry, index *subscription.Index, fetcher *feed.Fetcher,
	gate *billing.Gate, payments *billing.Service, extractor *preview.Extractor, version string) *Handler {
	return &Handler{
		reg:       reg,
		index:     index,
		fetcher:   fetcher,
		gate:      gate,
		payments:  payments,
		extractor: extractor,
		version:   version,
	}
}

func scopeOf(c *gin.Context) string {
	if scope := c.GetHeader(scopeHeader); scope != "" {
		return scope
	}
	return feed.ScopeGlobal
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

func (h *Handler) RegisterSource(c *gin.Context) {
	var req registerSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	scope := scopeOf(c)
	source, err := h.reg.Register(c.Request.Context(), scope, req.Name, req.URL)
	switch {
	case errors.Is(err, feed.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "URL must start with http:// or https://"})
	case errors.Is(err, registry.ErrQuotaExceeded):
		c.JSON(http.StatusPaymentRequired, errorResponse{Error: "source limit reached for current tier; upgrade to add more"})
	case err != nil:
		slog.Error("Source registration failed", "scope", scope, "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to register source"})
	default:
		c.JSON(http.StatusCreated, source)
	}
}

func (h *Handler) ListSources(c *gin.Context) {
	scope := scopeOf(c)
	sources, err := h.reg.List(c.Request.Context(), scope)
	if err != nil {
		slog.Error("Source listing failed", "scope", scope, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list sources"})
		return
	}
	if sources == nil {
		sources = []*feed.Source{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (h *Handler) RemoveSource(c *gin.Context) {
	scope := scopeOf(c)
	id := c.Param("id")

	source, err := h.reg.Remove(c.Request.Context(), scope, id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "source not found"})
	case err != nil:
		// The in-memory removal stands; the durable copy reconciles later.
		slog.Error("Source removal did not fully persist", "scope", scope, "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "source removed but persistence failed"})
	default:
		c.JSON(http.StatusOK, source)
	}
}

// TestSource previews the source's newest item without touching the
// watermark or the seen-identity cache.
func (h *Handler) TestSource(c *gin.Context) {
	scope := scopeOf(c)
	id := c.Param("id")

	source, err := h.reg.Get(c.Request.Context(), scope, id)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "source not found"})
		return
	}

	detected, err := h.fetcher.Probe(c.Request.Context(), source.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	items, err := h.fetcher.Fetch(c.Request.Context(), source)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	resp := testSourceResponse{
		SourceID:  source.ID,
		Name:      source.Name,
		Type:      string(detected),
		ItemCount: len(items),
	}

	if len(items) > 0 {
		item := items[0]
		resp.Title = item.Title
		resp.Link = item.Link
		resp.Author = item.Author
		if item.PublishedAt != nil {
			resp.PublishedAt = item.PublishedAt.Format(time.RFC3339)
		}
		resp.Preview = h.previewOf(c, item)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) previewOf(c *gin.Context, item feed.Item) string {
	if item.Link != "" {
		if text, err := h.extractor.Extract(c.Request.Context(), item.Link, previewLimit); err == nil {
			return text
		}
	}
	return notify.Truncate(item.Summary, previewLimit)
}

func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	scope := scopeOf(c)

	// The source must exist within the tenant's scope before a channel may
	// follow it.
	if _, err := h.reg.Get(c.Request.Context(), scope, req.SourceID); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "source not found in this scope"})
		return
	}

	dest, err := h.index.Subscribe(c.Request.Context(), req.DestinationID, scope, req.SourceID)
	if err != nil {
		slog.Error("Subscribe failed", "destination", req.DestinationID, "source", req.SourceID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to subscribe"})
		return
	}

	c.JSON(http.StatusCreated, dest)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	destID := c.Param("destination")
	sourceID := c.Param("source")

	dest, err := h.index.Unsubscribe(c.Request.Context(), destID, sourceID)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dest)
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	dest, err := h.index.Get(c.Param("destination"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "destination not found"})
		return
	}
	c.JSON(http.StatusOK, dest)
}

func (h *Handler) Status(c *gin.Context) {
	scope := scopeOf(c)

	sources, err := h.reg.List(c.Request.Context(), scope)
	if err != nil {
		slog.Error("Status query failed", "scope", scope, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to gather status"})
		return
	}

	enabled := 0
	for _, source := range sources {
		if source.Enabled {
			enabled++
		}
	}
	destinations, subscriptions := h.index.Counts(scope)

	c.JSON(http.StatusOK, statusResponse{
		Scope:         scope,
		Sources:       len(sources),
		Enabled:       enabled,
		Destinations:  destinations,
		Subscriptions: subscriptions,
		Version:       h.version,
	})
}

func (h *Handler) BillingStatus(c *gin.Context) {
	scope := scopeOf(c)

	record, err := h.payments.Refresh(c.Request.Context(), scope)
	if err != nil {
		slog.Error("Billing status failed", "scope", scope, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load billing record"})
		return
	}
	record.FeedCount = h.reg.EnabledCount(scope)

	c.JSON(http.StatusOK, record)
}

func (h *Handler) Upgrade(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	tier, err := billing.ParseTier(req.Tier)
	if err != nil || tier == billing.TierFree {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "tier must be premium or enterprise"})
		return
	}

	scope := scopeOf(c)
	checkoutURL, err := h.payments.CreateCheckout(c.Request.Context(), scope, tier)
	if err != nil {
		slog.Error("Checkout creation failed", "scope", scope, "tier", tier, "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Error: "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, checkoutResponse{
		Tier:        string(tier),
		PriceCents:  tier.PriceCents(),
		Description: tier.Description(),
		CheckoutURL: checkoutURL,
	})
}

func (h *Handler) CancelSubscription(c *gin.Context) {
	scope := scopeOf(c)

	record, err := h.gate.LoadRecord(c.Request.Context(), scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load billing record"})
		return
	}
	if record.Tier == billing.TierFree {
		c.JSON(http.StatusOK, gin.H{"status": "already on the free tier"})
		return
	}

	if err := h.payments.Cancel(c.Request.Context(), scope); err != nil {
		slog.Error("Cancellation failed", "scope", scope, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to cancel subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// PaymentWebhook verifies and applies an inbound processor callback. A
// signature mismatch is a hard rejection with no state mutation.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read body"})
		return
	}

	signature := c.GetHeader("Payment-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing signature header"})
		return
	}

	err = h.payments.HandleWebhook(c.Request.Context(), payload, signature)
	switch {
	case errors.Is(err, billing.ErrWebhookVerification):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
	case err != nil:
		slog.Error("Webhook processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "processing failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

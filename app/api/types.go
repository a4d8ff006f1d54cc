package api

import (
	"github.com/courant-io/courant/app/billing"
	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/preview"
	"github.com/courant-io/courant/app/registry"
	"github.com/courant-io/courant/app/subscription"
)

type Handler struct {
	reg       *registry.Registry
	index     *subscription.Index
	fetcher   *feed.Fetcher
	gate      *billing.Gate
	payments  *billing.Service
	extractor *preview.Extractor
	version   string
}

type registerSourceRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

type subscribeRequest struct {
	DestinationID string `json:"destination_id" binding:"required"`
	SourceID      string `json:"source_id" binding:"required"`
}

type upgradeRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type testSourceResponse struct {
	SourceID    string `json:"source_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	ItemCount   int    `json:"item_count"`
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Author      string `json:"author,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Preview     string `json:"preview,omitempty"`
}

type statusResponse struct {
	Scope         string `json:"scope"`
	Sources       int    `json:"sources"`
	Enabled       int    `json:"enabled"`
	Destinations  int    `json:"destinations"`
	Subscriptions int    `json:"subscriptions"`
	Version       string `json:"version"`
}

type checkoutResponse struct {
	Tier        string `json:"tier"`
	PriceCents  int    `json:"price_cents"`
	Description string `json:"description"`
	CheckoutURL string `json:"checkout_url"`
}

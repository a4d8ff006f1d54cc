// Package dedup decides which fetched items are newly seen. The primary
// policy compares each item's published time against the source's
// last-seen watermark; undated items are backstopped by a bounded
// seen-identity cache so they deliver once per retention window instead of
// on every sweep. Delivery remains at-least-once: a cache loss or
// retention expiry can re-deliver an undated item.
package dedup

import (
	"context"
	"time"

	"github.com/courant-io/courant/app/feed"
)

// SeenTTL bounds seen-identity retention.
const SeenTTL = 14 * 24 * time.Hour

// SeenCache remembers emitted item identities. Implementations degrade to
// "not seen" on error: a cache fault may duplicate a delivery but never
// suppresses one.
type SeenCache interface {
	Seen(ctx context.Context, identity string) bool
	MarkSeen(ctx context.Context, identity string)
}

type Deduplicator struct {
	cache SeenCache
}

func New(cache SeenCache) *Deduplicator {
	return &Deduplicator{cache: cache}
}

// Filter returns the items considered new for the source: published after
// the watermark (or undated), and not in the seen cache. Input order is
// preserved. Filter itself marks nothing; the caller records the items
// with MarkDelivered once dispatch has gone through, so a sweep whose
// deliveries all fail retries them on the next pass.
func (d *Deduplicator) Filter(ctx context.Context, source *feed.Source, items []feed.Item) []feed.Item {
	var fresh []feed.Item
	for _, item := range items {
		if item.PublishedAt != nil && source.LastSeenAt != nil &&
			!item.PublishedAt.After(*source.LastSeenAt) {
			continue
		}
		if d.cache.Seen(ctx, item.Identity) {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

// MarkDelivered records the items' identities in the seen cache.
func (d *Deduplicator) MarkDelivered(ctx context.Context, items []feed.Item) {
	for _, item := range items {
		d.cache.MarkSeen(ctx, item.Identity)
	}
}

// Watermark computes the post-poll watermark: the maximum published time
// observed, or the poll time when no item carries one.
func Watermark(items []feed.Item, pollTime time.Time) time.Time {
	watermark := time.Time{}
	for _, item := range items {
		if item.PublishedAt != nil && item.PublishedAt.After(watermark) {
			watermark = *item.PublishedAt
		}
	}
	if watermark.IsZero() {
		return pollTime
	}
	return watermark
}

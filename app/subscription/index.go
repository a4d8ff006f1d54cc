// Package subscription owns delivery destinations and which sources each
// destination follows.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/store"
)

var ErrNotFound = errors.New("destination not found")

type deliveryKey struct {
	destination string
	source      string
}

type Index struct {
	store store.Store

	mu           sync.RWMutex
	destinations map[string]*Destination
	lastDelivery map[deliveryKey]time.Time
	loaded       bool
}

func NewIndex(st store.Store) *Index {
	return &Index{
		store:        st,
		destinations: make(map[string]*Destination),
		lastDelivery: make(map[deliveryKey]time.Time),
	}
}

// Load hydrates every destination from the store; called once at startup.
func (ix *Index) Load(ctx context.Context) error {
	var all []Destination
	if err := ix.store.All(ctx, store.CollectionDestinations, &all); err != nil {
		return fmt.Errorf("failed to load destinations: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i := range all {
		dest := all[i]
		ix.destinations[dest.ID] = &dest
	}
	ix.loaded = true

	slog.Info("Loaded destinations", "count", len(all))
	return nil
}

// Subscribe adds a source to the destination's set, creating the
// destination with default preferences on first subscribe. The add is
// idempotent. The durable save failure after an in-memory success is
// logged only.
func (ix *Index) Subscribe(ctx context.Context, destID, scope, sourceID string) (*Destination, error) {
	ix.mu.Lock()
	dest, ok := ix.destinations[destID]
	if !ok {
		dest = &Destination{
			ID:      destID,
			Scope:   scope,
			Sources: []string{},
			Prefs:   DefaultPrefs(),
		}
		ix.destinations[destID] = dest
	}
	if !slices.Contains(dest.Sources, sourceID) {
		dest.Sources = append(dest.Sources, sourceID)
	}
	copied := cloneDestination(dest)
	ix.mu.Unlock()

	ix.persist(ctx, copied)
	return copied, nil
}

// Unsubscribe removes a source from the destination's set. An empty
// remaining set is kept: destinations are never hard-deleted.
func (ix *Index) Unsubscribe(ctx context.Context, destID, sourceID string) (*Destination, error) {
	ix.mu.Lock()
	dest, ok := ix.destinations[destID]
	if !ok {
		ix.mu.Unlock()
		return nil, ErrNotFound
	}
	idx := slices.Index(dest.Sources, sourceID)
	if idx < 0 {
		ix.mu.Unlock()
		return nil, fmt.Errorf("%w: destination %s does not follow source %s", ErrNotFound, destID, sourceID)
	}
	dest.Sources = slices.Delete(dest.Sources, idx, idx+1)
	copied := cloneDestination(dest)
	ix.mu.Unlock()

	ix.persist(ctx, copied)
	return copied, nil
}

// Get returns the destination or ErrNotFound.
func (ix *Index) Get(destID string) (*Destination, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	dest, ok := ix.destinations[destID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDestination(dest), nil
}

// UpdatePrefs replaces the destination's notification preferences.
func (ix *Index) UpdatePrefs(ctx context.Context, destID string, prefs Prefs) (*Destination, error) {
	ix.mu.Lock()
	dest, ok := ix.destinations[destID]
	if !ok {
		ix.mu.Unlock()
		return nil, ErrNotFound
	}
	dest.Prefs = prefs
	copied := cloneDestination(dest)
	ix.mu.Unlock()

	ix.persist(ctx, copied)
	return copied, nil
}

// UpdateFilters replaces the destination's filters.
func (ix *Index) UpdateFilters(ctx context.Context, destID string, filters Filters) (*Destination, error) {
	ix.mu.Lock()
	dest, ok := ix.destinations[destID]
	if !ok {
		ix.mu.Unlock()
		return nil, ErrNotFound
	}
	dest.Filters = filters
	copied := cloneDestination(dest)
	ix.mu.Unlock()

	ix.persist(ctx, copied)
	return copied, nil
}

// Resolve returns the destinations subscribed to the source, restricted to
// the source's tenant scope. Cross-tenant leakage here would be a
// correctness violation, so the scope comparison is unconditional.
func (ix *Index) Resolve(scope, sourceID string) []*Destination {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matched []*Destination
	for _, dest := range ix.destinations {
		if dest.Scope != scope {
			continue
		}
		if slices.Contains(dest.Sources, sourceID) {
			matched = append(matched, cloneDestination(dest))
		}
	}
	return matched
}

// AdmitInterval enforces the destination's minimum publish interval for
// one (destination, source) pair: an item published less than the interval
// after the previously delivered item is suppressed. Undated items always
// pass. Admission records the item as the new last-delivered mark.
func (ix *Index) AdmitInterval(destID string, sourceID string, item *feed.Item, interval time.Duration) bool {
	if interval <= 0 || item.PublishedAt == nil {
		return true
	}

	key := deliveryKey{destination: destID, source: sourceID}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	last, ok := ix.lastDelivery[key]
	if ok && item.PublishedAt.Sub(last) < interval {
		return false
	}
	ix.lastDelivery[key] = *item.PublishedAt
	return true
}

// Counts reports destination and subscription totals for one scope.
func (ix *Index) Counts(scope string) (destinations, subscriptions int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, dest := range ix.destinations {
		if dest.Scope != scope {
			continue
		}
		destinations++
		subscriptions += len(dest.Sources)
	}
	return destinations, subscriptions
}

func (ix *Index) persist(ctx context.Context, dest *Destination) {
	if err := ix.store.Put(ctx, store.CollectionDestinations, dest.ID, dest); err != nil {
		slog.Warn("Failed to persist destination", "destination", dest.ID, "error", err)
	}
}

func cloneDestination(d *Destination) *Destination {
	copied := *d
	copied.Sources = slices.Clone(d.Sources)
	copied.Filters.IncludeTags = slices.Clone(d.Filters.IncludeTags)
	copied.Filters.ExcludeTags = slices.Clone(d.Filters.ExcludeTags)
	copied.Filters.Keywords = slices.Clone(d.Filters.Keywords)
	return &copied
}

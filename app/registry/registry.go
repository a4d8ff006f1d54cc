// Package registry owns the set of configured sources, partitioned by
// tenant scope, as a read-through/write-through cache over the document
// store. The map lock guards only in-memory state and is never held
// across a store round trip or a feed fetch; a separate per-scope
// registration lock serializes the quota check with the insert it
// authorizes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/store"
)

var (
	ErrQuotaExceeded = errors.New("source quota exceeded for current tier")
	ErrNotFound      = errors.New("source not found")
)

// Admitter gates registration against the tenant's tier quota.
type Admitter interface {
	Admit(ctx context.Context, scope string) (bool, error)
}

type Registry struct {
	store store.Store
	gate  Admitter

	mu      sync.RWMutex
	sources map[string]*feed.Source // keyed by scope:id
	loaded  map[string]bool         // scopes hydrated from the store

	admitMu sync.Mutex
	admits  map[string]*sync.Mutex // per-scope registration locks
}

func New(st store.Store, gate Admitter) *Registry {
	return &Registry{
		store:   st,
		gate:    gate,
		sources: make(map[string]*feed.Source),
		loaded:  make(map[string]bool),
		admits:  make(map[string]*sync.Mutex),
	}
}

// admitLock returns the scope's registration lock. Concurrent
// registrations racing past the gate would all observe the same
// pre-insert count, so the check and the insert must run as one
// critical section per tenant.
func (r *Registry) admitLock(scope string) *sync.Mutex {
	r.admitMu.Lock()
	defer r.admitMu.Unlock()

	lock, ok := r.admits[scope]
	if !ok {
		lock = &sync.Mutex{}
		r.admits[scope] = lock
	}
	return lock
}

// Register validates, admits, and inserts a source. Re-registering the
// same endpoint for the same tenant overwrites: ids derive
// deterministically from the URL's host. A durable-write failure rolls
// back the in-memory insertion so no partial state survives.
func (r *Registry) Register(ctx context.Context, scope, name, rawURL string) (*feed.Source, error) {
	id, err := feed.SourceIDFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := r.hydrate(ctx, scope); err != nil {
		return nil, err
	}

	if scope != feed.ScopeGlobal {
		lock := r.admitLock(scope)
		lock.Lock()
		defer lock.Unlock()

		admitted, err := r.gate.Admit(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("quota check failed: %w", err)
		}
		if !admitted {
			return nil, ErrQuotaExceeded
		}
	}

	source := &feed.Source{
		ID:      id,
		Name:    name,
		URL:     rawURL,
		Type:    feed.TypeRSS,
		Enabled: true,
		Tags:    []string{},
		Scope:   scope,
	}

	key := source.Key()

	r.mu.Lock()
	previous := r.sources[key]
	r.sources[key] = source
	r.mu.Unlock()

	if err := r.store.Put(ctx, store.CollectionSources, key, source); err != nil {
		r.mu.Lock()
		if previous != nil {
			r.sources[key] = previous
		} else {
			delete(r.sources, key)
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to persist source: %w", err)
	}

	return source, nil
}

// Remove deletes the source from memory first, then from the store. A
// durable deletion failure is reported but the in-memory removal stands;
// the inconsistency window self-heals on the next hydration.
func (r *Registry) Remove(ctx context.Context, scope, id string) (*feed.Source, error) {
	if err := r.hydrate(ctx, scope); err != nil {
		return nil, err
	}

	key := feed.SourceKey(scope, id)

	r.mu.Lock()
	source, ok := r.sources[key]
	if ok {
		delete(r.sources, key)
	}
	r.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	if err := r.store.Delete(ctx, store.CollectionSources, key); err != nil {
		return source, fmt.Errorf("failed to delete source from store: %w", err)
	}

	return source, nil
}

// Get returns the tenant's source or ErrNotFound; never another tenant's.
func (r *Registry) Get(ctx context.Context, scope, id string) (*feed.Source, error) {
	if err := r.hydrate(ctx, scope); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.sources[feed.SourceKey(scope, id)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *source
	return &copied, nil
}

// List returns the tenant-scoped view of sources.
func (r *Registry) List(ctx context.Context, scope string) ([]*feed.Source, error) {
	if err := r.hydrate(ctx, scope); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var sources []*feed.Source
	for _, source := range r.sources {
		if source.Scope == scope {
			copied := *source
			sources = append(sources, &copied)
		}
	}
	return sources, nil
}

// EnabledCount counts the tenant's enabled sources from memory; used by
// the tier gate.
func (r *Registry) EnabledCount(scope string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, source := range r.sources {
		if source.Scope == scope && source.Enabled {
			count++
		}
	}
	return count
}

// EnabledSources snapshots every enabled source across all scopes for a
// sweep. The snapshot is taken under the read lock; the sweep's network
// work happens without it.
func (r *Registry) EnabledSources() []*feed.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sources []*feed.Source
	for _, source := range r.sources {
		if source.Enabled {
			copied := *source
			sources = append(sources, &copied)
		}
	}
	return sources
}

// UpdateWatermark advances the source's last-seen watermark in memory and
// best-effort persists it. Persistence failure is logged only: the
// in-memory state is the running process's source of truth.
func (r *Registry) UpdateWatermark(ctx context.Context, scope, id string, watermark time.Time) {
	key := feed.SourceKey(scope, id)

	r.mu.Lock()
	source, ok := r.sources[key]
	if ok {
		w := watermark.UTC()
		source.LastSeenAt = &w
		source.LastError = ""
	}
	var copied feed.Source
	if ok {
		copied = *source
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.store.Put(ctx, store.CollectionSources, key, &copied); err != nil {
		slog.Warn("Failed to persist source watermark", "source", key, "error", err)
	}
}

// RecordFailure notes the last fetch error on the source without touching
// the watermark.
func (r *Registry) RecordFailure(scope, id string, fetchErr error) {
	key := feed.SourceKey(scope, id)

	r.mu.Lock()
	if source, ok := r.sources[key]; ok {
		source.LastError = fetchErr.Error()
	}
	r.mu.Unlock()
}

// Seed installs a source directly, bypassing the quota gate; used for
// bootstrap definitions in the global scope.
func (r *Registry) Seed(ctx context.Context, source *feed.Source) error {
	if err := r.hydrate(ctx, source.Scope); err != nil {
		return err
	}

	key := source.Key()

	r.mu.Lock()
	// A hydrated copy carries the durable watermark; keep it.
	if existing, ok := r.sources[key]; ok && existing.LastSeenAt != nil {
		source.LastSeenAt = existing.LastSeenAt
	}
	r.sources[key] = source
	r.mu.Unlock()

	if err := r.store.Put(ctx, store.CollectionSources, key, source); err != nil {
		return fmt.Errorf("failed to persist seeded source: %w", err)
	}
	return nil
}

// hydrate loads a scope's sources from the store on first access.
func (r *Registry) hydrate(ctx context.Context, scope string) error {
	r.mu.RLock()
	done := r.loaded[scope]
	r.mu.RUnlock()
	if done {
		return nil
	}

	var sources []feed.Source
	if err := r.store.Query(ctx, store.CollectionSources, "scope", scope, &sources); err != nil {
		return fmt.Errorf("failed to load sources for scope %s: %w", scope, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded[scope] {
		return nil
	}
	for i := range sources {
		source := sources[i]
		key := source.Key()
		if _, ok := r.sources[key]; !ok {
			r.sources[key] = &source
		}
	}
	r.loaded[scope] = true

	slog.Debug("Hydrated scope sources", "scope", scope, "count", len(sources))
	return nil
}

package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/courant-io/courant/app/store"
)

// SourceCounter reports how many enabled sources a tenant currently holds.
type SourceCounter interface {
	EnabledCount(scope string) int
}

// Gate decides whether a tenant may register another source. Admission is
// a side-effect-free read of the billing record: it never upgrades,
// downgrades, or otherwise mutates tier state.
type Gate struct {
	store   store.Store
	counter SourceCounter
}

func NewGate(st store.Store, counter SourceCounter) *Gate {
	return &Gate{store: st, counter: counter}
}

// SetCounter wires the source counter after construction; the registry
// and the gate reference each other.
func (g *Gate) SetCounter(counter SourceCounter) {
	g.counter = counter
}

// Admit returns true when the tenant's current enabled-source count is
// below the effective tier's limit, or the tier has no limit. The global
// scope is exempt.
func (g *Gate) Admit(ctx context.Context, scope string) (bool, error) {
	record, err := g.LoadRecord(ctx, scope)
	if err != nil {
		return false, err
	}

	limit := record.EffectiveTier(time.Now().UTC()).FeedLimit()
	if limit < 0 {
		return true, nil
	}

	return g.counter.EnabledCount(scope) < limit, nil
}

// LoadRecord fetches the tenant's billing record, creating a free-tier
// record on first query.
func (g *Gate) LoadRecord(ctx context.Context, scope string) (*Record, error) {
	var record Record
	err := g.store.Get(ctx, store.CollectionBilling, scope, &record)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	fresh := NewFreeRecord(scope, time.Now().UTC())
	if err := g.store.Put(ctx, store.CollectionBilling, scope, fresh); err != nil {
		// The record is lazily created again on the next query.
		slog.Warn("Failed to persist initial billing record", "scope", scope, "error", err)
	}
	return fresh, nil
}

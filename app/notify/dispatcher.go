// Package notify renders newly discovered items and delivers them to chat
// destinations with backpressure-aware pacing.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/subscription"
)

// BatchPause is the fixed delay between successive batches, the pipeline's
// only explicit backpressure against transport throttling. Static, not
// adaptive to observed throttling responses.
const BatchPause = 500 * time.Millisecond

type Dispatcher struct {
	transport Transport
	pause     time.Duration
	now       func() time.Time
}

func NewDispatcher(transport Transport) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		pause:     BatchPause,
		now:       time.Now,
	}
}

// Dispatch splits items into batches per the destination's preferences,
// renders each batch, and delivers it, pausing between batches. A no-op on
// empty input. The first send error aborts this destination's remaining
// batches and is returned; the caller isolates it from other destinations.
func (d *Dispatcher) Dispatch(ctx context.Context, destID string, items []feed.Item, prefs subscription.Prefs) error {
	if len(items) == 0 {
		return nil
	}

	batchSize := prefs.MaxItemsPerBatch
	if batchSize <= 0 {
		batchSize = subscription.DefaultPrefs().MaxItemsPerBatch
	}

	for start := 0; start < len(items); start += batchSize {
		if start > 0 {
			select {
			case <-time.After(d.pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		end := min(start+batchSize, len(items))
		batch := items[start:end]

		for _, msg := range Render(batch, prefs, d.now()) {
			if err := d.transport.Send(ctx, destID, msg); err != nil {
				return fmt.Errorf("failed to deliver batch to %s: %w", destID, err)
			}
		}

		slog.Debug("Batch delivered", "destination", destID, "items", len(batch), "format", prefs.Format)
	}

	return nil
}

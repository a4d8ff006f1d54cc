package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/courant-io/courant/app/dedup"
	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/notify"
	"github.com/courant-io/courant/app/registry"
	"github.com/courant-io/courant/app/subscription"
)

// PollSourceTask runs one source through the pipeline: fetch, dedup,
// resolve subscribers, dispatch, advance watermark. A fetch failure, or a
// sweep in which every delivery fails, leaves the watermark and the seen
// cache untouched and is retried on the next sweep, never inline. Partial
// delivery counts as progress: once any destination accepts the batch,
// the watermark advances and the items are marked seen.
type PollSourceTask struct {
	Task
	Source       *feed.Source
	fetcher      *feed.Fetcher
	deduplicator *dedup.Deduplicator
	reg          *registry.Registry
	index        *subscription.Index
	dispatcher   *notify.Dispatcher
}

func NewPollSourceTask(source *feed.Source, fetcher *feed.Fetcher, deduplicator *dedup.Deduplicator,
	reg *registry.Registry, index *subscription.Index, dispatcher *notify.Dispatcher) *PollSourceTask {
	return &PollSourceTask{
		Task:         NewTask(TaskTypePollSource, source.Key()),
		Source:       source,
		fetcher:      fetcher,
		deduplicator: deduplicator,
		reg:          reg,
		index:        index,
		dispatcher:   dispatcher,
	}
}

func (t *PollSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	pollTime := time.Now().UTC()

	items, err := t.fetcher.Fetch(ctx, t.Source)
	if err != nil {
		t.reg.RecordFailure(t.Source.Scope, t.Source.ID, err)
		return err
	}

	fresh := t.deduplicator.Filter(ctx, t.Source, items)

	attempted := 0
	delivered := 0
	var dispatchErr error
	if len(fresh) > 0 {
		for _, dest := range t.index.Resolve(t.Source.Scope, t.Source.ID) {
			matched := t.selectItems(dest, fresh)
			if len(matched) == 0 {
				continue
			}

			// A delivery failure for one destination never prevents
			// delivery to the others.
			attempted++
			if err := t.dispatcher.Dispatch(ctx, dest.ID, matched, dest.Prefs); err != nil {
				slog.Error("Dispatch failed", "source", t.SourceKey, "destination", dest.ID, "error", err)
				dispatchErr = err
				continue
			}
			delivered++
		}
	}

	// When every resolved destination rejected the batch, the watermark
	// and the seen cache stay untouched so the next sweep retries the
	// items instead of losing them.
	if attempted > 0 && delivered == 0 {
		t.reg.RecordFailure(t.Source.Scope, t.Source.ID, dispatchErr)
		return fmt.Errorf("all deliveries failed for %s: %w", t.SourceKey, dispatchErr)
	}

	t.deduplicator.MarkDelivered(ctx, fresh)
	t.reg.UpdateWatermark(ctx, t.Source.Scope, t.Source.ID, dedup.Watermark(items, pollTime))

	slog.Info("Task completed",
		"type", "PollSource",
		"source", t.SourceKey,
		"duration", t.GetDuration(),
		"total", len(items),
		"new", len(fresh),
		"destinations", delivered)

	return nil
}

// selectItems applies the destination's filters and minimum publish
// interval, preserving fetch order.
func (t *PollSourceTask) selectItems(dest *subscription.Destination, items []feed.Item) []feed.Item {
	var matched []feed.Item
	for i := range items {
		item := items[i]
		if !dest.Filters.Match(&item) {
			continue
		}
		if !t.index.AdmitInterval(dest.ID, t.Source.ID, &item, dest.Filters.MinPublishInterval) {
			continue
		}
		matched = append(matched, item)
	}
	return matched
}

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/courant-io/courant/app/feed"
)

func datedItem(identity string, published time.Time) feed.Item {
	return feed.Item{Identity: identity, Title: identity, PublishedAt: &published}
}

func TestFilterByWatermark(t *testing.T) {
	watermark := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	source := &feed.Source{ID: "example_com", LastSeenAt: &watermark}

	before := datedItem("before", watermark.Add(-time.Hour))
	at := datedItem("at", watermark)
	after := datedItem("after", watermark.Add(time.Hour))

	d := New(NewMemoryCache())
	fresh := d.Filter(context.Background(), source, []feed.Item{before, at, after})

	if len(fresh) != 1 {
		t.Fatalf("Expected 1 fresh item, got %d", len(fresh))
	}
	if fresh[0].Identity != "after" {
		t.Errorf("Expected only the post-watermark item, got %s", fresh[0].Identity)
	}
}

func TestFilterNoWatermarkPassesDatedItems(t *testing.T) {
	source := &feed.Source{ID: "example_com"}
	items := []feed.Item{
		datedItem("a", time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)),
		datedItem("b", time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC)),
	}

	d := New(NewMemoryCache())
	fresh := d.Filter(context.Background(), source, items)
	if len(fresh) != 2 {
		t.Errorf("Expected all items fresh on first poll, got %d", len(fresh))
	}
}

func TestFilterUndatedItemsSeenOnce(t *testing.T) {
	watermark := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	source := &feed.Source{ID: "example_com", LastSeenAt: &watermark}

	items := []feed.Item{
		{Identity: "undated-1", Title: "Undated"},
	}

	d := New(NewMemoryCache())
	ctx := context.Background()

	fresh := d.Filter(ctx, source, items)
	if len(fresh) != 1 {
		t.Fatalf("Expected undated item to pass the watermark, got %d", len(fresh))
	}
	d.MarkDelivered(ctx, fresh)

	// The same identity on the next sweep is suppressed by the seen cache.
	if fresh := d.Filter(ctx, source, items); len(fresh) != 0 {
		t.Errorf("Expected undated item to deliver once, got %d", len(fresh))
	}
}

func TestFilterRepeatsUntilDelivered(t *testing.T) {
	watermark := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	source := &feed.Source{ID: "example_com", LastSeenAt: &watermark}
	items := []feed.Item{{Identity: "undated-1", Title: "Undated"}}

	d := New(NewMemoryCache())
	ctx := context.Background()

	// Filtering alone records nothing: an item whose delivery never went
	// through stays eligible for the next sweep.
	d.Filter(ctx, source, items)
	if fresh := d.Filter(ctx, source, items); len(fresh) != 1 {
		t.Errorf("Expected undelivered item to stay fresh, got %d", len(fresh))
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	source := &feed.Source{ID: "example_com"}
	items := []feed.Item{
		datedItem("first", time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)),
		{Identity: "second"},
		datedItem("third", time.Date(2023, 7, 3, 11, 0, 0, 0, time.UTC)),
	}

	d := New(NewMemoryCache())
	fresh := d.Filter(context.Background(), source, items)
	if len(fresh) != 3 {
		t.Fatalf("Expected 3 fresh items, got %d", len(fresh))
	}
	for i, want := range []string{"first", "second", "third"} {
		if fresh[i].Identity != want {
			t.Errorf("Expected %s at position %d, got %s", want, i, fresh[i].Identity)
		}
	}
}

func TestWatermark(t *testing.T) {
	pollTime := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	early := time.Date(2023, 7, 3, 9, 0, 0, 0, time.UTC)
	late := time.Date(2023, 7, 3, 11, 0, 0, 0, time.UTC)

	items := []feed.Item{
		datedItem("a", late),
		datedItem("b", early),
		{Identity: "undated"},
	}

	if got := Watermark(items, pollTime); !got.Equal(late) {
		t.Errorf("Expected watermark %v, got %v", late, got)
	}

	// All-undated batches advance to the poll time.
	undated := []feed.Item{{Identity: "u1"}, {Identity: "u2"}}
	if got := Watermark(undated, pollTime); !got.Equal(pollTime) {
		t.Errorf("Expected poll-time watermark, got %v", got)
	}

	if got := Watermark(nil, pollTime); !got.Equal(pollTime) {
		t.Errorf("Expected poll-time watermark for empty batch, got %v", got)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := NewMemoryCache()
	current := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	ctx := context.Background()
	cache.MarkSeen(ctx, "id-1")

	if !cache.Seen(ctx, "id-1") {
		t.Error("Expected identity to be seen immediately after marking")
	}

	current = current.Add(SeenTTL - time.Minute)
	if !cache.Seen(ctx, "id-1") {
		t.Error("Expected identity to remain seen within the retention window")
	}

	current = current.Add(2 * time.Minute)
	if cache.Seen(ctx, "id-1") {
		t.Error("Expected identity to expire after the retention window")
	}
}

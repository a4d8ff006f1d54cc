package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/store"
)

func TestSubscribeCreatesDestination(t *testing.T) {
	ix := NewIndex(store.NewMemory())
	ctx := context.Background()

	dest, err := ix.Subscribe(ctx, "dest-1", "tenant-1", "example_com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if dest.ID != "dest-1" || dest.Scope != "tenant-1" {
		t.Errorf("Unexpected destination: %+v", dest)
	}
	if len(dest.Sources) != 1 || dest.Sources[0] != "example_com" {
		t.Errorf("Expected single subscription, got %v", dest.Sources)
	}
	if dest.Prefs.Format != FormatRich {
		t.Errorf("Expected default prefs on first subscribe, got %+v", dest.Prefs)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	ix := NewIndex(store.NewMemory())
	ctx := context.Background()

	ix.Subscribe(ctx, "dest-1", "tenant-1", "example_com")
	dest, err := ix.Subscribe(ctx, "dest-1", "tenant-1", "example_com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(dest.Sources) != 1 {
		t.Errorf("Expected duplicate subscribe to be a no-op, got %v", dest.Sources)
	}
}

func TestUnsubscribeKeepsEmptyDestination(t *testing.T) {
	ix := NewIndex(store.NewMemory())
	ctx := context.Background()

	ix.Subscribe(ctx, "dest-1", "tenant-1", "example_com")
	ix.UpdateFilters(ctx, "dest-1", Filters{Keywords: []string{"go"}})

	dest, err := ix.Unsubscribe(ctx, "dest-1", "example_com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(dest.Sources) != 0 {
		t.Errorf("Expected empty source set, got %v", dest.Sources)
	}

	// The destination and its settings survive with no subscriptions.
	kept, err := ix.Get("dest-1")
	if err != nil {
		t.Fatalf("Expected destination to survive, got: %v", err)
	}
	if len(kept.Filters.Keywords) != 1 {
		t.Errorf("Expected filters to survive, got %+v", kept.Filters)
	}
}

func TestUnsubscribeUnknown(t *testing.T) {
	ix := NewIndex(store.NewMemory())
	ctx := context.Background()

	if _, err := ix.Unsubscribe(ctx, "missing", "example_com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown destination, got: %v", err)
	}

	ix.Subscribe(ctx, "dest-1", "tenant-1", "example_com")
	if _, err := ix.Unsubscribe(ctx, "dest-1", "other_com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unfollowed source, got: %v", err)
	}
}

func TestResolveScopeIsolation(t *testing.T) {
	ix := NewIndex(store.NewMemory())
	ctx := context.Background()

	// Two tenants follow a source with the same id in their own scopes.
	ix.Subscribe(ctx, "dest-a", "tenant-a", "example_com")
	ix.Subscribe(ctx, "dest-b", "tenant-b", "example_com")

	matched := ix.Resolve("tenant-a", "example_com")
	if len(matched) != 1 {
		t.Fatalf("Expected exactly one destination, got %d", len(matched))
	}
	if matched[0].ID != "dest-a" {
		t.Errorf("Expected tenant-a's destination, got %s", matched[0].ID)
	}

	if got := ix.Resolve("tenant-c", "example_com"); len(got) != 0 {
		t.Errorf("Expected no destinations for unknown tenant, got %d", len(got))
	}
}

func TestLoadRestoresDestinations(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first := NewIndex(st)
	first.Subscribe(ctx, "dest-1", "tenant-1", "example_com")
	first.UpdatePrefs(ctx, "dest-1", Prefs{Format: FormatDigest, MaxItemsPerBatch: 10})

	second := NewIndex(st)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dest, err := second.Get("dest-1")
	if err != nil {
		t.Fatalf("Expected destination after reload, got: %v", err)
	}
	if dest.Prefs.Format != FormatDigest {
		t.Errorf("Expected digest prefs to survive reload, got %+v", dest.Prefs)
	}
	if len(dest.Sources) != 1 {
		t.Errorf("Expected subscriptions to survive reload, got %v", dest.Sources)
	}
}

func TestAdmitInterval(t *testing.T) {
	ix := NewIndex(store.NewMemory())

	base := time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)
	soon := base.Add(time.Minute)
	later := base.Add(2 * time.Hour)

	itemAt := func(ts time.Time) *feed.Item {
		return &feed.Item{Identity: "id", PublishedAt: &ts}
	}

	interval := time.Hour
	if !ix.AdmitInterval("dest-1", "src", itemAt(base), interval) {
		t.Error("Expected first item to be admitted")
	}
	if ix.AdmitInterval("dest-1", "src", itemAt(soon), interval) {
		t.Error("Expected item within the interval to be suppressed")
	}
	if !ix.AdmitInterval("dest-1", "src", itemAt(later), interval) {
		t.Error("Expected item beyond the interval to be admitted")
	}

	// The mark is per (destination, source) pair.
	if !ix.AdmitInterval("dest-2", "src", itemAt(soon), interval) {
		t.Error("Expected another destination to keep its own mark")
	}

	// Undated items and zero intervals always pass.
	if !ix.AdmitInterval("dest-1", "src", &feed.Item{Identity: "undated"}, interval) {
		t.Error("Expected undated item to pass")
	}
	if !ix.AdmitInterval("dest-1", "src", itemAt(soon), 0) {
		t.Error("Expected zero interval to pass everything")
	}
}

func TestCounts(t *testing.T) {
	ix := NewIndex(store.NewMemory())
	ctx := context.Background()

	ix.Subscribe(ctx, "dest-1", "tenant-1", "a_com")
	ix.Subscribe(ctx, "dest-1", "tenant-1", "b_com")
	ix.Subscribe(ctx, "dest-2", "tenant-1", "a_com")
	ix.Subscribe(ctx, "dest-3", "tenant-2", "a_com")

	destinations, subscriptions := ix.Counts("tenant-1")
	if destinations != 2 {
		t.Errorf("Expected 2 destinations, got %d", destinations)
	}
	if subscriptions != 3 {
		t.Errorf("Expected 3 subscriptions, got %d", subscriptions)
	}
}

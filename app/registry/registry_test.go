package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/courant-io/courant/app/billing"
	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/store"
)

// limitAdmitter admits registrations while the registry's enabled count
// stays below a fixed limit.
type limitAdmitter struct {
	reg   *Registry
	limit int
}

func (a *limitAdmitter) Admit(ctx context.Context, scope string) (bool, error) {
	return a.reg.EnabledCount(scope) < a.limit, nil
}

type allowAll struct{}

func (allowAll) Admit(ctx context.Context, scope string) (bool, error) {
	return true, nil
}

func newTestRegistry(limit int) *Registry {
	admitter := &limitAdmitter{limit: limit}
	reg := New(store.NewMemory(), admitter)
	admitter.reg = reg
	return reg
}

func TestRegister(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	source, err := reg.Register(ctx, "tenant-1", "Example Blog", "https://blog.example.com/feed.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if source.ID != "blog_example_com" {
		t.Errorf("Expected derived id 'blog_example_com', got %q", source.ID)
	}
	if !source.Enabled {
		t.Error("Expected new source to be enabled")
	}
	if source.Scope != "tenant-1" {
		t.Errorf("Expected scope 'tenant-1', got %q", source.Scope)
	}

	got, err := reg.Get(ctx, "tenant-1", "blog_example_com")
	if err != nil {
		t.Fatalf("Expected source to be retrievable, got: %v", err)
	}
	if got.URL != "https://blog.example.com/feed.xml" {
		t.Errorf("Expected stored URL, got %q", got.URL)
	}
}

func TestRegisterInvalidURL(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "tenant-1", "Bad", "ftp://example.com/feed"); !errors.Is(err, feed.ErrInvalidURL) {
		t.Errorf("Expected ErrInvalidURL, got: %v", err)
	}

	// Validation failure leaves no trace.
	if count := reg.EnabledCount("tenant-1"); count != 0 {
		t.Errorf("Expected no sources after rejected registration, got %d", count)
	}
}

func TestRegisterQuotaExceeded(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	urls := []string{
		"https://a.example.com/feed",
		"https://b.example.com/feed",
		"https://c.example.com/feed",
	}
	for _, u := range urls {
		if _, err := reg.Register(ctx, "tenant-1", "Feed", u); err != nil {
			t.Fatalf("Expected registration to succeed for %s, got: %v", u, err)
		}
	}

	_, err := reg.Register(ctx, "tenant-1", "Feed", "https://d.example.com/feed")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got: %v", err)
	}

	// The rejected registration left the count unchanged.
	if count := reg.EnabledCount("tenant-1"); count != 3 {
		t.Errorf("Expected count to stay at 3, got %d", count)
	}

	// Another tenant's quota is independent.
	if _, err := reg.Register(ctx, "tenant-2", "Feed", "https://d.example.com/feed"); err != nil {
		t.Errorf("Expected other tenant to register freely, got: %v", err)
	}
}

func TestRegisterConcurrentHoldsQuota(t *testing.T) {
	st := store.NewMemory()
	gate := billing.NewGate(st, nil)
	reg := New(st, gate)
	gate.SetCounter(reg)
	ctx := context.Background()

	// A free-tier tenant gets 3 sources. Concurrent registrations must
	// not all observe the same pre-insert count and slip past the gate.
	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://feed-%02d.example.com/rss", i)
			_, errs[i] = reg.Register(ctx, "tenant-1", "Feed", url)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrQuotaExceeded):
			t.Errorf("Expected ErrQuotaExceeded for rejected registration, got: %v", err)
		}
	}
	if succeeded != 3 {
		t.Errorf("Expected exactly 3 registrations to succeed, got %d", succeeded)
	}
	if count := reg.EnabledCount("tenant-1"); count != 3 {
		t.Errorf("Expected enabled count to stay at the tier limit 3, got %d", count)
	}
}

func TestRegisterGlobalScopeBypassesQuota(t *testing.T) {
	reg := newTestRegistry(0)
	ctx := context.Background()

	if _, err := reg.Register(ctx, feed.ScopeGlobal, "Feed", "https://a.example.com/feed"); err != nil {
		t.Errorf("Expected global scope to bypass the quota gate, got: %v", err)
	}
}

func TestRegisterSameURLOverwrites(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	reg.Register(ctx, "tenant-1", "Old Name", "https://blog.example.com/feed.xml")
	source, err := reg.Register(ctx, "tenant-1", "New Name", "https://blog.example.com/other.xml")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if source.Name != "New Name" {
		t.Errorf("Expected overwrite, got %q", source.Name)
	}
	if count := reg.EnabledCount("tenant-1"); count != 1 {
		t.Errorf("Expected one source per host, got %d", count)
	}
}

func TestRemove(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	reg.Register(ctx, "tenant-1", "Feed", "https://a.example.com/feed")

	removed, err := reg.Remove(ctx, "tenant-1", "a_example_com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if removed.ID != "a_example_com" {
		t.Errorf("Expected removed source returned, got %q", removed.ID)
	}

	if _, err := reg.Get(ctx, "tenant-1", "a_example_com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after removal, got: %v", err)
	}

	if _, err := reg.Remove(ctx, "tenant-1", "a_example_com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for repeated removal, got: %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	reg.Register(ctx, "tenant-a", "Feed", "https://blog.example.com/feed")
	reg.Register(ctx, "tenant-b", "Feed", "https://blog.example.com/feed")

	// Each tenant sees only its own registration of the shared URL.
	listA, err := reg.List(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(listA) != 1 || listA[0].Scope != "tenant-a" {
		t.Errorf("Expected tenant-a's single source, got %+v", listA)
	}

	if _, err := reg.Get(ctx, "tenant-c", "blog_example_com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound across tenants, got: %v", err)
	}

	reg.Remove(ctx, "tenant-a", "blog_example_com")
	if _, err := reg.Get(ctx, "tenant-b", "blog_example_com"); err != nil {
		t.Errorf("Expected tenant-b's source to survive tenant-a's removal, got: %v", err)
	}
}

func TestHydrateFromStore(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first := New(st, allowAll{})
	first.Register(ctx, "tenant-1", "Feed", "https://a.example.com/feed")
	watermark := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	first.UpdateWatermark(ctx, "tenant-1", "a_example_com", watermark)

	// A fresh registry over the same store sees the persisted state.
	second := New(st, allowAll{})
	got, err := second.Get(ctx, "tenant-1", "a_example_com")
	if err != nil {
		t.Fatalf("Expected hydrated source, got: %v", err)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(watermark) {
		t.Errorf("Expected persisted watermark, got %v", got.LastSeenAt)
	}
}

func TestUpdateWatermarkClearsLastError(t *testing.T) {
	reg := newTestRegistry(3)
	ctx := context.Background()

	reg.Register(ctx, "tenant-1", "Feed", "https://a.example.com/feed")
	reg.RecordFailure("tenant-1", "a_example_com", errors.New("connection refused"))

	got, _ := reg.Get(ctx, "tenant-1", "a_example_com")
	if got.LastError == "" {
		t.Fatal("Expected failure to be recorded")
	}

	reg.UpdateWatermark(ctx, "tenant-1", "a_example_com", time.Now().UTC())
	got, _ = reg.Get(ctx, "tenant-1", "a_example_com")
	if got.LastError != "" {
		t.Errorf("Expected successful poll to clear the error, got %q", got.LastError)
	}
	if got.LastSeenAt == nil {
		t.Error("Expected watermark to be set")
	}
}

func TestEnabledSourcesSnapshot(t *testing.T) {
	reg := newTestRegistry(10)
	ctx := context.Background()

	reg.Register(ctx, "tenant-1", "A", "https://a.example.com/feed")
	reg.Register(ctx, "tenant-2", "B", "https://b.example.com/feed")
	reg.Register(ctx, feed.ScopeGlobal, "C", "https://c.example.com/feed")

	sources := reg.EnabledSources()
	if len(sources) != 3 {
		t.Fatalf("Expected 3 enabled sources across scopes, got %d", len(sources))
	}

	// Mutating the snapshot does not touch the registry.
	sources[0].Enabled = false
	if len(reg.EnabledSources()) != 3 {
		t.Error("Expected snapshot mutation to leave the registry untouched")
	}
}

func TestSeedKeepsExistingWatermark(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	first := New(st, allowAll{})
	first.Register(ctx, feed.ScopeGlobal, "Feed", "https://a.example.com/feed")
	watermark := time.Date(2023, 7, 3, 12, 0, 0, 0, time.UTC)
	first.UpdateWatermark(ctx, feed.ScopeGlobal, "a_example_com", watermark)

	second := New(st, allowAll{})
	seeded := &feed.Source{
		ID:      "a_example_com",
		Name:    "Renamed Feed",
		URL:     "https://a.example.com/feed",
		Type:    feed.TypeRSS,
		Enabled: true,
		Scope:   feed.ScopeGlobal,
	}
	if err := second.Seed(ctx, seeded); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := second.Get(ctx, feed.ScopeGlobal, "a_example_com")
	if err != nil {
		t.Fatalf("Expected seeded source, got: %v", err)
	}
	if got.Name != "Renamed Feed" {
		t.Errorf("Expected seed to overwrite the definition, got %q", got.Name)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(watermark) {
		t.Errorf("Expected seed to keep the durable watermark, got %v", got.LastSeenAt)
	}
}

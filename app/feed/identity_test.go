package feed

import (
	"testing"
)

func TestIdentityDeterministic(t *testing.T) {
	a := Identity("example_com", "https://example.com/post/1", "Hello World")
	b := Identity("example_com", "https://example.com/post/1", "Hello World")

	if a != b {
		t.Errorf("Expected identical inputs to produce identical identities, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Expected 64-character hex identity, got %d characters", len(a))
	}
}

func TestIdentityDivergesPerField(t *testing.T) {
	base := Identity("example_com", "https://example.com/post/1", "Hello World")

	if Identity("other_com", "https://example.com/post/1", "Hello World") == base {
		t.Error("Expected different source id to produce a different identity")
	}
	if Identity("example_com", "https://example.com/post/2", "Hello World") == base {
		t.Error("Expected different link to produce a different identity")
	}
	if Identity("example_com", "https://example.com/post/1", "Hello World (edited)") == base {
		t.Error("Expected edited title to produce a different identity")
	}
}

func TestSourceIDFromURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"https URL", "https://blog.example.com/feed.xml", "blog_example_com", false},
		{"http URL", "http://example.com/rss", "example_com", false},
		{"same host same id", "https://blog.example.com/other.xml", "blog_example_com", false},
		{"ftp scheme rejected", "ftp://example.com/feed", "", true},
		{"missing scheme rejected", "example.com/feed", "", true},
		{"empty host rejected", "https:///feed.xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SourceIDFromURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got id %q", tt.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("Expected id %q for %q, got %q", tt.want, tt.url, got)
			}
		})
	}
}

func TestSourceKey(t *testing.T) {
	if key := SourceKey("tenant-1", "example_com"); key != "tenant-1:example_com" {
		t.Errorf("Expected key 'tenant-1:example_com', got %q", key)
	}

	source := &Source{ID: "example_com", Scope: ScopeGlobal}
	if source.Key() != "global:example_com" {
		t.Errorf("Expected key 'global:example_com', got %q", source.Key())
	}
}

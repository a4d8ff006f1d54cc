package feed

import (
	"time"
)

// ScopeGlobal is the tenant sentinel for contexts without a workspace
// boundary (bootstrap sources, scope-less API calls).
const ScopeGlobal = "global"

type Type string

const (
	TypeRSS        Type = "rss"
	TypeAtom       Type = "atom"
	TypeJSONFeed   Type = "json"
	TypeNewsletter Type = "newsletter"
)

// Source is a registered syndication endpoint. Identity is the pair
// (Scope, ID); the same URL may be registered independently per tenant.
type Source struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Type       Type       `json:"type"`
	Enabled    bool       `json:"enabled"`
	Tags       []string   `json:"tags"`
	Scope      string     `json:"scope"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Key returns the composite storage key for the source.
func (s *Source) Key() string {
	return SourceKey(s.Scope, s.ID)
}

func SourceKey(scope, id string) string {
	return scope + ":" + id
}

// Item is one discovered content unit. Items are ephemeral: produced by a
// poll, consumed by dispatch, never persisted.
type Item struct {
	Identity    string
	Title       string
	Link        string
	Summary     string
	Author      string
	PublishedAt *time.Time
	SourceID    string
	Tags        []string
}

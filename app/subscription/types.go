package subscription

import (
	"strings"
	"time"

	"github.com/courant-io/courant/app/feed"
)

type Format string

const (
	FormatPlain  Format = "plain"
	FormatRich   Format = "rich"
	FormatDigest Format = "digest"
)

// Filters narrow which items a destination receives from its sources.
type Filters struct {
	IncludeTags        []string      `json:"include_tags"`
	ExcludeTags        []string      `json:"exclude_tags"`
	Keywords           []string      `json:"keywords"`
	MinPublishInterval time.Duration `json:"min_publish_interval"`
}

// Prefs control how notifications are rendered and batched.
type Prefs struct {
	Format           Format `json:"format"`
	IncludePreview   bool   `json:"include_preview"`
	Mention          string `json:"mention,omitempty"`
	MaxItemsPerBatch int    `json:"max_items_per_batch"`
}

func DefaultPrefs() Prefs {
	return Prefs{
		Format:           FormatRich,
		IncludePreview:   true,
		MaxItemsPerBatch: 5,
	}
}

// Destination is one delivery target. Never hard-deleted: an empty source
// set is a valid terminal state.
type Destination struct {
	ID      string   `json:"id"`
	Scope   string   `json:"scope"`
	Sources []string `json:"sources"`
	Filters Filters  `json:"filters"`
	Prefs   Prefs    `json:"prefs"`
}

// Match reports whether an item passes the destination's tag and keyword
// filters. Keyword matching is case-insensitive over title and summary.
func (f *Filters) Match(item *feed.Item) bool {
	if len(f.IncludeTags) > 0 && !intersects(item.Tags, f.IncludeTags) {
		return false
	}
	if intersects(item.Tags, f.ExcludeTags) {
		return false
	}
	if len(f.Keywords) > 0 {
		haystack := strings.ToLower(item.Title + " " + item.Summary)
		found := false
		for _, keyword := range f.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}

package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/subscription"
)

const (
	plainPreviewLimit = 200
	richPreviewLimit  = 300
	richTagsLimit     = 100
	digestTitleLimit  = 80
	digestBodyLimit   = 1900
	ellipsis          = "..."
)

// Truncate cuts text longer than max to exactly max characters, the last
// three being the ellipsis marker. Exact-length truncation, not
// word-boundary truncation.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := max - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + ellipsis
}

// RenderPlain renders one message per item: title and link, optional
// truncated preview, optional mention prefix.
func RenderPlain(items []feed.Item, prefs subscription.Prefs) []Message {
	messages := make([]Message, 0, len(items))
	for _, item := range items {
		var b strings.Builder
		if prefs.Mention != "" {
			fmt.Fprintf(&b, "%s ", prefs.Mention)
		}
		fmt.Fprintf(&b, "**%s**\n%s", item.Title, item.Link)
		if prefs.IncludePreview && item.Summary != "" {
			fmt.Fprintf(&b, "\n> %s", Truncate(item.Summary, plainPreviewLimit))
		}
		messages = append(messages, Message{Text: b.String()})
	}
	return messages
}

// RenderRich renders one embed per item with title, link, preview, author,
// tags, source attribution and a timestamp when the item carries one.
func RenderRich(items []feed.Item, prefs subscription.Prefs) []Message {
	messages := make([]Message, 0, len(items))
	for _, item := range items {
		embed := &Embed{
			Title:  item.Title,
			URL:    item.Link,
			Footer: "Source: " + item.SourceID,
		}

		if prefs.IncludePreview && item.Summary != "" {
			embed.Description = Truncate(item.Summary, richPreviewLimit)
		}
		if item.Author != "" {
			embed.Author = item.Author
		}
		if len(item.Tags) > 0 {
			embed.Fields = append(embed.Fields, Field{
				Name:  "Tags",
				Value: Truncate(strings.Join(item.Tags, ", "), richTagsLimit),
			})
		}
		if item.PublishedAt != nil {
			embed.Timestamp = item.PublishedAt
		}

		msg := Message{Embed: embed}
		if prefs.Mention != "" {
			msg.Text = prefs.Mention
		}
		messages = append(messages, msg)
	}
	return messages
}

// RenderDigest renders one message summarizing the whole batch: a count
// header and one line per item linking title to URL with an author
// suffix, truncated to a hard ceiling.
func RenderDigest(items []feed.Item, prefs subscription.Prefs, now time.Time) []Message {
	if len(items) == 0 {
		return nil
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**[%s](%s)**", Truncate(item.Title, digestTitleLimit), item.Link)
		if item.Author != "" {
			fmt.Fprintf(&b, " - %s", item.Author)
		}
	}

	embed := &Embed{
		Title:       fmt.Sprintf("%d new posts", len(items)),
		Description: Truncate(b.String(), digestBodyLimit),
		Timestamp:   &now,
	}

	msg := Message{Embed: embed}
	if prefs.Mention != "" {
		msg.Text = prefs.Mention
	}
	return []Message{msg}
}

// Render produces the batch's messages according to the destination's
// format preference.
func Render(items []feed.Item, prefs subscription.Prefs, now time.Time) []Message {
	switch prefs.Format {
	case subscription.FormatPlain:
		return RenderPlain(items, prefs)
	case subscription.FormatDigest:
		return RenderDigest(items, prefs, now)
	default:
		return RenderRich(items, prefs)
	}
}

package feed

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a raw RSS/Atom document into items for the given source, in
// document order.
func (p *Parser) Run(data []byte, source *Source) ([]Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, parseError(err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		if raw == nil {
			continue
		}
		items = append(items, p.normalizeItem(raw, source))
	}

	return items, nil
}

func (p *Parser) normalizeItem(raw *gofeed.Item, source *Source) Item {
	item := Item{
		Title:    strings.TrimSpace(raw.Title),
		Link:     strings.TrimSpace(raw.Link),
		Summary:  strings.TrimSpace(raw.Description),
		SourceID: source.ID,
	}

	if item.Title == "" {
		item.Title = "(untitled)"
	}

	if raw.PublishedParsed != nil {
		t := raw.PublishedParsed.UTC()
		item.PublishedAt = &t
	} else if raw.UpdatedParsed != nil {
		t := raw.UpdatedParsed.UTC()
		item.PublishedAt = &t
	}

	item.Author = extractAuthor(raw)

	if len(raw.Categories) > 0 {
		item.Tags = append(item.Tags, raw.Categories...)
	}

	item.Identity = Identity(source.ID, item.Link, item.Title)

	return item
}

func extractAuthor(raw *gofeed.Item) string {
	for _, author := range raw.Authors {
		if author == nil {
			continue
		}
		if name := strings.TrimSpace(author.Name); name != "" {
			return name
		}
		if email := strings.TrimSpace(author.Email); email != "" {
			return email
		}
	}
	if raw.Author != nil {
		if name := strings.TrimSpace(raw.Author.Name); name != "" {
			return name
		}
		return strings.TrimSpace(raw.Author.Email)
	}
	return ""
}

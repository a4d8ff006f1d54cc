package feed

import (
	"testing"
	"time"
)

func testSource() *Source {
	return &Source{
		ID:      "example_com",
		Name:    "Example",
		URL:     "https://example.com/feed.xml",
		Type:    TypeRSS,
		Enabled: true,
		Scope:   ScopeGlobal,
	}
}

func TestParseRSS2(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <item>
      <title>Test Item 1</title>
      <link>https://example.com/item1</link>
      <description>Test Item 1 Description</description>
      <guid>item-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <author>test@example.com (Test Author)</author>
      <category>Technology</category>
      <category>Programming</category>
    </item>
    <item>
      <title>Test Item 2</title>
      <link>https://example.com/item2</link>
      <description>Test Item 2 Description</description>
      <guid>item-2</guid>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

	parser := NewParser()
	items, err := parser.Run([]byte(rssData), testSource())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(items))
	}

	item1 := items[0]
	if item1.Title != "Test Item 1" {
		t.Errorf("Expected title 'Test Item 1', got: %s", item1.Title)
	}
	if item1.Link != "https://example.com/item1" {
		t.Errorf("Expected link 'https://example.com/item1', got: %s", item1.Link)
	}
	if item1.SourceID != "example_com" {
		t.Errorf("Expected source id 'example_com', got: %s", item1.SourceID)
	}
	if item1.PublishedAt == nil {
		t.Fatal("Expected published time to be set")
	}
	want := time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)
	if !item1.PublishedAt.Equal(want) {
		t.Errorf("Expected published time %v, got: %v", want, item1.PublishedAt)
	}
	if len(item1.Tags) != 2 {
		t.Errorf("Expected 2 tags, got: %d", len(item1.Tags))
	}
	if item1.Identity == "" {
		t.Error("Expected identity to be computed")
	}
	if item1.Identity != Identity("example_com", item1.Link, item1.Title) {
		t.Error("Expected identity to derive from source id, link, and title")
	}

	if items[1].Identity == item1.Identity {
		t.Error("Expected distinct items to carry distinct identities")
	}
}

func TestParseAtom(t *testing.T) {
	atomData := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <link href="https://example.com"/>
  <updated>2023-07-03T12:00:00Z</updated>
  <entry>
    <title>Atom Entry</title>
    <link href="https://example.com/entry1"/>
    <id>entry-1</id>
    <updated>2023-07-03T11:30:00Z</updated>
    <author><name>Atom Author</name></author>
    <summary>Entry summary</summary>
  </entry>
</feed>`

	parser := NewParser()
	items, err := parser.Run([]byte(atomData), testSource())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(items))
	}

	item := items[0]
	if item.Author != "Atom Author" {
		t.Errorf("Expected author 'Atom Author', got: %s", item.Author)
	}
	if item.Summary != "Entry summary" {
		t.Errorf("Expected summary 'Entry summary', got: %s", item.Summary)
	}
	// Atom entries without <published> fall back to <updated>.
	if item.PublishedAt == nil {
		t.Error("Expected published time to fall back to the updated time")
	}
}

func TestParseUntitledItem(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>desc</description>
    <item>
      <link>https://example.com/untitled</link>
      <description>No title here</description>
    </item>
  </channel>
</rss>`

	parser := NewParser()
	items, err := parser.Run([]byte(rssData), testSource())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(items))
	}
	if items[0].Title != "(untitled)" {
		t.Errorf("Expected placeholder title, got: %s", items[0].Title)
	}
	if items[0].PublishedAt != nil {
		t.Error("Expected undated item to carry no published time")
	}
}

func TestParseInvalidDocument(t *testing.T) {
	parser := NewParser()
	_, err := parser.Run([]byte("this is not a feed"), testSource())
	if err == nil {
		t.Fatal("Expected parse error for non-feed document")
	}

	feedErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if feedErr.Kind != ErrKindParse {
		t.Errorf("Expected parse_error kind, got: %s", feedErr.Kind)
	}
	if feedErr.Transient() {
		t.Error("Expected parse errors to be non-transient")
	}
}

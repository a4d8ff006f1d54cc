// Package preview extracts readable text from an item's page for the
// test-source preview. Extraction failure degrades to the item's own
// summary; it never fails the preview.
package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const maxPageBytes = 2 << 20

type Extractor struct {
	client    *http.Client
	userAgent string
}

func NewExtractor(userAgent string) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: 15 * time.Second},
		userAgent: userAgent,
	}
}

// Extract fetches the page and returns its readable text, truncated to
// limit runes.
func (e *Extractor) Extract(ctx context.Context, pageURL string, limit int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create page request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("page returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), parsed)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no readable content extracted")
	}

	slog.Debug("Page content extracted", "url", pageURL, "length", len(text))

	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit]), nil
	}
	return text, nil
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTimeout bounds every outbound feed request so a slow source
	// fails cleanly instead of hanging its worker.
	RequestTimeout = 30 * time.Second

	maxBodyBytes  = 10 << 20
	maxSniffBytes = 8 << 10
)

type Fetcher struct {
	client    *http.Client
	parser    *Parser
	userAgent string
}

func NewFetcher(userAgent string) *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   RequestTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		parser:    NewParser(),
		userAgent: userAgent,
	}
}

// Fetch retrieves and parses the source's current item set.
func (f *Fetcher) Fetch(ctx context.Context, source *Source) ([]Item, error) {
	switch source.Type {
	case TypeRSS, TypeAtom:
	case TypeJSONFeed, TypeNewsletter:
		return nil, unsupportedTypeError()
	default:
		return nil, unsupportedTypeError()
	}

	data, err := f.get(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	return f.parser.Run(data, source)
}

// Probe classifies a candidate URL before registration: content-type
// headers first, then body markers. It never touches poll state.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (Type, error) {
	if _, err := SourceIDFromURL(rawURL); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", networkError(err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", badStatusError(resp.StatusCode)
		}

		switch contentType := resp.Header.Get("Content-Type"); {
		case strings.Contains(contentType, "application/rss+xml"):
			return TypeRSS, nil
		case strings.Contains(contentType, "application/atom+xml"):
			return TypeAtom, nil
		case strings.Contains(contentType, "application/feed+json"):
			return TypeJSONFeed, nil
		}
	}

	// Header inspection was inconclusive; sniff the body markers.
	return f.sniff(ctx, rawURL)
}

func (f *Fetcher) sniff(ctx context.Context, rawURL string) (Type, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", networkError(err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", timeoutError(err)
		}
		return "", networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", badStatusError(resp.StatusCode)
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, maxSniffBytes))
	if err != nil {
		return "", networkError(err)
	}

	body := string(head)
	switch {
	case strings.Contains(body, "<rss"):
		return TypeRSS, nil
	case strings.Contains(body, "<feed") && strings.Contains(body, `xmlns="http://www.w3.org/2005/Atom"`):
		return TypeAtom, nil
	}
	return "", unsupportedTypeError()
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, networkError(err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, timeoutError(err)
		}
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, badStatusError(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, networkError(err)
	}

	return data, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Identity derives a stable identity for an item so repeated polls do not
// re-notify. It hashes (source id, link, title): reordering or incidental
// field changes keep the identity, a title edit produces a new one.
func Identity(sourceID, link, title string) string {
	h := sha256.Sum256([]byte(sourceID + "|" + link + "|" + title))
	return hex.EncodeToString(h[:])
}

// SourceIDFromURL derives a deterministic source id from the endpoint's
// host, so re-registering the same endpoint yields the same id.
func SourceIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	host := u.Hostname()
	if host == "" {
		return "", ErrInvalidURL
	}
	return strings.ReplaceAll(host, ".", "_"), nil
}

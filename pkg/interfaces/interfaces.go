// Package interfaces defines the core abstractions for the relay.
// Page fetchers and extractors implement these interfaces so the
// resolution pipeline can be wired and tested independently of the network.
package interfaces

import (
	"context"
	"net/http"
)

// PageFetcher retrieves the raw text of an upstream page.
//
// Implementations make exactly one attempt and return an error for transport
// failures and non-2xx responses.
type PageFetcher interface {
	// Name returns a short identifier used in logs and metrics.
	Name() string

	// FetchText performs a GET for url and returns the response body as text.
	FetchText(ctx context.Context, url string, headers map[string]string) (string, error)
}

// Extractor resolves an upstream page URL to a direct media URL.
type Extractor interface {
	// Name returns a unique identifier for this extractor.
	Name() string

	// Extract fetches pageURL and returns the first media URL found in it.
	Extract(ctx context.Context, pageURL string) (string, error)
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

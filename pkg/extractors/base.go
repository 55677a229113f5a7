// Package extractors provides media URL extractor implementations.
// Each extractor fetches an upstream page and resolves the direct media URL
// embedded in it.
//
// To add a new extractor:
// 1. Create a new file (e.g., myformat.go)
// 2. Implement the Extractor interface
// 3. Wire it into the stream service (see internal/app)
package extractors

import (
	"context"
	"net/url"

	"mkv-relay-go/pkg/interfaces"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/urlutil"
)

// FetchError marks a failure to retrieve the upstream page, as opposed to a
// page that was retrieved but holds no media URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	fetcher interfaces.PageFetcher
	log     *logging.Logger
}

// NewBaseExtractor creates a new base extractor.
func NewBaseExtractor(fetcher interfaces.PageFetcher, log *logging.Logger) *BaseExtractor {
	return &BaseExtractor{
		fetcher: fetcher,
		log:     log,
	}
}

// FetchPage retrieves pageURL as text, sending the page host as Referer.
// The fetcher supplies the User-Agent. Failures are returned as *FetchError.
func (b *BaseExtractor) FetchPage(ctx context.Context, pageURL string) (string, error) {
	headers := map[string]string{}
	if origin := urlutil.GetSchemeHost(pageURL); origin != "" {
		headers["Referer"] = origin + "/"
	}

	text, err := b.fetcher.FetchText(ctx, pageURL, headers)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	return text, nil
}

// GetDomain extracts the domain from a URL.
func GetDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return parsed.Host
}

package extractors

import (
	"context"
	"errors"
	"regexp"

	"mkv-relay-go/pkg/interfaces"
	"mkv-relay-go/pkg/logging"
)

// ErrNoMKV is returned when a fetched page holds no .mkv URL.
var ErrNoMKV = errors.New("MKV URL not found")

// urlStop lists the runes that end a URL run: Unicode space separators, line
// terminators and the BOM (RE2's \s is ASCII-only), plus both quotes.
const urlStop = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}"'`

// mkvURLPattern matches an http(s) URL whose run contains ".mkv". Everything
// up to the next stop rune is kept, so query strings after the extension
// survive. Case folding is spelled out to stay ASCII-only: (?i) would also
// fold U+017F into s and U+212A into k.
var mkvURLPattern = regexp.MustCompile(
	`([hH][tT][tT][pP][sS]?://[^` + urlStop + `]+\.[mM][kK][vV][^` + urlStop + `]*)`,
)

// FindMKVURL returns the leftmost .mkv URL in text.
func FindMKVURL(text string) (string, bool) {
	match := mkvURLPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}

// MKVExtractor resolves an upstream page to the first .mkv URL it mentions.
type MKVExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewMKVExtractor creates a new MKV extractor reading pages through fetcher.
func NewMKVExtractor(fetcher interfaces.PageFetcher, log *logging.Logger) *MKVExtractor {
	return &MKVExtractor{
		BaseExtractor: NewBaseExtractor(fetcher, log),
		log:           log.WithComponent("mkv-extractor"),
	}
}

// Name returns the extractor name.
func (e *MKVExtractor) Name() string {
	return "mkv"
}

// Extract fetches pageURL and returns the first .mkv URL in its body.
// A failed fetch returns *FetchError; a page without a match returns ErrNoMKV.
func (e *MKVExtractor) Extract(ctx context.Context, pageURL string) (string, error) {
	e.log.Debug("extracting MKV URL", "url", pageURL, "fetcher", e.fetcher.Name())

	text, err := e.FetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}

	mkvURL, ok := FindMKVURL(text)
	if !ok {
		e.log.Debug("no MKV URL in page", "url", pageURL, "bytes", len(text))
		return "", ErrNoMKV
	}

	e.log.Debug("found MKV URL", "url", pageURL, "host", GetDomain(mkvURL))
	return mkvURL, nil
}

var _ interfaces.Extractor = (*MKVExtractor)(nil)

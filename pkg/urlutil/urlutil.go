// Package urlutil builds upstream page URLs from media identifiers.
package urlutil

import (
	"net/url"
	"strings"
)

// MovieURL returns the upstream page URL for a movie: {base}/{id}.
func MovieURL(base, id string) string {
	return JoinSegments(base, id)
}

// EpisodeURL returns the upstream page URL for a TV episode:
// {base}/{id}/{season}/{episode}.
func EpisodeURL(base, id, season, episode string) string {
	return JoinSegments(base, id, season, episode)
}

// JoinSegments appends each segment to base as a single escaped path segment.
// Segments are not otherwise validated or cleaned, so "." and ".." are kept
// literally. A trailing slash on base is not doubled.
func JoinSegments(base string, segments ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}

// GetSchemeHost extracts scheme://host from a URL.
func GetSchemeHost(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Package types defines core domain types used throughout the application.
package types

// MediaKind identifies what a resolve request is for.
type MediaKind string

const (
	MediaKindMovie   MediaKind = "movie"
	MediaKindEpisode MediaKind = "tv"
)

// MediaRequest identifies a single title on the upstream page host.
// Season and Episode are empty for movies.
type MediaRequest struct {
	Kind    MediaKind
	ID      string
	Season  string
	Episode string
}

// Stream format and quality labels reported for every discovered URL.
// The upstream page does not expose either, so these are fixed.
const (
	StreamFormat  = "mp4"
	StreamQuality = "720p"
)

// StreamOption is one playable stream.
type StreamOption struct {
	Format  string `json:"format"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// StreamEnvelope is the response body for a resolved title.
type StreamEnvelope struct {
	Streams []StreamOption `json:"streams"`
}

// NewStreamEnvelope wraps a discovered URL as the single stream option.
func NewStreamEnvelope(url string) *StreamEnvelope {
	return &StreamEnvelope{
		Streams: []StreamOption{
			{
				Format:  StreamFormat,
				URL:     url,
				Quality: StreamQuality,
			},
		},
	}
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

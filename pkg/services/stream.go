// Package services implements stream resolution on top of the extractors.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mkv-relay-go/pkg/extractors"
	"mkv-relay-go/pkg/interfaces"
	"mkv-relay-go/pkg/logging"
	"mkv-relay-go/pkg/metrics"
	"mkv-relay-go/pkg/types"
	"mkv-relay-go/pkg/urlutil"
)

// StreamService resolves media identifiers to a stream envelope.
// It holds no per-request state and is safe for concurrent use.
type StreamService struct {
	log          *logging.Logger
	extractor    interfaces.Extractor
	metrics      *metrics.Metrics
	upstreamBase string
}

// NewStreamService creates a new stream service. m may be nil.
func NewStreamService(
	log *logging.Logger,
	extractor interfaces.Extractor,
	upstreamBase string,
	m *metrics.Metrics,
) *StreamService {
	return &StreamService{
		log:          log.WithComponent("stream-service"),
		extractor:    extractor,
		metrics:      m,
		upstreamBase: upstreamBase,
	}
}

// ResolveMovie resolves a movie identifier.
func (s *StreamService) ResolveMovie(ctx context.Context, id string) (*types.StreamEnvelope, error) {
	return s.Resolve(ctx, types.MediaRequest{Kind: types.MediaKindMovie, ID: id})
}

// ResolveEpisode resolves a TV show episode.
func (s *StreamService) ResolveEpisode(ctx context.Context, id, season, episode string) (*types.StreamEnvelope, error) {
	return s.Resolve(ctx, types.MediaRequest{
		Kind:    types.MediaKindEpisode,
		ID:      id,
		Season:  season,
		Episode: episode,
	})
}

// Resolve fetches the upstream page for req and wraps the first .mkv URL in
// an envelope. Errors wrap either extractors.ErrNoMKV or *extractors.FetchError.
func (s *StreamService) Resolve(ctx context.Context, req types.MediaRequest) (*types.StreamEnvelope, error) {
	pageURL, err := s.PageURL(req)
	if err != nil {
		return nil, err
	}

	log := s.log.WithMedia(string(req.Kind), req.ID).WithURL(pageURL)
	log.Debug("resolving stream")

	start := time.Now()
	mkvURL, err := s.extractor.Extract(ctx, pageURL)
	elapsed := time.Since(start)
	s.observeFetch(elapsed)

	if err != nil {
		outcome := metrics.OutcomeFetchFailed
		if errors.Is(err, extractors.ErrNoMKV) {
			outcome = metrics.OutcomeNotFound
			log.WithDuration(elapsed).Warn("no MKV URL in upstream page")
		} else {
			log.WithDuration(elapsed).WithError(err).Error("upstream fetch failed")
		}
		s.observeResolve(req.Kind, outcome)
		return nil, fmt.Errorf("resolve %s %s: %w", req.Kind, req.ID, err)
	}

	s.observeResolve(req.Kind, metrics.OutcomeFound)
	log.WithDuration(elapsed).Info("resolved stream", "stream_host", extractors.GetDomain(mkvURL))

	return types.NewStreamEnvelope(mkvURL), nil
}

// PageURL returns the upstream page URL for req.
func (s *StreamService) PageURL(req types.MediaRequest) (string, error) {
	switch req.Kind {
	case types.MediaKindMovie:
		return urlutil.MovieURL(s.upstreamBase, req.ID), nil
	case types.MediaKindEpisode:
		return urlutil.EpisodeURL(s.upstreamBase, req.ID, req.Season, req.Episode), nil
	default:
		return "", fmt.Errorf("unknown media kind %q", req.Kind)
	}
}

func (s *StreamService) observeResolve(kind types.MediaKind, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveResolve(string(kind), outcome)
	}
}

func (s *StreamService) observeFetch(d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveFetch(s.extractor.Name(), d)
	}
}

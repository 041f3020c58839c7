package metadata

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/media"
)

// Fetcher is the server-facing contract for metadata resolution.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (*media.Metadata, error)
}

// engineProber lets tests substitute the yt-dlp subprocess.
type engineProber interface {
	Probe(ctx context.Context, videoID string) (*media.Metadata, error)
}

// Service combines the primary Data API with the extraction engine.
// The API, when configured, supplies descriptive metadata; the engine
// always supplies the format list and doubles as the metadata fallback.
type Service struct {
	api    *APIClient // nil when no API key is configured
	engine engineProber
	log    zerolog.Logger
}

func NewService(api *APIClient, engine *Engine, log zerolog.Logger) *Service {
	return &Service{api: api, engine: engine, log: log}
}

// Fetch resolves metadata for one video. Upstream degradation is absorbed
// where possible: a dead primary API silently falls back to the engine,
// and an engine failure still returns API metadata (flagged degraded,
// with an empty format list). Only a total failure of both surfaces an
// error.
func (s *Service) Fetch(ctx context.Context, videoID string) (*media.Metadata, error) {
	var primary *media.Metadata
	if s.api != nil {
		m, err := s.api.VideoMetadata(ctx, videoID)
		if err != nil {
			s.log.Warn().Err(err).Str("video_id", videoID).Msg("primary api unavailable, falling back to extraction engine")
		} else {
			primary = m
		}
	}

	engineMeta, engineErr := s.engine.Probe(ctx, videoID)
	if engineErr != nil {
		if primary == nil {
			return nil, engineErr
		}
		// Partial success: metadata known, formats unknown. Still worth
		// showing; the resolver produces a fallback option.
		s.log.Warn().Err(engineErr).Str("video_id", videoID).Msg("format enumeration failed, returning degraded result")
		primary.Source = media.SourceExtractionDegraded
		return primary, nil
	}

	if primary == nil {
		return engineMeta, nil
	}

	// Primary metadata wins on the descriptive fields; the engine owns
	// the formats. Fill counts the API didn't deliver from the engine.
	primary.Formats = engineMeta.Formats
	if primary.SubscriberCount == 0 {
		primary.SubscriberCount = engineMeta.SubscriberCount
	}
	if primary.DurationSeconds == 0 {
		primary.DurationSeconds = engineMeta.DurationSeconds
	}
	return primary, nil
}

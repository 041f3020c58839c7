// Package media holds the shared value types passed between the probes,
// the quality resolver and the HTTP layer.
package media

// Kind selects what a download job should produce.
type Kind string

const (
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindThumbnail Kind = "thumbnail"
)

// ValidKind reports whether k is one of the accepted media kinds.
func ValidKind(k Kind) bool {
	return k == KindVideo || k == KindAudio || k == KindThumbnail
}

// InfoSource records which upstream produced a metadata result.
type InfoSource string

const (
	SourcePrimaryAPI       InfoSource = "primary_api"
	SourceExtractionEngine InfoSource = "extraction_engine"
	// SourceExtractionDegraded flags a partial result: some fields were
	// available but others (counts, or the format list) were not.
	SourceExtractionDegraded InfoSource = "extraction_engine_degraded"
)

// Format is one downloadable variant as reported by the extraction engine.
// Immutable once produced.
type Format struct {
	FormatID  string  `json:"format_id"`
	Ext       string  `json:"ext"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
	Note      string  `json:"note,omitempty"`
	FileSize  int64   `json:"filesize,omitempty"`
	HasVideo  bool    `json:"has_video"`
	HasAudio  bool    `json:"has_audio"`
}

// QualitySource identifies which probe produced a quality estimate.
type QualitySource string

const (
	QualityFromPlayer     QualitySource = "player_probe"
	QualityFromExtraction QualitySource = "extraction_probe"
	QualityUnavailable    QualitySource = "unavailable"
)

// QualityEstimate is one probe's best-effort view of the maximum
// available quality. Reconciling disagreeing estimates is the resolver's
// job, never the probes'.
type QualityEstimate struct {
	Label  string        `json:"label"`
	Source QualitySource `json:"source"`
	Height int           `json:"height,omitempty"`
}

// Metadata is the aggregate returned to the caller of /metadata.
// Constructed fresh per request and never mutated afterwards.
type Metadata struct {
	VideoID         string     `json:"video_id"`
	Title           string     `json:"title"`
	Uploader        string     `json:"uploader"`
	ChannelLogoURL  string     `json:"channel_logo_url,omitempty"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	ViewCount       int64      `json:"view_count,omitempty"`
	LikeCount       int64      `json:"like_count,omitempty"`
	SubscriberCount int64      `json:"subscriber_count,omitempty"`
	Formats         []Format   `json:"formats"`
	Source          InfoSource `json:"info_source"`
}

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/media"
)

const defaultAPIBase = "https://www.googleapis.com/youtube/v3"

// APIClient talks to the YouTube Data API v3, the primary structured
// metadata source. It knows nothing about formats; those always come
// from the extraction engine.
type APIClient struct {
	key  string
	base string
	http *http.Client
	log  zerolog.Logger
}

// NewAPIClient creates a Data API client. Returns nil when no key is
// configured so callers can treat the primary source as absent.
func NewAPIClient(key string, log zerolog.Logger) *APIClient {
	if key == "" {
		return nil
	}
	return &APIClient{
		key:  key,
		base: defaultAPIBase,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

type videoListResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				Maxres   thumb `json:"maxres"`
				High     thumb `json:"high"`
				Medium   thumb `json:"medium"`
				Default  thumb `json:"default"`
				Standard thumb `json:"standard"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type channelListResponse struct {
	Items []struct {
		Snippet struct {
			Thumbnails struct {
				Default thumb `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type thumb struct {
	URL string `json:"url"`
}

// VideoMetadata fetches title, uploader, counts and thumbnail for one
// video, plus the channel's logo and subscriber count via a second call.
// The returned Metadata carries no formats.
func (c *APIClient) VideoMetadata(ctx context.Context, videoID string) (*media.Metadata, error) {
	var videos videoListResponse
	params := url.Values{
		"part": {"snippet,statistics,contentDetails"},
		"id":   {videoID},
		"key":  {c.key},
	}
	if err := c.get(ctx, "/videos", params, &videos); err != nil {
		return nil, err
	}
	if len(videos.Items) == 0 {
		return nil, fmt.Errorf("data api: no items for video %s", videoID)
	}

	item := videos.Items[0]
	meta := &media.Metadata{
		VideoID:         videoID,
		Title:           item.Snippet.Title,
		Uploader:        item.Snippet.ChannelTitle,
		ThumbnailURL:    bestThumb(item.Snippet.Thumbnails.Maxres, item.Snippet.Thumbnails.High, item.Snippet.Thumbnails.Medium, item.Snippet.Thumbnails.Standard, item.Snippet.Thumbnails.Default),
		DurationSeconds: parseISODuration(item.ContentDetails.Duration),
		ViewCount:       parseCount(item.Statistics.ViewCount),
		LikeCount:       parseCount(item.Statistics.LikeCount),
		Source:          media.SourcePrimaryAPI,
	}

	// The channel lookup is best effort: logo and subscriber count are
	// decoration, not worth failing the whole request over.
	if item.Snippet.ChannelID != "" {
		var channels channelListResponse
		params := url.Values{
			"part": {"snippet,statistics"},
			"id":   {item.Snippet.ChannelID},
			"key":  {c.key},
		}
		if err := c.get(ctx, "/channels", params, &channels); err != nil {
			c.log.Warn().Err(err).Str("channel_id", item.Snippet.ChannelID).Msg("channel lookup failed")
		} else if len(channels.Items) > 0 {
			meta.ChannelLogoURL = channels.Items[0].Snippet.Thumbnails.Default.URL
			meta.SubscriberCount = parseCount(channels.Items[0].Statistics.SubscriberCount)
		}
	}

	return meta, nil
}

func (c *APIClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("data api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("data api returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("data api response unreadable: %w", err)
	}
	return nil
}

func bestThumb(candidates ...thumb) string {
	for _, t := range candidates {
		if t.URL != "" {
			return t.URL
		}
	}
	return ""
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseISODuration converts the API's ISO 8601 durations (PT1H2M3S) to
// seconds. Malformed input yields 0.
func parseISODuration(s string) int {
	if len(s) < 3 || s[0] != 'P' {
		return 0
	}
	var total, n int
	inTime := false
	for _, r := range s[1:] {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
		case r == 'H' && inTime:
			total += n * 3600
			n = 0
		case r == 'M' && inTime:
			total += n * 60
			n = 0
		case r == 'S' && inTime:
			total += n
			n = 0
		case r == 'D':
			total += n * 86400
			n = 0
		default:
			return 0
		}
	}
	return total
}

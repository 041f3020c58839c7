package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/media"
)

// ExtractionError carries the engine's own failure summary. The raw
// stderr is logged but only the first line travels to the user.
type ExtractionError struct {
	Summary string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction engine: %s", e.Summary)
}

// Engine shells out to yt-dlp for format enumeration and descriptive
// metadata. It never downloads anything; see internal/pipeline for that.
type Engine struct {
	binary  string
	proxy   string
	cookies string
	log     zerolog.Logger
}

// NewEngine creates an Engine. binary is the yt-dlp executable ("" means
// resolve "yt-dlp" from PATH); cookies is Netscape-format cookie content
// written to a temp file for the duration of each call.
func NewEngine(binary, proxy, cookies string, log zerolog.Logger) *Engine {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Engine{binary: binary, proxy: proxy, cookies: cookies, log: log}
}

// dump mirrors the fields of the engine's -J output that we consume.
type dump struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`

	Thumbnail     string `json:"thumbnail"`
	ViewCount     int64  `json:"view_count"`
	LikeCount     int64  `json:"like_count"`
	FollowerCount int64  `json:"channel_follower_count"`

	Formats []struct {
		FormatID   string  `json:"format_id"`
		URL        string  `json:"url"`
		Ext        string  `json:"ext"`
		Width      int     `json:"width"`
		Height     int     `json:"height"`
		FPS        float64 `json:"fps"`
		VCodec     string  `json:"vcodec"`
		ACodec     string  `json:"acodec"`
		FormatNote string  `json:"format_note"`
		FileSize   int64   `json:"filesize"`
		FileSizeA  int64   `json:"filesize_approx"`
	} `json:"formats"`
}

// Probe enumerates downloadable formats and descriptive metadata for one
// video. Failures are returned as *ExtractionError.
func (e *Engine) Probe(ctx context.Context, videoID string) (*media.Metadata, error) {
	args := []string{"-J", "--no-playlist", "--simulate", "--no-cache-dir"}
	if e.proxy != "" {
		args = append(args, "--proxy", e.proxy)
	}

	cookieFile, cleanup, err := e.writeCookieFile()
	if err != nil {
		e.log.Warn().Err(err).Msg("cookie file setup failed, probing without cookies")
	} else if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
		defer cleanup()
	}

	args = append(args, "https://www.youtube.com/watch?v="+videoID)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Debug().Str("video_id", videoID).Msg("running extraction probe")
	if err := cmd.Run(); err != nil {
		summary := firstErrorLine(stderr.String())
		if summary == "" {
			summary = err.Error()
		}
		e.log.Warn().Str("video_id", videoID).Str("stderr", stderr.String()).Msg("extraction probe failed")
		return nil, &ExtractionError{Summary: summary}
	}

	meta, err := parseDump(stdout.Bytes())
	if err != nil {
		return nil, &ExtractionError{Summary: err.Error()}
	}
	return meta, nil
}

// parseDump converts the engine's JSON dump into Metadata. Formats with
// no id or extension, or with neither an audio nor a video stream, are
// dropped.
func parseDump(data []byte) (*media.Metadata, error) {
	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unreadable engine output: %w", err)
	}

	meta := &media.Metadata{
		VideoID:         d.ID,
		Title:           d.Title,
		Uploader:        d.Uploader,
		ThumbnailURL:    d.Thumbnail,
		DurationSeconds: int(d.Duration),
		ViewCount:       d.ViewCount,
		LikeCount:       d.LikeCount,
		SubscriberCount: d.FollowerCount,
		Source:          media.SourceExtractionEngine,
	}

	for _, f := range d.Formats {
		if f.FormatID == "" || f.URL == "" || f.Ext == "" {
			continue
		}
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		if !hasVideo && !hasAudio {
			continue
		}
		size := f.FileSize
		if size == 0 {
			size = f.FileSizeA
		}
		meta.Formats = append(meta.Formats, media.Format{
			FormatID: f.FormatID,
			Ext:      f.Ext,
			Width:    f.Width,
			Height:   f.Height,
			FPS:      f.FPS,
			Note:     f.FormatNote,
			FileSize: size,
			HasVideo: hasVideo,
			HasAudio: hasAudio,
		})
	}
	return meta, nil
}

// writeCookieFile materializes the configured cookie content into a temp
// file. Returns ("", noop, nil) when no cookies are configured.
func (e *Engine) writeCookieFile() (string, func(), error) {
	if e.cookies == "" {
		return "", func() {}, nil
	}
	f, err := os.CreateTemp("", "ytgrab-cookies-*.txt")
	if err != nil {
		return "", func() {}, err
	}
	if _, err := f.WriteString(e.cookies); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", func() {}, err
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// firstErrorLine picks the first ERROR line from the engine's stderr, or
// the first non-empty line when no explicit ERROR marker is present.
func firstErrorLine(stderr string) string {
	var fallback string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}

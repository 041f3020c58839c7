package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// runThumbnail fetches the video's thumbnail image and converts it to
// PNG. There is no engine subprocess here, so progress is coarse: one
// event when the transfer finishes and one while converting.
func (y *YtDlp) runThumbnail(ctx context.Context, req Request, workDir string, emit func(Event)) (*Result, error) {
	if y.info == nil {
		return nil, fmt.Errorf("thumbnail jobs need a metadata source")
	}
	meta, err := y.info.Probe(ctx, req.VideoID)
	if err != nil {
		return nil, fmt.Errorf("resolve thumbnail: %w", err)
	}
	if meta.ThumbnailURL == "" {
		return nil, fmt.Errorf("video %s has no thumbnail", req.VideoID)
	}

	raw := filepath.Join(workDir, "thumbnail"+thumbExt(meta.ThumbnailURL))
	if err := y.fetch(ctx, meta.ThumbnailURL, raw); err != nil {
		return nil, err
	}
	emit(Event{Stage: StageDownloading, Percent: 100})

	out := filepath.Join(workDir, safeTitle(meta.Title)+".png")
	if strings.EqualFold(filepath.Ext(raw), ".png") {
		if err := os.Rename(raw, out); err != nil {
			return nil, fmt.Errorf("place thumbnail: %w", err)
		}
		return resultFor(out), nil
	}

	emit(Event{Stage: StageProcessing, Percent: -1})
	if err := y.ffmpeg.ConvertToPNG(ctx, raw, out); err != nil {
		return nil, err
	}
	os.Remove(raw)
	return resultFor(out), nil
}

func (y *YtDlp) fetch(ctx context.Context, url, dest string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch thumbnail: unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("write thumbnail: %w", err)
	}
	return f.Close()
}

func thumbExt(url string) string {
	ext := filepath.Ext(url)
	if i := strings.IndexAny(ext, "?#"); i >= 0 {
		ext = ext[:i]
	}
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	default:
		return ".jpg"
	}
}

// safeTitle strips path separators and other characters that break
// filenames, keeping the rest of the title intact.
func safeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "thumbnail"
	}
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	return replacer.Replace(title)
}

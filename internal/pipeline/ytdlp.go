package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/media"
	"github.com/renkel/ytgrab/internal/quality"
)

// defaultHeightCap bounds the automatic "best" selection so a bare
// request does not pull an 8K master by accident.
const defaultHeightCap = 1440

// infoSource supplies video metadata for jobs that need it up front
// (thumbnails need the image URL and title before any transfer starts).
type infoSource interface {
	Probe(ctx context.Context, videoID string) (*media.Metadata, error)
}

// YtDlp runs jobs through the yt-dlp binary, recoding video to mp4 and
// extracting audio to mp3.
type YtDlp struct {
	binary  string
	ffmpeg  *FFmpeg
	proxy   string
	cookies string
	info    infoSource
	log     zerolog.Logger
}

func NewYtDlp(binary, proxy, cookies string, ffmpeg *FFmpeg, info infoSource, log zerolog.Logger) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlp{
		binary:  binary,
		ffmpeg:  ffmpeg,
		proxy:   proxy,
		cookies: cookies,
		info:    info,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
}

func (y *YtDlp) Run(ctx context.Context, req Request, workDir string, emit func(Event)) (*Result, error) {
	switch req.Kind {
	case media.KindThumbnail:
		return y.runThumbnail(ctx, req, workDir, emit)
	case media.KindVideo, media.KindAudio:
		return y.runEngine(ctx, req, workDir, emit)
	default:
		return nil, fmt.Errorf("unsupported kind %q", req.Kind)
	}
}

func (y *YtDlp) runEngine(ctx context.Context, req Request, workDir string, emit func(Event)) (*Result, error) {
	args, err := y.buildArgs(req, workDir)
	if err != nil {
		return nil, err
	}
	if y.cookies != "" {
		cookieFile, cerr := writeCookieFile(y.cookies)
		if cerr != nil {
			return nil, fmt.Errorf("write cookies: %w", cerr)
		}
		defer os.Remove(cookieFile)
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args, req.URL)

	y.log.Debug().Str("video_id", req.VideoID).Strs("args", args).Msg("starting engine")

	cmd := exec.CommandContext(ctx, y.binary, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", y.binary, err)
	}

	var destination string
	var lastLine string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) != "" {
				lastLine = line
			}
			ev, ok := ParseLine(line)
			if !ok {
				continue
			}
			if ev.Destination != "" {
				destination = ev.Destination
			}
			emit(ev)
		}
	}()

	waitErr := cmd.Wait()
	pw.Close()
	<-done

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		summary := firstErrorLine(lastLine)
		return nil, fmt.Errorf("engine failed: %s: %w", summary, waitErr)
	}

	out, err := y.locateOutput(req.Kind, workDir, destination)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// buildArgs assembles the engine invocation for video and audio jobs.
func (y *YtDlp) buildArgs(req Request, workDir string) ([]string, error) {
	outTemplate := filepath.Join(workDir, "%(title)s.%(ext)s")
	args := []string{"--newline", "--no-playlist", "--no-cache-dir", "-o", outTemplate}
	if y.proxy != "" {
		args = append(args, "--proxy", y.proxy)
	}
	if loc := y.ffmpeg.Location(); loc != "" {
		args = append(args, "--ffmpeg-location", loc)
	}

	switch req.Kind {
	case media.KindAudio:
		args = append(args, "-f", "bestaudio", "-x", "--audio-format", "mp3", "--audio-quality", "0")
	case media.KindVideo:
		args = append(args, "-f", formatSelector(req.FormatID), "--recode-video", "mp4")
	}
	return args, nil
}

var heightShape = regexp.MustCompile(`^(\d{3,4})p$`)

// formatSelector maps the client's selection to an engine format string.
// A height-shaped selection ("1080p") becomes a capped
// best-video+best-audio pair; anything else is an explicit format id and
// passes through with a best-audio companion so video-only streams still
// get sound. Bare digits stay format ids, not heights.
func formatSelector(formatID string) string {
	switch formatID {
	case "", quality.BestFormatID:
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", defaultHeightCap, defaultHeightCap)
	}
	if m := heightShape.FindStringSubmatch(formatID); m != nil {
		return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", m[1], m[1])
	}
	return formatID + "+bestaudio/" + formatID
}

// locateOutput resolves the finished artifact. The announced destination
// is preferred; when the engine renamed during recode the work directory
// is scanned instead.
func (y *YtDlp) locateOutput(kind media.Kind, workDir, destination string) (*Result, error) {
	wantExt := ".mp4"
	if kind == media.KindAudio {
		wantExt = ".mp3"
	}

	if destination != "" {
		// A merge or recode replaces the announced file's extension.
		candidate := strings.TrimSuffix(destination, filepath.Ext(destination)) + wantExt
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return resultFor(candidate), nil
		}
		if st, err := os.Stat(destination); err == nil && !st.IsDir() {
			return resultFor(destination), nil
		}
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, fmt.Errorf("scan output dir: %w", err)
	}
	var fallback string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == wantExt {
			return resultFor(filepath.Join(workDir, e.Name())), nil
		}
		if ext != ".part" && ext != ".ytdl" {
			fallback = filepath.Join(workDir, e.Name())
		}
	}
	if fallback != "" {
		return resultFor(fallback), nil
	}
	return nil, fmt.Errorf("engine produced no output in %s", workDir)
}

func resultFor(path string) *Result {
	return &Result{
		OutputPath: path,
		Filename:   filepath.Base(path),
		MIMEType:   mimeForExt(filepath.Ext(path)),
	}
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// firstErrorLine trims an engine failure down to its most useful line.
func firstErrorLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "no output"
	}
	if idx := strings.Index(line, "ERROR:"); idx >= 0 {
		return strings.TrimSpace(line[idx+len("ERROR:"):])
	}
	return line
}

func writeCookieFile(content string) (string, error) {
	f, err := os.CreateTemp("", "ytgrab-cookies-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

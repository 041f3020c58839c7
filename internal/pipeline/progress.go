package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// yt-dlp with --newline prints one status line per update, e.g.
//
//	[download]  45.2% of  150.00MiB at    5.00MiB/s ETA 00:15
//	[download] Destination: /tmp/job/My Video.f137.mp4
//	[Merger] Merging formats into "/tmp/job/My Video.mp4"
//	[VideoConvertor] Converting video from webm to mp4; ...
var (
	percentRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	speedRe       = regexp.MustCompile(`at\s+(~?[\d.]+\s*[KMGT]?i?B/s)`)
	etaRe         = regexp.MustCompile(`ETA\s+((?:\d+:)?\d{1,2}:\d{2})`)
	destinationRe = regexp.MustCompile(`Destination:\s+(.+)$`)
	mergerRe      = regexp.MustCompile(`\[Merger\] Merging formats into "(.+)"`)
)

// processingMarkers are prefixes of engine lines that mean the transfer
// is done and post-processing has started.
var processingMarkers = []string{
	"[Merger]",
	"[VideoConvertor]",
	"[ExtractAudio]",
	"[VideoRemuxer]",
	"[FixupM3u8]",
}

// ParseLine maps one engine output line to an Event. The second return
// is false for lines that carry no progress information.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}

	if m := mergerRe.FindStringSubmatch(line); m != nil {
		return Event{Stage: StageProcessing, Percent: -1, Destination: m[1]}, true
	}
	for _, marker := range processingMarkers {
		if strings.HasPrefix(line, marker) {
			return Event{Stage: StageProcessing, Percent: -1}, true
		}
	}

	if !strings.HasPrefix(line, "[download]") {
		return Event{}, false
	}
	if m := destinationRe.FindStringSubmatch(line); m != nil {
		return Event{Stage: StageDownloading, Percent: -1, Destination: m[1]}, true
	}

	ev := Event{Stage: StageDownloading, Percent: -1}
	matched := false
	if m := percentRe.FindStringSubmatch(line); m != nil {
		if p, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.Percent = p
			matched = true
		}
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		ev.Speed = strings.TrimSpace(m[1])
		matched = true
	}
	if m := etaRe.FindStringSubmatch(line); m != nil {
		ev.ETA = m[1]
		matched = true
	}
	if !matched {
		return Event{}, false
	}
	return ev, true
}

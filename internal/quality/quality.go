// Package quality reconciles the two independent quality signals (player
// probe and extraction engine) into the single label and format list shown
// to the user. Everything here is a pure function of its inputs; the racy
// parts of the system stay in the probes.
package quality

import (
	"sort"

	"github.com/renkel/ytgrab/internal/media"
)

// playerTiers maps the player's self-reported quality levels to display
// labels. The player vocabulary is fixed; levels outside it carry no
// usable signal.
var playerTiers = map[string]string{
	"tiny":    "144p",
	"small":   "240p",
	"medium":  "360p",
	"large":   "480p",
	"hd720":   "HD",
	"hd1080":  "Full HD",
	"hd1440":  "2K",
	"hd2160":  "4K",
	"hd2880":  "5K",
	"highres": "8K",
}

// playerTierHeights gives the numeric height for each player level so the
// high-resolution flag can be derived from whichever source won.
var playerTierHeights = map[string]int{
	"tiny":    144,
	"small":   240,
	"medium":  360,
	"large":   480,
	"hd720":   720,
	"hd1080":  1080,
	"hd1440":  1440,
	"hd2160":  2160,
	"hd2880":  2880,
	"highres": 4320,
}

// LabelForPlayerLevel maps a player quality level (e.g. "hd1080") to its
// display label. ok is false for levels outside the known vocabulary.
func LabelForPlayerLevel(level string) (label string, height int, ok bool) {
	label, ok = playerTiers[level]
	if !ok {
		return "", 0, false
	}
	return label, playerTierHeights[level], true
}

// LabelForHeight maps a numeric pixel height to a display tier.
func LabelForHeight(height int) string {
	switch {
	case height >= 2160:
		return "4K"
	case height >= 1440:
		return "2K"
	case height >= 1080:
		return "Full HD"
	case height >= 720:
		return "HD"
	default:
		return "SD"
	}
}

// BestFormatID is the synthetic selector pinned at the top of every video
// format list. The pipeline maps it to the engine's own best-selection
// expression rather than a concrete format.
const BestFormatID = "best"

// Option is one selectable entry offered to the user.
type Option struct {
	FormatID string  `json:"format_id"`
	Label    string  `json:"label"`
	Height   int     `json:"height,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Ext      string  `json:"ext,omitempty"`
	Note     string  `json:"note,omitempty"`
}

// Resolution is the resolver's merged output.
type Resolution struct {
	Label          string              `json:"best_quality_label"`
	Source         media.QualitySource `json:"label_source"`
	HighResolution bool                `json:"high_resolution"`
	Options        []Option            `json:"options"`
}

// PlayerEstimate converts the raw player level into a quality estimate.
// nil when the level is empty or outside the known vocabulary.
func PlayerEstimate(level string) *media.QualityEstimate {
	label, height, ok := LabelForPlayerLevel(level)
	if !ok {
		return nil
	}
	return &media.QualityEstimate{
		Label:  label,
		Source: media.QualityFromPlayer,
		Height: height,
	}
}

// ExtractionEstimate derives a quality estimate from the engine's format
// list. nil when no format carries a video height.
func ExtractionEstimate(formats []media.Format) *media.QualityEstimate {
	h := maxVideoHeight(formats)
	if h <= 0 {
		return nil
	}
	return &media.QualityEstimate{
		Label:  LabelForHeight(h),
		Source: media.QualityFromExtraction,
		Height: h,
	}
}

// Resolve merges the optional player estimate with the extraction engine's
// format list. playerLevel is the raw level from the instrumentation probe
// ("" when the probe failed or timed out).
func Resolve(playerLevel string, formats []media.Format, kind media.Kind) Resolution {
	est := ExtractionEstimate(formats)
	// The player reflects what the platform itself reports as playable,
	// so it wins over the engine's enumeration when both answered.
	if p := PlayerEstimate(playerLevel); p != nil {
		est = p
	}
	if est == nil {
		est = &media.QualityEstimate{Label: "Unavailable", Source: media.QualityUnavailable}
	}

	res := Resolution{
		Label:          est.Label,
		Source:         est.Source,
		HighResolution: est.Height >= 1440,
	}

	switch kind {
	case media.KindAudio:
		res.Options = audioOptions(formats)
	case media.KindThumbnail:
		// No quality list for thumbnails.
	default:
		res.Options = videoOptions(formats, est.Label)
	}
	return res
}

// videoOptions builds the selectable list: the synthetic "best" entry first,
// annotated with the resolved label, then the engine's video formats sorted
// by descending height, ties broken by descending frame rate.
func videoOptions(formats []media.Format, bestLabel string) []Option {
	opts := []Option{{
		FormatID: BestFormatID,
		Label:    bestLabel,
		Note:     "recommended",
	}}

	video := make([]media.Format, 0, len(formats))
	for _, f := range formats {
		if f.HasVideo {
			video = append(video, f)
		}
	}
	sort.SliceStable(video, func(i, j int) bool {
		if video[i].Height != video[j].Height {
			return video[i].Height > video[j].Height
		}
		return video[i].FPS > video[j].FPS
	})

	seen := make(map[string]bool)
	for _, f := range video {
		if f.FormatID == "" || seen[f.FormatID] {
			continue
		}
		seen[f.FormatID] = true
		opts = append(opts, Option{
			FormatID: f.FormatID,
			Label:    LabelForHeight(f.Height),
			Height:   f.Height,
			FPS:      f.FPS,
			Ext:      f.Ext,
			Note:     f.Note,
		})
	}
	return opts
}

// audioOptions returns the single best audio-only format, falling back to
// the synthetic best entry when the engine offered nothing.
func audioOptions(formats []media.Format) []Option {
	var best *media.Format
	for i := range formats {
		f := &formats[i]
		if !f.HasAudio || f.HasVideo {
			continue
		}
		if best == nil || f.FileSize > best.FileSize {
			best = f
		}
	}
	if best == nil {
		return []Option{{FormatID: BestFormatID, Label: "Audio", Note: "recommended"}}
	}
	return []Option{{
		FormatID: best.FormatID,
		Label:    "Audio",
		Ext:      best.Ext,
		Note:     best.Note,
	}}
}

func maxVideoHeight(formats []media.Format) int {
	max := 0
	for _, f := range formats {
		if f.HasVideo && f.Height > max {
			max = f.Height
		}
	}
	return max
}

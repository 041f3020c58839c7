package quality

import (
	"testing"

	"github.com/renkel/ytgrab/internal/media"
)

func TestResolvePlayerPrecedence(t *testing.T) {
	// Player says Full HD while the engine lists a 4K format: the player
	// signal wins.
	formats := []media.Format{
		{FormatID: "313", Height: 2160, HasVideo: true, Ext: "webm"},
		{FormatID: "137", Height: 1080, HasVideo: true, Ext: "mp4"},
	}

	res := Resolve("hd1080", formats, media.KindVideo)
	if res.Label != "Full HD" {
		t.Errorf("label = %q, want Full HD", res.Label)
	}
	if res.Source != media.QualityFromPlayer {
		t.Errorf("source = %q, want player_probe", res.Source)
	}
	if res.HighResolution {
		t.Error("Full HD must not be flagged high resolution")
	}
}

func TestResolveExtractionFallback(t *testing.T) {
	formats := []media.Format{
		{FormatID: "313", Height: 2160, HasVideo: true},
		{FormatID: "136", Height: 720, HasVideo: true},
	}

	res := Resolve("", formats, media.KindVideo)
	if res.Label != "4K" {
		t.Errorf("label = %q, want 4K", res.Label)
	}
	if res.Source != media.QualityFromExtraction {
		t.Errorf("source = %q, want extraction_probe", res.Source)
	}
	if !res.HighResolution {
		t.Error("4K must be flagged high resolution")
	}
}

func TestResolveNoSignals(t *testing.T) {
	res := Resolve("", nil, media.KindVideo)
	if res.Label != "Unavailable" {
		t.Errorf("label = %q, want Unavailable", res.Label)
	}
	if res.Source != media.QualityUnavailable {
		t.Errorf("source = %q, want unavailable", res.Source)
	}
	// Even with both probes dark the user still gets a selectable entry.
	if len(res.Options) != 1 || res.Options[0].FormatID != BestFormatID {
		t.Fatalf("options = %+v, want single %q fallback", res.Options, BestFormatID)
	}
}

func TestResolveHighResolutionFromPlayer(t *testing.T) {
	// The flag must follow the resolved label, not the losing source.
	res := Resolve("hd1440", []media.Format{{FormatID: "136", Height: 720, HasVideo: true}}, media.KindVideo)
	if res.Label != "2K" || !res.HighResolution {
		t.Errorf("got label=%q highres=%v, want 2K/true", res.Label, res.HighResolution)
	}
}

func TestVideoOptionsOrder(t *testing.T) {
	formats := []media.Format{
		{FormatID: "136", Height: 720, FPS: 30, HasVideo: true},
		{FormatID: "137", Height: 1080, FPS: 30, HasVideo: true},
		{FormatID: "299", Height: 1080, FPS: 60, HasVideo: true},
		{FormatID: "140", HasAudio: true}, // audio-only, excluded
		{FormatID: "137", Height: 1080, FPS: 30, HasVideo: true}, // duplicate id
	}

	res := Resolve("", formats, media.KindVideo)

	want := []string{BestFormatID, "299", "137", "136"}
	if len(res.Options) != len(want) {
		t.Fatalf("got %d options, want %d: %+v", len(res.Options), len(want), res.Options)
	}
	for i, id := range want {
		if res.Options[i].FormatID != id {
			t.Errorf("options[%d] = %q, want %q", i, res.Options[i].FormatID, id)
		}
	}
	if res.Options[0].Label != "Full HD" {
		t.Errorf("best entry label = %q, want resolved Full HD", res.Options[0].Label)
	}
}

func TestAudioOptions(t *testing.T) {
	formats := []media.Format{
		{FormatID: "140", HasAudio: true, FileSize: 100, Ext: "m4a"},
		{FormatID: "251", HasAudio: true, FileSize: 200, Ext: "webm"},
		{FormatID: "137", Height: 1080, HasVideo: true},
	}

	res := Resolve("", formats, media.KindAudio)
	if len(res.Options) != 1 || res.Options[0].FormatID != "251" {
		t.Fatalf("audio options = %+v, want single 251", res.Options)
	}
}

func TestThumbnailHasNoOptions(t *testing.T) {
	res := Resolve("hd1080", []media.Format{{FormatID: "137", Height: 1080, HasVideo: true}}, media.KindThumbnail)
	if len(res.Options) != 0 {
		t.Errorf("thumbnail options = %+v, want none", res.Options)
	}
}

func TestLabelForHeight(t *testing.T) {
	tests := []struct {
		height int
		want   string
	}{
		{4320, "4K"}, {2160, "4K"}, {1440, "2K"}, {1080, "Full HD"},
		{720, "HD"}, {480, "SD"}, {0, "SD"},
	}
	for _, tt := range tests {
		if got := LabelForHeight(tt.height); got != tt.want {
			t.Errorf("LabelForHeight(%d) = %q, want %q", tt.height, got, tt.want)
		}
	}
}

func TestLabelForPlayerLevel(t *testing.T) {
	if l, h, ok := LabelForPlayerLevel("hd2160"); !ok || l != "4K" || h != 2160 {
		t.Errorf("hd2160 -> %q,%d,%v", l, h, ok)
	}
	if _, _, ok := LabelForPlayerLevel("auto"); ok {
		t.Error("unknown level must not map")
	}
}

func TestPlayerEstimate(t *testing.T) {
	est := PlayerEstimate("hd2160")
	if est == nil {
		t.Fatal("expected an estimate for a known level")
	}
	if est.Label != "4K" || est.Source != media.QualityFromPlayer || est.Height != 2160 {
		t.Errorf("estimate = %+v", est)
	}

	for _, level := range []string{"", "auto", "hd9000"} {
		if got := PlayerEstimate(level); got != nil {
			t.Errorf("PlayerEstimate(%q) = %+v, want nil", level, got)
		}
	}
}

func TestExtractionEstimate(t *testing.T) {
	formats := []media.Format{
		{FormatID: "140", HasAudio: true},
		{FormatID: "137", Height: 1080, HasVideo: true},
		{FormatID: "271", Height: 1440, HasVideo: true},
	}
	est := ExtractionEstimate(formats)
	if est == nil {
		t.Fatal("expected an estimate when video formats carry heights")
	}
	if est.Label != "2K" || est.Source != media.QualityFromExtraction || est.Height != 1440 {
		t.Errorf("estimate = %+v", est)
	}

	if got := ExtractionEstimate(nil); got != nil {
		t.Errorf("ExtractionEstimate(nil) = %+v, want nil", got)
	}
	audioOnly := []media.Format{{FormatID: "140", HasAudio: true}}
	if got := ExtractionEstimate(audioOnly); got != nil {
		t.Errorf("ExtractionEstimate(audio only) = %+v, want nil", got)
	}
}

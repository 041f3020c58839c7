package pipeline

import "testing"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
		ok   bool
	}{
		{
			name: "transfer with rate and eta",
			line: "[download]  45.2% of  150.00MiB at    5.00MiB/s ETA 00:15",
			want: Event{Stage: StageDownloading, Percent: 45.2, Speed: "5.00MiB/s", ETA: "00:15"},
			ok:   true,
		},
		{
			name: "transfer complete",
			line: "[download] 100% of 150.00MiB in 00:30",
			want: Event{Stage: StageDownloading, Percent: 100},
			ok:   true,
		},
		{
			name: "unknown rate",
			line: "[download]   0.1% of ~120.03MiB at  Unknown B/s ETA Unknown",
			want: Event{Stage: StageDownloading, Percent: 0.1},
			ok:   true,
		},
		{
			name: "hour-long eta",
			line: "[download]   2.0% of 4.00GiB at 1.00MiB/s ETA 1:08:15",
			want: Event{Stage: StageDownloading, Percent: 2.0, Speed: "1.00MiB/s", ETA: "1:08:15"},
			ok:   true,
		},
		{
			name: "destination",
			line: "[download] Destination: /tmp/job/My Video.f137.mp4",
			want: Event{Stage: StageDownloading, Percent: -1, Destination: "/tmp/job/My Video.f137.mp4"},
			ok:   true,
		},
		{
			name: "merger",
			line: `[Merger] Merging formats into "/tmp/job/My Video.mp4"`,
			want: Event{Stage: StageProcessing, Percent: -1, Destination: "/tmp/job/My Video.mp4"},
			ok:   true,
		},
		{
			name: "convertor",
			line: "[VideoConvertor] Converting video from webm to mp4; Destination unchanged",
			want: Event{Stage: StageProcessing, Percent: -1},
			ok:   true,
		},
		{
			name: "audio extraction",
			line: "[ExtractAudio] Destination: /tmp/job/My Song.mp3",
			want: Event{Stage: StageProcessing, Percent: -1},
			ok:   true,
		},
		{
			name: "info line ignored",
			line: "[youtube] dQw4w9WgXcQ: Downloading webpage",
			ok:   false,
		},
		{
			name: "blank ignored",
			line: "   ",
			ok:   false,
		},
		{
			name: "download banner without numbers ignored",
			line: "[download] Resuming download at byte 1024",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "bestvideo[height<=1440]+bestaudio/best[height<=1440]"},
		{"best", "bestvideo[height<=1440]+bestaudio/best[height<=1440]"},
		{"1080p", "bestvideo[height<=1080]+bestaudio/best[height<=1080]"},
		{"720p", "bestvideo[height<=720]+bestaudio/best[height<=720]"},
		{"137", "137+bestaudio/137"},
		{"299", "299+bestaudio/299"},
	}
	for _, tt := range tests {
		if got := formatSelector(tt.in); got != tt.want {
			t.Errorf("formatSelector(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package pipeline executes the extraction/transcode work for one job:
// it drives the external engine, translates its native progress output
// into normalized events, and hands back the finished artifact.
package pipeline

import (
	"context"

	"github.com/renkel/ytgrab/internal/media"
)

// Stage distinguishes the transfer phase (rate/ETA meaningful) from
// post-processing (indeterminate).
type Stage string

const (
	StageDownloading Stage = "downloading"
	StageProcessing  Stage = "processing"
)

// Event is one normalized progress update emitted while a job runs.
type Event struct {
	Stage Stage
	// Percent is 0-100, or -1 when the line carried no percentage.
	Percent float64
	// Speed and ETA are the engine's human-readable strings, "" when the
	// line carried none.
	Speed string
	ETA   string
	// Destination is set when the engine announces its output file.
	Destination string
}

// Request describes what one job should produce.
type Request struct {
	URL      string
	VideoID  string
	Kind     media.Kind
	FormatID string
}

// Result is the finished artifact.
type Result struct {
	OutputPath string
	Filename   string
	MIMEType   string
}

// Pipeline runs one extraction/transcode job inside workDir, reporting
// progress through emit. Implementations must terminate their subprocess
// when ctx is canceled; removing partial output is the caller's job
// (it owns workDir).
type Pipeline interface {
	Run(ctx context.Context, req Request, workDir string, emit func(Event)) (*Result, error)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/renkel/ytgrab/internal/pipeline"
)

// transferCeiling is where the transfer phase tops out. The remaining
// span is reserved for post-processing so the bar never sits at 100
// while muxing is still running.
const transferCeiling = 90.0

// run executes one job and drives its state machine to a terminal
// state. Progress only ever moves forward; it freezes at its last
// value on failure or cancellation.
func (q *Queue) run(j *job) {
	if j.ctx.Err() != nil {
		q.finishCanceled(j)
		return
	}

	q.mu.Lock()
	j.state = StateDownloading
	j.startedAt = time.Now()
	j.updatedAt = j.startedAt
	q.mu.Unlock()

	res, err := q.pipeline.Run(j.ctx, j.req, j.workDir, func(ev pipeline.Event) {
		q.applyEvent(j, ev)
	})

	switch {
	case j.ctx.Err() != nil:
		q.finishCanceled(j)
	case err != nil:
		q.finishFailed(j, err)
	default:
		q.finishCompleted(j, res)
	}
}

// applyEvent folds one pipeline event into the job record. Updates
// after cancellation are dropped so a late progress line cannot race
// the canceled state.
func (q *Queue) applyEvent(j *job, ev pipeline.Event) {
	if j.ctx.Err() != nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if j.state.Terminal() {
		return
	}

	changed := false
	switch ev.Stage {
	case pipeline.StageProcessing:
		if j.state != StateProcessing {
			j.state = StateProcessing
			j.processingAt = time.Now()
			if j.progress < transferCeiling {
				j.progress = transferCeiling
			}
			j.speed = ""
			j.eta = ""
			changed = true
		}
	case pipeline.StageDownloading:
		if ev.Percent >= 0 {
			// Raw transfer percent is scaled under the ceiling so the
			// value stays monotonic across multi-stream downloads and
			// into post-processing.
			scaled := ev.Percent * transferCeiling / 100
			if scaled > j.progress {
				j.progress = scaled
				changed = true
			}
		}
		if ev.Speed != "" && ev.Speed != j.speed {
			j.speed = ev.Speed
			changed = true
		}
		if eta := q.etaFor(j, ev); eta != j.eta {
			j.eta = eta
			changed = true
		}
	}
	if changed {
		j.updatedAt = time.Now()
	}
}

// etaFor prefers the engine's own estimate and falls back to deriving
// one from elapsed time and progress. Must be called with q.mu held.
func (q *Queue) etaFor(j *job, ev pipeline.Event) string {
	if ev.ETA != "" {
		return ev.ETA
	}
	p := j.progress / transferCeiling * 100
	if ev.Percent > p {
		p = ev.Percent
	}
	if p <= 0 || j.startedAt.IsZero() {
		return j.eta
	}
	elapsed := time.Since(j.startedAt)
	remaining := time.Duration(float64(elapsed) * (100 - p) / p)
	return formatETA(remaining)
}

func (q *Queue) finishCompleted(j *job, res *pipeline.Result) {
	q.mu.Lock()
	j.state = StateCompleted
	j.progress = 100
	j.speed = ""
	j.eta = ""
	j.outputPath = res.OutputPath
	j.filename = res.Filename
	j.mimeType = res.MIMEType
	j.updatedAt = time.Now()
	q.mu.Unlock()
	q.log.Info().Str("job_id", j.id).Str("filename", res.Filename).Msg("job completed")
}

// freezeProgress folds the read-time processing creep into the stored
// value so a poll after the terminal transition never reports less than
// one before it. Must be called with q.mu held, before the state flips.
func freezeProgress(j *job) {
	if j.state != StateProcessing || j.processingAt.IsZero() {
		return
	}
	crept := transferCeiling + time.Since(j.processingAt).Seconds()
	if crept > 99 {
		crept = 99
	}
	if crept > j.progress {
		j.progress = crept
	}
}

func (q *Queue) finishFailed(j *job, err error) {
	msg := sanitizeError(err, j.workDir)
	q.mu.Lock()
	freezeProgress(j)
	j.state = StateFailed
	j.speed = ""
	j.eta = ""
	j.errMsg = msg
	j.updatedAt = time.Now()
	q.mu.Unlock()
	q.log.Error().Str("job_id", j.id).Str("reason", msg).Msg("job failed")
}

// finishCanceled removes partial output before the state lands on
// canceled, so a poll that observes the terminal state can rely on the
// disk being clean.
func (q *Queue) finishCanceled(j *job) {
	if err := os.RemoveAll(j.workDir); err != nil {
		q.log.Warn().Err(err).Str("job_id", j.id).Msg("cancel: removing work dir failed")
	}
	q.mu.Lock()
	freezeProgress(j)
	j.state = StateCanceled
	j.speed = ""
	j.eta = ""
	j.updatedAt = time.Now()
	q.mu.Unlock()
	q.log.Info().Str("job_id", j.id).Msg("job canceled")
}

// sanitizeError reduces a pipeline failure to a single line with local
// paths stripped out.
func sanitizeError(err error, workDir string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "timed out"
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if workDir != "" {
		msg = strings.ReplaceAll(msg, workDir, "")
	}
	return strings.TrimSpace(msg)
}

// formatETA renders a duration the way the engine does, mm:ss with an
// hour component when needed.
func formatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

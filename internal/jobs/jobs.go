// Package jobs tracks extraction/transcode jobs: creation, progress,
// cancellation, and retention of finished artifacts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/media"
	"github.com/renkel/ytgrab/internal/pipeline"
)

// State is the current phase of a job. Transitions are strictly
// forward; no terminal state transitions out.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCanceled    State = "canceled"
)

// Terminal reports whether a job in this state will never change again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

var (
	ErrNotFound = errors.New("job not found")
	// ErrNotReady means the job exists but has not completed, so there
	// is no artifact to serve yet.
	ErrNotReady = errors.New("job not completed")
)

// Snapshot is an immutable copy of a job's public state.
type Snapshot struct {
	ID       string     `json:"id"`
	VideoID  string     `json:"video_id"`
	URL      string     `json:"url"`
	Kind     media.Kind `json:"kind"`
	FormatID string     `json:"format_id"`
	State    State      `json:"status"`
	Progress float64    `json:"progress"`
	Speed    string     `json:"speed,omitempty"`
	ETA      string     `json:"eta,omitempty"`
	// ElapsedSeconds counts from dispatch; it stops advancing once the
	// job is terminal.
	ElapsedSeconds float64   `json:"elapsed"`
	Error          string    `json:"error,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	MIMEType       string    `json:"mime_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// job is the mutable record. Every field below the mutex comment is
// guarded by Queue.mu.
type job struct {
	id      string
	req     pipeline.Request
	workDir string
	ctx     context.Context
	cancel  context.CancelFunc

	// guarded by Queue.mu
	state        State
	progress     float64
	speed        string
	eta          string
	errMsg       string
	outputPath   string
	filename     string
	mimeType     string
	createdAt    time.Time
	updatedAt    time.Time
	startedAt    time.Time
	processingAt time.Time
}

// Queue manages jobs with a fixed worker pool and a retention sweep
// that evicts terminal jobs and their work directories.
type Queue struct {
	mu       sync.RWMutex
	jobs     map[string]*job
	queue    chan *job
	closed   bool
	workers  int
	workRoot string

	pipeline  pipeline.Pipeline
	retention time.Duration
	log       zerolog.Logger

	wg          sync.WaitGroup
	sweepTicker *time.Ticker
	stopSweep   chan struct{}
}

const (
	defaultWorkers = 4
	sweepInterval  = 10 * time.Minute
)

func NewQueue(p pipeline.Pipeline, workRoot string, retention time.Duration, log zerolog.Logger) *Queue {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Queue{
		jobs:      make(map[string]*job),
		queue:     make(chan *job, 100),
		workers:   defaultWorkers,
		workRoot:  workRoot,
		pipeline:  p,
		retention: retention,
		log:       log.With().Str("component", "jobs").Logger(),
		stopSweep: make(chan struct{}),
	}
}

// Start launches the worker pool and the retention sweep.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.sweepTicker = time.NewTicker(sweepInterval)
	go q.sweepLoop()
}

// Stop rejects further Create calls, drains the queue, and waits for
// running jobs to finish. Safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	close(q.stopSweep)
	if q.sweepTicker != nil {
		q.sweepTicker.Stop()
	}
	q.wg.Wait()
}

// Create registers a new job, makes it visible to Get, and hands it to
// the worker pool. Job ids are unique and never reused.
func (q *Queue) Create(req pipeline.Request) (Snapshot, error) {
	id := uuid.NewString()
	workDir := filepath.Join(q.workRoot, id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("create work dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	j := &job{
		id:        id,
		req:       req,
		workDir:   workDir,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateQueued,
		createdAt: now,
		updatedAt: now,
	}

	// Registration and enqueue share one critical section with the
	// closed flag so Create can never race Stop into a closed channel.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		cancel()
		os.RemoveAll(workDir)
		return Snapshot{}, errors.New("queue is shutting down")
	}
	q.jobs[id] = j
	select {
	case q.queue <- j:
	default:
		delete(q.jobs, id)
		q.mu.Unlock()
		cancel()
		os.RemoveAll(workDir)
		return Snapshot{}, errors.New("job queue is full")
	}
	snap := q.snapshot(j)
	q.mu.Unlock()

	q.log.Info().Str("job_id", id).Str("video_id", req.VideoID).
		Str("kind", string(req.Kind)).Str("format_id", req.FormatID).Msg("job created")
	return snap, nil
}

// Get returns an immutable copy of the job's state.
func (q *Queue) Get(id string) (Snapshot, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return q.snapshot(j), true
}

// Cancel requests cooperative cancellation. Canceling a terminal job is
// a no-op that still succeeds; only unknown ids report false.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return false
	}
	if j.state.Terminal() {
		return true
	}
	j.cancel()
	return true
}

// Output resolves the finished artifact. ErrNotReady until the job
// completes, ErrNotFound for unknown or evicted ids.
func (q *Queue) Output(id string) (Snapshot, string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return Snapshot{}, "", ErrNotFound
	}
	if j.state != StateCompleted {
		return Snapshot{}, "", ErrNotReady
	}
	return q.snapshot(j), j.outputPath, nil
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.queue {
		q.run(j)
	}
}

func (q *Queue) sweepLoop() {
	for {
		select {
		case <-q.sweepTicker.C:
			q.sweep(time.Now())
		case <-q.stopSweep:
			return
		}
	}
}

// sweep evicts terminal jobs whose last update is past the retention
// window and removes their work directories.
func (q *Queue) sweep(now time.Time) {
	cutoff := now.Add(-q.retention)

	q.mu.Lock()
	var evicted []*job
	for id, j := range q.jobs {
		if j.state.Terminal() && j.updatedAt.Before(cutoff) {
			delete(q.jobs, id)
			evicted = append(evicted, j)
		}
	}
	q.mu.Unlock()

	for _, j := range evicted {
		if err := os.RemoveAll(j.workDir); err != nil {
			q.log.Warn().Err(err).Str("job_id", j.id).Msg("evict: removing work dir failed")
		} else {
			q.log.Debug().Str("job_id", j.id).Msg("job evicted")
		}
	}
}

// snapshot must be called with q.mu held (read or write).
func (q *Queue) snapshot(j *job) Snapshot {
	s := Snapshot{
		ID:        j.id,
		VideoID:   j.req.VideoID,
		URL:       j.req.URL,
		Kind:      j.req.Kind,
		FormatID:  j.req.FormatID,
		State:     j.state,
		Progress:  j.progress,
		Speed:     j.speed,
		ETA:       j.eta,
		Error:     j.errMsg,
		Filename:  j.filename,
		MIMEType:  j.mimeType,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
	if !j.startedAt.IsZero() {
		end := time.Now()
		if j.state.Terminal() {
			end = j.updatedAt
		}
		s.ElapsedSeconds = end.Sub(j.startedAt).Seconds()
	}
	// Post-processing has no native progress signal, so the reported
	// value creeps from the transfer ceiling toward 99 with wall time.
	if j.state == StateProcessing && !j.processingAt.IsZero() {
		crept := transferCeiling + time.Since(j.processingAt).Seconds()
		if crept > 99 {
			crept = 99
		}
		if crept > s.Progress {
			s.Progress = crept
		}
	}
	return s
}

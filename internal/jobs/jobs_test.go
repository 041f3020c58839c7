package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/renkel/ytgrab/internal/media"
	"github.com/renkel/ytgrab/internal/pipeline"
)

type fakePipeline struct {
	runFunc func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error)
}

func (f *fakePipeline) Run(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
	return f.runFunc(ctx, req, workDir, emit)
}

func testQueue(t *testing.T, p pipeline.Pipeline) *Queue {
	t.Helper()
	q := NewQueue(p, t.TempDir(), time.Hour, zerolog.Nop())
	q.Start()
	t.Cleanup(q.Stop)
	return q
}

func waitFor(t *testing.T, q *Queue, id string, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := q.Get(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if snap.State == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap, _ := q.Get(id)
	t.Fatalf("job %s never reached %s, stuck at %s", id, want, snap.State)
	return Snapshot{}
}

func videoRequest() pipeline.Request {
	return pipeline.Request{
		URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		VideoID:  "dQw4w9WgXcQ",
		Kind:     media.KindVideo,
		FormatID: "best",
	}
}

func TestCreateVisibleAndUnique(t *testing.T) {
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		out := filepath.Join(workDir, "out.mp4")
		os.WriteFile(out, []byte("x"), 0o644)
		return &pipeline.Result{OutputPath: out, Filename: "out.mp4", MIMEType: "video/mp4"}, nil
	}}
	q := testQueue(t, p)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		snap, err := q.Create(videoRequest())
		if err != nil {
			t.Fatal(err)
		}
		if seen[snap.ID] {
			t.Fatalf("duplicate job id %s", snap.ID)
		}
		seen[snap.ID] = true
		if _, ok := q.Get(snap.ID); !ok {
			t.Fatal("job not visible immediately after Create")
		}
	}
}

func TestJobCompletes(t *testing.T) {
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		emit(pipeline.Event{Stage: pipeline.StageDownloading, Percent: 50, Speed: "2.00MiB/s", ETA: "00:30"})
		out := filepath.Join(workDir, "My Video.mp4")
		if err := os.WriteFile(out, []byte("video"), 0o644); err != nil {
			return nil, err
		}
		return &pipeline.Result{OutputPath: out, Filename: "My Video.mp4", MIMEType: "video/mp4"}, nil
	}}
	q := testQueue(t, p)

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != StateQueued {
		t.Errorf("initial state = %s, want queued", snap.State)
	}

	final := waitFor(t, q, snap.ID, StateCompleted)
	if final.Progress != 100 {
		t.Errorf("final progress = %v, want 100", final.Progress)
	}
	if final.Filename != "My Video.mp4" || final.MIMEType != "video/mp4" {
		t.Errorf("artifact fields = %q %q", final.Filename, final.MIMEType)
	}

	got, path, err := q.Output(snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != snap.ID || filepath.Base(path) != "My Video.mp4" {
		t.Errorf("Output = %s %s", got.ID, path)
	}
}

func TestOutputNotReadyAndNotFound(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		close(started)
		<-release
		return nil, errors.New("boom")
	}}
	q := testQueue(t, p)

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	<-started
	if _, _, err := q.Output(snap.ID); !errors.Is(err, ErrNotReady) {
		t.Errorf("Output on running job = %v, want ErrNotReady", err)
	}
	if _, _, err := q.Output("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Output on unknown id = %v, want ErrNotFound", err)
	}
	close(release)
	waitFor(t, q, snap.ID, StateFailed)
}

func TestProgressMonotonicAndScaled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var emitFn func(pipeline.Event)
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		emitFn = emit
		close(started)
		<-release
		out := filepath.Join(workDir, "out.mp4")
		os.WriteFile(out, []byte("x"), 0o644)
		return &pipeline.Result{OutputPath: out, Filename: "out.mp4", MIMEType: "video/mp4"}, nil
	}}
	q := testQueue(t, p)

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	<-started

	emitFn(pipeline.Event{Stage: pipeline.StageDownloading, Percent: 80})
	got, _ := q.Get(snap.ID)
	if got.Progress != 72 { // 80 scaled under the processing ceiling
		t.Errorf("progress after 80%% = %v, want 72", got.Progress)
	}

	// A second stream restarting at a lower percent must not move the
	// reported value backward.
	emitFn(pipeline.Event{Stage: pipeline.StageDownloading, Percent: 30})
	got, _ = q.Get(snap.ID)
	if got.Progress != 72 {
		t.Errorf("progress went backward to %v", got.Progress)
	}

	emitFn(pipeline.Event{Stage: pipeline.StageProcessing, Percent: -1})
	got, _ = q.Get(snap.ID)
	if got.State != StateProcessing {
		t.Errorf("state = %s, want processing", got.State)
	}
	if got.Progress < 90 || got.Progress > 99 {
		t.Errorf("processing progress = %v, want within [90,99]", got.Progress)
	}
	if got.Speed != "" || got.ETA != "" {
		t.Errorf("processing should clear speed/eta, got %q %q", got.Speed, got.ETA)
	}

	close(release)
	waitFor(t, q, snap.ID, StateCompleted)
}

func TestCancelRemovesPartialOutput(t *testing.T) {
	started := make(chan struct{})
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		os.WriteFile(filepath.Join(workDir, "partial.mp4.part"), []byte("x"), 0o644)
		emit(pipeline.Event{Stage: pipeline.StageDownloading, Percent: 10})
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	q := testQueue(t, p)

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if !q.Cancel(snap.ID) {
		t.Fatal("Cancel returned false for a live job")
	}
	final := waitFor(t, q, snap.ID, StateCanceled)
	if final.Progress != 9 { // frozen at its last value
		t.Errorf("canceled progress = %v, want 9", final.Progress)
	}

	q.mu.RLock()
	workDir := q.jobs[snap.ID].workDir
	q.mu.RUnlock()
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Errorf("work dir %s still exists after cancel", workDir)
	}

	// Idempotent on terminal jobs, NotFound semantics for unknown ids.
	if !q.Cancel(snap.ID) {
		t.Error("Cancel on terminal job should still ack")
	}
	if q.Cancel("nope") {
		t.Error("Cancel on unknown id should report not found")
	}
}

func TestFailureRecordsSanitizedError(t *testing.T) {
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		return nil, errors.New("engine failed: Video unavailable\nstack detail line")
	}}
	q := testQueue(t, p)

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	final := waitFor(t, q, snap.ID, StateFailed)
	if final.Error != "engine failed: Video unavailable" {
		t.Errorf("error = %q", final.Error)
	}
}

func TestCreateAfterStop(t *testing.T) {
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		out := filepath.Join(workDir, "out.mp4")
		os.WriteFile(out, []byte("x"), 0o644)
		return &pipeline.Result{OutputPath: out, Filename: "out.mp4", MIMEType: "video/mp4"}, nil
	}}
	q := NewQueue(p, t.TempDir(), time.Hour, zerolog.Nop())
	q.Start()

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	q.Stop()
	waitFor(t, q, snap.ID, StateCompleted)

	// A request arriving during or after shutdown must get an error
	// back, never a send on the closed work channel.
	if _, err := q.Create(videoRequest()); err == nil {
		t.Fatal("Create after Stop should fail")
	}

	// Stop is idempotent.
	q.Stop()
}

func TestSweepEvictsTerminalJobs(t *testing.T) {
	p := &fakePipeline{runFunc: func(ctx context.Context, req pipeline.Request, workDir string, emit func(pipeline.Event)) (*pipeline.Result, error) {
		out := filepath.Join(workDir, "out.mp4")
		os.WriteFile(out, []byte("x"), 0o644)
		return &pipeline.Result{OutputPath: out, Filename: "out.mp4", MIMEType: "video/mp4"}, nil
	}}
	q := testQueue(t, p)

	snap, err := q.Create(videoRequest())
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, q, snap.ID, StateCompleted)

	q.mu.RLock()
	workDir := q.jobs[snap.ID].workDir
	q.mu.RUnlock()

	// Inside the retention window the job and artifact survive.
	q.sweep(time.Now())
	if _, ok := q.Get(snap.ID); !ok {
		t.Fatal("fresh terminal job evicted too early")
	}

	q.sweep(time.Now().Add(2 * time.Hour))
	if _, ok := q.Get(snap.ID); ok {
		t.Error("stale terminal job not evicted")
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Errorf("work dir %s not removed at eviction", workDir)
	}
}

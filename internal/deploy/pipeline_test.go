package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// manualClock hands each requested timer to the test, which fires it.
type manualClock struct {
	timers chan chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{timers: make(chan chan time.Time)}
}

func (c *manualClock) after(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.timers <- ch
	return ch
}

// fire waits for the next stage timer and fires it.
func (c *manualClock) fire(t *testing.T) {
	t.Helper()
	select {
	case ch := <-c.timers:
		ch <- time.Time{}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stage timer")
	}
}

// await waits for the next stage timer without firing it.
func (c *manualClock) await(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case ch := <-c.timers:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stage timer")
		return nil
	}
}

type runResult struct {
	res *Result
	err error
}

func startRun(ctx context.Context, p *Pipeline, fn DeployFunc) <-chan runResult {
	out := make(chan runResult, 1)
	go func() {
		res, err := p.Run(ctx, fn)
		out <- runResult{res, err}
	}()
	return out
}

func wait(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish")
		return runResult{}
	}
}

func statuses(stages []Stage) []StageStatus {
	out := make([]StageStatus, len(stages))
	for i, s := range stages {
		out[i] = s.Status
	}
	return out
}

func assertStatuses(t *testing.T, got []Stage, want ...StageStatus) {
	t.Helper()
	gs := statuses(got)
	if len(gs) != len(want) {
		t.Fatalf("statuses = %v, want %v", gs, want)
	}
	for i := range gs {
		if gs[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", gs, want)
		}
	}
}

func TestDefaultStages(t *testing.T) {
	stages := DefaultStages()
	keys := []string{"provision", "security", "build", "bundle", "promote"}
	ms := []int64{1100, 900, 1200, 950, 1100}
	if len(stages) != len(keys) {
		t.Fatalf("len = %d", len(stages))
	}
	for i, s := range stages {
		if s.Key != keys[i] || s.Duration.Milliseconds() != ms[i] {
			t.Errorf("stage %d = %s/%v", i, s.Key, s.Duration)
		}
	}
}

func TestPipeline_Success(t *testing.T) {
	clock := newManualClock()
	var (
		mu       sync.Mutex
		observed [][]Stage
	)
	p := NewPipeline(WithTimer(clock.after), WithObserver(func(s []Stage) {
		mu.Lock()
		observed = append(observed, s)
		mu.Unlock()
	}))

	run := startRun(context.Background(), p, func(context.Context) (*Result, error) {
		return &Result{Success: true, URL: "https://x.vercel.app"}, nil
	})
	for range DefaultStages() {
		clock.fire(t)
	}
	r := wait(t, run)
	if r.err != nil {
		t.Fatalf("Run() error = %v", r.err)
	}
	if r.res.URL != "https://x.vercel.app" {
		t.Errorf("URL = %q", r.res.URL)
	}
	assertStatuses(t, p.Stages(), StageSuccess, StageSuccess, StageSuccess, StageSuccess, StageSuccess)
	if p.FailedStage() != -1 {
		t.Errorf("FailedStage() = %d", p.FailedStage())
	}

	mu.Lock()
	defer mu.Unlock()
	// reset + one per stage
	if len(observed) != 6 {
		t.Fatalf("observer calls = %d, want 6", len(observed))
	}
	assertStatuses(t, observed[0], StageActive, StagePending, StagePending, StagePending, StagePending)
	assertStatuses(t, observed[2], StageSuccess, StageSuccess, StageActive, StagePending, StagePending)
}

func TestPipeline_FinalStageWaitsForDeploy(t *testing.T) {
	clock := newManualClock()
	p := NewPipeline(WithTimer(clock.after))
	release := make(chan struct{})

	run := startRun(context.Background(), p, func(context.Context) (*Result, error) {
		<-release
		return &Result{Success: true}, nil
	})
	for range DefaultStages() {
		clock.fire(t)
	}

	select {
	case <-run:
		t.Fatal("pipeline finished before the deploy call returned")
	case <-time.After(50 * time.Millisecond):
	}
	assertStatuses(t, p.Stages(), StageSuccess, StageSuccess, StageSuccess, StageSuccess, StageActive)

	close(release)
	if r := wait(t, run); r.err != nil {
		t.Fatalf("Run() error = %v", r.err)
	}
	assertStatuses(t, p.Stages(), StageSuccess, StageSuccess, StageSuccess, StageSuccess, StageSuccess)
}

func TestPipeline_FailureAtEachStage(t *testing.T) {
	k := len(DefaultStages())
	for i := 0; i < k; i++ {
		clock := newManualClock()
		p := NewPipeline(WithTimer(clock.after))
		release := make(chan struct{})

		run := startRun(context.Background(), p, func(context.Context) (*Result, error) {
			<-release
			return nil, errors.New("boom")
		})
		for j := 0; j < i; j++ {
			clock.fire(t)
		}
		clock.await(t) // stage i is active
		close(release)

		r := wait(t, run)
		if r.err == nil || r.err.Error() != "boom" {
			t.Fatalf("stage %d: Run() error = %v, want boom", i, r.err)
		}
		if p.FailedStage() != i {
			t.Errorf("FailedStage() = %d, want %d", p.FailedStage(), i)
		}
		for j, s := range p.Stages() {
			want := StagePending
			switch {
			case j < i:
				want = StageSuccess
			case j == i:
				want = StageError
			}
			if s.Status != want {
				t.Errorf("fail at %d: stage %d = %s, want %s", i, j, s.Status, want)
			}
		}
	}
}

func TestPipeline_UnsuccessfulResult(t *testing.T) {
	clock := newManualClock()
	p := NewPipeline(WithTimer(clock.after))

	run := startRun(context.Background(), p, func(context.Context) (*Result, error) {
		return &Result{Success: false, Error: "VERCEL_TOKEN not configured"}, nil
	})
	clock.await(t)

	r := wait(t, run)
	if !errors.Is(r.err, ErrDeployFailed) {
		t.Fatalf("Run() error = %v, want ErrDeployFailed", r.err)
	}
	if r.res == nil || r.res.Error != "VERCEL_TOKEN not configured" {
		t.Errorf("Run() result = %+v", r.res)
	}
	assertStatuses(t, p.Stages(), StageError, StagePending, StagePending, StagePending, StagePending)
}

func TestPipeline_ContextCanceled(t *testing.T) {
	clock := newManualClock()
	p := NewPipeline(WithTimer(clock.after))
	ctx, cancel := context.WithCancel(context.Background())

	run := startRun(ctx, p, func(ctx context.Context) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	clock.fire(t)
	clock.await(t)
	cancel()

	r := wait(t, run)
	if !errors.Is(r.err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", r.err)
	}
	assertStatuses(t, p.Stages(), StageSuccess, StageError, StagePending, StagePending, StagePending)
}

func TestPipeline_RerunResets(t *testing.T) {
	stages := []Stage{{Key: "a"}, {Key: "b"}}
	clock := newManualClock()
	p := NewPipeline(WithTimer(clock.after), WithStages(stages))

	run := startRun(context.Background(), p, func(context.Context) (*Result, error) {
		return nil, errors.New("first")
	})
	clock.await(t)
	wait(t, run)
	assertStatuses(t, p.Stages(), StageError, StagePending)

	run = startRun(context.Background(), p, func(context.Context) (*Result, error) {
		return &Result{Success: true}, nil
	})
	clock.fire(t)
	clock.fire(t)
	if r := wait(t, run); r.err != nil {
		t.Fatalf("Run() error = %v", r.err)
	}
	assertStatuses(t, p.Stages(), StageSuccess, StageSuccess)
}

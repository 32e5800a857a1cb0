package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// StageStatus is the console state of one stage.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageActive  StageStatus = "active"
	StageSuccess StageStatus = "success"
	StageError   StageStatus = "error"
)

// Stage is one step of the deployment console.
type Stage struct {
	Key      string        `json:"key"`
	Label    string        `json:"label"`
	Log      string        `json:"log"`
	Duration time.Duration `json:"-"`
	Status   StageStatus   `json:"status"`
}

// DefaultStages returns the console stages in order.
func DefaultStages() []Stage {
	return []Stage{
		{Key: "provision", Label: "Provision", Duration: 1100 * time.Millisecond,
			Log: "Allocating compute, reserving domains, and preparing environment variables."},
		{Key: "security", Label: "Security", Duration: 900 * time.Millisecond,
			Log: "Encrypting secrets, syncing .env safeguards, and applying least-privilege roles."},
		{Key: "build", Label: "Build", Duration: 1200 * time.Millisecond,
			Log: "Installing dependencies, running build steps, and executing smoke tests."},
		{Key: "bundle", Label: "Bundle", Duration: 950 * time.Millisecond,
			Log: "Bundling assets, generating manifests, and embedding release metadata."},
		{Key: "promote", Label: "Promote", Duration: 1100 * time.Millisecond,
			Log: "Promoting build to production, warming caches, and verifying health probes."},
	}
}

// ErrDeployFailed wraps the error text of an unsuccessful Result.
var ErrDeployFailed = errors.New("deployment failed")

// DeployFunc is the single backend deploy call a pipeline waits for.
type DeployFunc func(ctx context.Context) (*Result, error)

// Pipeline advances the console stages on timers while one deploy call
// runs. A Pipeline is single-use per Run but may be reused sequentially.
type Pipeline struct {
	after    func(time.Duration) <-chan time.Time
	onChange func([]Stage)

	mu     sync.Mutex
	stages []Stage
	failed int
}

type PipelineOption func(*Pipeline)

// WithTimer replaces time.After, so tests can fire stages by hand.
func WithTimer(after func(time.Duration) <-chan time.Time) PipelineOption {
	return func(p *Pipeline) { p.after = after }
}

// WithObserver receives a copy of the stages after every transition.
func WithObserver(fn func([]Stage)) PipelineOption {
	return func(p *Pipeline) { p.onChange = fn }
}

// WithStages overrides DefaultStages.
func WithStages(stages []Stage) PipelineOption {
	return func(p *Pipeline) {
		p.stages = make([]Stage, len(stages))
		copy(p.stages, stages)
	}
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{after: time.After, stages: DefaultStages(), failed: -1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns a copy of the current stage list.
func (p *Pipeline) Stages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

// FailedStage is the index of the stage that failed in the last Run, or -1.
func (p *Pipeline) FailedStage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

type outcome struct {
	res *Result
	err error
}

// Run resets the stages, starts deploy and walks the stages. The final
// stage completes only once deploy has returned a successful Result.
// On failure the active stage is marked error, earlier stages success and
// later stages stay pending.
func (p *Pipeline) Run(ctx context.Context, deploy DeployFunc) (*Result, error) {
	if len(p.stages) == 0 {
		return nil, errors.New("deploy: pipeline has no stages")
	}

	p.update(func() {
		p.failed = -1
		for i := range p.stages {
			p.stages[i].Status = StagePending
		}
		p.stages[0].Status = StageActive
	})

	done := make(chan outcome, 1)
	go func() {
		res, err := deploy(ctx)
		done <- outcome{res: res, err: err}
	}()

	var (
		result   *outcome
		finished = done
	)
	last := len(p.stages) - 1
	for i := range p.stages {
		timer := p.after(p.stages[i].Duration)
		timerFired := false

		for !timerFired || (i == last && result == nil) {
			select {
			case <-timer:
				timerFired = true
				timer = nil
			case o := <-finished:
				result = &o
				finished = nil
				if err := outcomeErr(o); err != nil {
					p.fail(i)
					return o.res, err
				}
			case <-ctx.Done():
				p.fail(i)
				return nil, ctx.Err()
			}
		}

		p.update(func() {
			p.stages[i].Status = StageSuccess
			if i < last {
				p.stages[i+1].Status = StageActive
			}
		})
	}
	return result.res, nil
}

func outcomeErr(o outcome) error {
	if o.err != nil {
		return o.err
	}
	if o.res == nil {
		return fmt.Errorf("%w: empty result", ErrDeployFailed)
	}
	if !o.res.Success {
		msg := o.res.Error
		if msg == "" {
			msg = "Deployment failed"
		}
		return fmt.Errorf("%w: %s", ErrDeployFailed, msg)
	}
	return nil
}

func (p *Pipeline) fail(i int) {
	p.update(func() {
		p.failed = i
		for j := range p.stages {
			switch {
			case j < i && p.stages[j].Status == StageActive:
				p.stages[j].Status = StageSuccess
			case j == i:
				p.stages[j].Status = StageError
			case j > i && p.stages[j].Status != StageSuccess:
				p.stages[j].Status = StagePending
			}
		}
	})
}

func (p *Pipeline) update(fn func()) {
	p.mu.Lock()
	fn()
	stages := p.snapshot()
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(stages)
	}
}

func (p *Pipeline) snapshot() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

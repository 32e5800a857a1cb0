// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the snapshot prune daily at 03:00.
const DefaultPruneSchedule = "0 0 3 * * *"

// Pruner deletes surplus automatic snapshots across all projects.
type Pruner interface {
	PruneAll(ctx context.Context) (map[string]int64, error)
}

// Scheduler owns the cron runner. Schedules use the six-field format with
// a leading seconds field.
type Scheduler struct {
	cron    *cron.Cron
	pruner  Pruner
	timeout time.Duration
	logger  *slog.Logger
}

func NewScheduler(pruner Pruner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DiscardLogger))),
		pruner:  pruner,
		timeout: 10 * time.Minute,
		logger:  logger,
	}
}

// RegisterPrune schedules the snapshot prune. An empty schedule selects
// DefaultPruneSchedule.
func (s *Scheduler) RegisterPrune(schedule string) error {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.PruneSnapshots); err != nil {
		return fmt.Errorf("jobs: scheduling snapshot prune %q: %w", schedule, err)
	}
	s.logger.Info("snapshot prune scheduled", slog.String("schedule", schedule))
	return nil
}

// PruneSnapshots runs one prune pass and logs what it removed.
func (s *Scheduler) PruneSnapshots() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.pruner.PruneAll(ctx)
	if err != nil {
		s.logger.Error("snapshot prune failed", slog.String("error", err.Error()))
		return
	}

	var total int64
	for _, n := range deleted {
		total += n
	}
	s.logger.Info("snapshot prune finished",
		slog.Int("projects", len(deleted)),
		slog.Int64("deleted", total),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

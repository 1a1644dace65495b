package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Intervals returns the run interval of every job in [DefaultSchedules], taking overrides from cfg.
func Intervals(cfg *shared.Config) map[string]time.Duration {
	out := make(map[string]time.Duration, len(DefaultSchedules))
	for name, s := range DefaultSchedules {
		out[name] = cfg.JobInterval(name, s.Interval)
	}
	return out
}

// Worker runs every registered job on its own interval until its context is cancelled.
//
// Loops are independent: a slow or aborted job does not delay the others, and overlapping runs
// of the same job are turned into skips by the job lock.
type Worker struct {
	orch      *Orchestrator
	intervals map[string]time.Duration
	logger    *log.Logger
}

// NewWorker creates a Worker. Jobs without a positive interval are not scheduled.
func NewWorker(orch *Orchestrator, intervals map[string]time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Worker{orch: orch, intervals: intervals, logger: logger}
}

// Run starts one loop per job, running each job immediately and then on every tick.
// It returns nil once ctx is cancelled and every loop has stopped.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	scheduled := 0
	for _, name := range w.orch.Names() {
		interval := w.intervals[name]
		if interval <= 0 {
			w.logger.Warn("job has no interval, not scheduling it", "job", name)
			continue
		}
		scheduled++
		w.logger.Info("scheduling job", "job", name, "interval", interval)
		g.Go(func() error { return w.loop(ctx, name, interval) })
	}
	if scheduled == 0 {
		return errors.New("no jobs to schedule")
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, name string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.orch.RunByName(ctx, name, nil); err != nil && ctx.Err() == nil {
			w.logger.Error("scheduled run failed", "job", name, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

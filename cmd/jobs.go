package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/jellysync/internal/formatter"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/desertthunder/jellysync/internal/tasks"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// JobsList prints every registered job with its lock name, TTL and interval.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	intervals := tasks.Intervals(r.config)
	r.writePlainHeader("Jobs")
	for _, name := range a.orch.Names() {
		job, err := a.orch.Job(name)
		if err != nil {
			return err
		}
		r.writePlain("%s\n", name)
		r.writePlain("  lock: %s  ttl: %s  interval: %s\n", tasks.LockName(name), job.TTL(), intervals[name])
	}
	return nil
}

// JobsStatus prints the last known status of one job, or of every job.
func (r *Runner) JobsStatus(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var statuses []*models.JobStatus
	if name := cmd.StringArg("name"); name != "" {
		status, err := a.orch.Status(name)
		if err != nil {
			return err
		}
		statuses = []*models.JobStatus{status}
	} else if statuses, err = a.orch.Statuses(); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, cmd.Bool("pretty"))
	}

	data, err := formatter.StatusToText(statuses)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// JobsRun runs a single job in the foreground, drawing a progress bar from its updates.
//
// The run goes through the job lock, so it is skipped when the worker or the server is already
// running the same job.
func (r *Runner) JobsRun(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: job name", shared.ErrMissingArgument)
	}
	if !cmd.Bool("verbose") {
		r.SetLogger(quietLogger(r.logger))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.orch.Job(name); err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(r.output),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)

	progress := make(chan tasks.ProgressUpdate, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for u := range progress {
			switch u.Phase {
			case tasks.Enumerate:
				bar.ChangeMax(u.Total)
			case tasks.Process:
				bar.Describe(fmt.Sprintf("%s (%d failed)", name, u.Failed))
				bar.Set(u.Step)
			case tasks.Done, tasks.Abort:
				bar.Finish()
			}
		}
	}()

	summary, err := a.orch.RunByName(ctx, name, progress)
	close(progress)
	<-drained

	if summary != nil {
		r.writeSummary(summary)
	}
	return err
}

func (r *Runner) writeSummary(s *tasks.Summary) {
	switch s.State {
	case models.JobSkipped:
		r.writePlain("%s skipped, another instance holds %s\n", s.Job, tasks.LockName(s.Job))
		return
	case models.JobCompleted:
		r.writePlain("✓ %s completed\n", s.Job)
	default:
		r.writePlain("✗ %s %s\n", s.Job, s.State)
	}
	r.writePlain("Processed: %d/%d\n", s.Processed, s.Total)
	r.writePlain("Failed: %d\n", s.Failed)
	r.writePlain("Duration: %s\n", s.Duration.Round(time.Millisecond))
}

// Worker runs every job on its configured interval until interrupted.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r.logger.Info("starting worker", "jobs", len(a.orch.Names()))
	err = tasks.NewWorker(a.orch, tasks.Intervals(r.config), r.logger).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info("worker stopped")
	return nil
}

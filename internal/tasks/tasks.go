package tasks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/metrics"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

// maxDiagnostic bounds entity failure text in logs and status messages.
const maxDiagnostic = 512

// Target is one entity a job processes.
type Target struct {
	ID   string
	Name string
}

// Label returns the name, or the id when the entity has none.
func (t Target) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// Job is a named, idempotent unit of work over a collection of entities.
type Job interface {
	// Name identifies the job; the lock is named after it.
	Name() string

	// TTL bounds how long the job lock survives a crashed holder.
	TTL() time.Duration

	// Targets enumerates the entities of one run.
	Targets(ctx context.Context) ([]Target, error)

	// Process handles one entity and commits its changes before returning.
	//
	// An error counts the entity as failed. An error wrapping [shared.ErrStoreUnavailable] aborts the batch.
	Process(ctx context.Context, target Target) error
}

// Finisher is implemented by jobs with a step that runs once after every entity was processed.
type Finisher interface {
	Finish(ctx context.Context, summary *Summary) error
}

// Locker is the subset of [lock.Manager] the orchestrator needs.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) bool
	Release(ctx context.Context, name string)
}

// StatusStore persists the last known state of each job.
type StatusStore interface {
	Save(status *models.JobStatus) error
	Get(name string) (*models.JobStatus, error)
	List() ([]*models.JobStatus, error)
}

// Summary is the terminal report of one run.
type Summary struct {
	Job       string          `json:"job"`
	RunID     string          `json:"run_id"`
	State     models.JobState `json:"state"`
	Total     int             `json:"total"`
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Duration  time.Duration   `json:"duration"`
	Err       error           `json:"-"`
}

// LockName returns the lock guarding job.
func LockName(job string) string {
	return job + "_lock"
}

// Orchestrator runs registered jobs under their locks and records their status.
type Orchestrator struct {
	mu     sync.RWMutex
	jobs   map[string]Job
	locks  Locker
	status StatusStore
	clock  shared.Clock
	logger *log.Logger
}

// NewOrchestrator creates an Orchestrator. A nil status store keeps status in memory.
func NewOrchestrator(locks Locker, status StatusStore, clock shared.Clock, logger *log.Logger) *Orchestrator {
	if status == nil {
		status = NewMemoryStatusStore(clock)
	}
	if clock == nil {
		clock = shared.RealClock{}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Orchestrator{
		jobs:   map[string]Job{},
		locks:  locks,
		status: status,
		clock:  clock,
		logger: logger,
	}
}

// Register adds jobs, replacing any job with the same name.
func (o *Orchestrator) Register(jobs ...Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, j := range jobs {
		o.jobs[j.Name()] = j
	}
}

// Job returns the registered job called name.
func (o *Orchestrator) Job(name string) (Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, name)
	}
	return j, nil
}

// Names returns the registered job names in sorted order.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Status returns the stored status of a registered job, idle if it never ran.
func (o *Orchestrator) Status(name string) (*models.JobStatus, error) {
	if _, err := o.Job(name); err != nil {
		return nil, err
	}
	return o.status.Get(name)
}

// Statuses returns the status of every registered job in name order.
func (o *Orchestrator) Statuses() ([]*models.JobStatus, error) {
	names := o.Names()
	out := make([]*models.JobStatus, 0, len(names))
	for _, name := range names {
		st, err := o.status.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// RunByName runs the registered job called name.
func (o *Orchestrator) RunByName(ctx context.Context, name string, progress chan<- ProgressUpdate) (*Summary, error) {
	j, err := o.Job(name)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, j, progress)
}

// Run executes one run of job.
//
// A run that cannot take the job lock returns a SKIPPED summary and no error. Entity failures are
// counted and logged without stopping the batch. Enumeration failures, store outages and context
// cancellation abort the run with state FAILED and a non-nil error. The lock is released on every
// path once acquired.
func (o *Orchestrator) Run(ctx context.Context, job Job, progress chan<- ProgressUpdate) (*Summary, error) {
	name := job.Name()
	runID := shared.GenerateID()
	logger := shared.WithLogger(o.logger, "job", name, "run_id", runID)
	summary := &Summary{Job: name, RunID: runID}

	lockName := LockName(name)
	if !o.locks.TryAcquire(ctx, lockName, job.TTL()) {
		summary.State = models.JobSkipped
		metrics.IncJobSkipped(name)
		logger.Info("skipping job, another instance is already running")
		o.recordSkip(logger, name, runID)
		o.sendProgress(progress, skippedUpdate(name))
		return summary, nil
	}
	defer o.locks.Release(context.WithoutCancel(ctx), lockName)

	started := o.clock.Now()
	status := &models.JobStatus{
		Name:      name,
		RunID:     runID,
		State:     models.JobRunning,
		StartedAt: &started,
		UpdatedAt: started,
	}
	o.save(logger, status)
	metrics.IncJobStarted(name)
	logger.Info("starting job")
	o.sendProgress(progress, acquiredUpdate(name))

	abort := func(err error) (*Summary, error) {
		summary.State = models.JobFailed
		summary.Err = err
		summary.Duration = o.clock.Now().Sub(started)
		metrics.IncJobAborted(name)
		metrics.ObserveJobDuration(name, summary.Duration)
		logger.Error("job aborted", "processed", summary.Processed, "total", summary.Total, "error", err)
		o.finish(logger, status, summary, shared.Truncate(err.Error(), maxDiagnostic))
		o.sendProgress(progress, abortedUpdate(name, summary.Processed, summary.Total, summary.Failed, err))
		return summary, err
	}

	targets, err := job.Targets(ctx)
	if err != nil {
		return abort(fmt.Errorf("failed to enumerate targets: %w", err))
	}

	summary.Total = len(targets)
	status.Total = summary.Total
	status.Percent = models.Percentage(0, summary.Total)
	o.save(logger, status)
	logger.Info("enumerated targets", "total", summary.Total)
	o.sendProgress(progress, enumeratedUpdate(name, summary.Total))

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return abort(fmt.Errorf("interrupted: %w", err))
		}

		err := job.Process(ctx, target)
		if errors.Is(err, shared.ErrStoreUnavailable) {
			return abort(err)
		}
		if err != nil {
			summary.Failed++
			metrics.IncEntityFailed(name)
			logger.Error("entity failed", "target", target.Label(), "id", target.ID,
				"error", shared.Truncate(err.Error(), maxDiagnostic))
		}
		summary.Processed++

		status.Processed = summary.Processed
		status.Failed = summary.Failed
		status.Percent = models.Percentage(summary.Processed, summary.Total)
		status.Message = target.Label()
		status.UpdatedAt = o.clock.Now()
		o.save(logger, status)
		metrics.SetJobProgress(name, status.Percent)
		o.sendProgress(progress, processedUpdate(name, summary.Processed, summary.Total, summary.Failed, target, err))
	}

	if f, ok := job.(Finisher); ok {
		o.sendProgress(progress, finishingUpdate(name, summary.Processed, summary.Total, summary.Failed))
		if err := f.Finish(ctx, summary); err != nil {
			logger.Warn("post-batch step failed", "error", shared.Truncate(err.Error(), maxDiagnostic))
		}
	}

	summary.State = models.JobCompleted
	summary.Duration = o.clock.Now().Sub(started)
	metrics.IncJobCompleted(name)
	metrics.ObserveJobDuration(name, summary.Duration)
	logger.Info("job completed", "processed", summary.Processed, "total", summary.Total,
		"failed", summary.Failed, "duration", summary.Duration)
	o.finish(logger, status, summary, "")
	o.sendProgress(progress, doneUpdate(name, summary))
	return summary, nil
}

func (o *Orchestrator) finish(logger *log.Logger, status *models.JobStatus, summary *Summary, message string) {
	now := o.clock.Now()
	status.State = summary.State
	status.Processed = summary.Processed
	status.Total = summary.Total
	status.Failed = summary.Failed
	status.Percent = models.Percentage(summary.Processed, summary.Total)
	status.Message = message
	status.FinishedAt = &now
	status.UpdatedAt = now
	o.save(logger, status)
}

// recordSkip stores a SKIPPED status unless the stored status shows the holder is still running.
func (o *Orchestrator) recordSkip(logger *log.Logger, name, runID string) {
	current, err := o.status.Get(name)
	if err != nil {
		logger.Warn("failed to read job status", "error", err)
		return
	}
	if current.State == models.JobRunning {
		return
	}
	now := o.clock.Now()
	o.save(logger, &models.JobStatus{
		Name:       name,
		RunID:      runID,
		State:      models.JobSkipped,
		Message:    "another instance is already running",
		FinishedAt: &now,
		UpdatedAt:  now,
	})
}

// save persists status; progress is best effort, so failures are only logged.
func (o *Orchestrator) save(logger *log.Logger, status *models.JobStatus) {
	snapshot := *status
	if err := o.status.Save(&snapshot); err != nil {
		logger.Warn("failed to save job status", "state", status.State, "error", err)
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (o *Orchestrator) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// MemoryStatusStore keeps job status in memory. Safe for concurrent use.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	clock    shared.Clock
	statuses map[string]models.JobStatus
}

// NewMemoryStatusStore creates an empty MemoryStatusStore.
func NewMemoryStatusStore(clock shared.Clock) *MemoryStatusStore {
	if clock == nil {
		clock = shared.RealClock{}
	}
	return &MemoryStatusStore{clock: clock, statuses: map[string]models.JobStatus{}}
}

func (s *MemoryStatusStore) Save(status *models.JobStatus) error {
	if status.Name == "" {
		return fmt.Errorf("%w: job name is required", shared.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.Name] = *status
	return nil
}

// Get returns the stored status, or an idle status for a job that never ran.
func (s *MemoryStatusStore) Get(name string) (*models.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[name]
	if !ok {
		return &models.JobStatus{Name: name, State: models.JobIdle, UpdatedAt: s.clock.Now()}, nil
	}
	return &st, nil
}

func (s *MemoryStatusStore) List() ([]*models.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.JobStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, &st)
	}
	slices.SortFunc(out, func(a, b *models.JobStatus) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/models"
)

// JobStatusRepository persists the last known status of each job, keyed by job name.
type JobStatusRepository struct {
	db *sql.DB
}

// NewJobStatusRepository creates a new JobStatusRepository with the given database connection
func NewJobStatusRepository(db *sql.DB) *JobStatusRepository {
	return &JobStatusRepository{db: db}
}

// Save inserts or replaces the status row for status.Name.
func (r *JobStatusRepository) Save(status *models.JobStatus) error {
	if status.Name == "" {
		return fmt.Errorf("job status requires a name")
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO job_status (name, run_id, state, processed, total, failed, percent, message, started_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			run_id = excluded.run_id,
			state = excluded.state,
			processed = excluded.processed,
			total = excluded.total,
			failed = excluded.failed,
			percent = excluded.percent,
			message = excluded.message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		status.Name,
		status.RunID,
		string(status.State),
		status.Processed,
		status.Total,
		status.Failed,
		status.Percent,
		status.Message,
		nullTime(status.StartedAt),
		nullTime(status.FinishedAt),
		status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job status: %w", err)
	}
	return nil
}

// Get returns the status of the named job, or an idle status when it has never run.
func (r *JobStatusRepository) Get(name string) (*models.JobStatus, error) {
	row := r.db.QueryRow(`
		SELECT name, run_id, state, processed, total, failed, percent, message, started_at, finished_at, updated_at
		FROM job_status WHERE name = ?
	`, name)

	status, err := scanJobStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.JobStatus{Name: name, State: models.JobIdle}, nil
	}
	return status, err
}

// List returns every stored job status ordered by name.
func (r *JobStatusRepository) List() ([]*models.JobStatus, error) {
	rows, err := r.db.Query(`
		SELECT name, run_id, state, processed, total, failed, percent, message, started_at, finished_at, updated_at
		FROM job_status ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job status: %w", err)
	}
	defer rows.Close()

	var statuses []*models.JobStatus
	for rows.Next() {
		status, err := scanJobStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job status: %w", err)
	}
	return statuses, nil
}

func scanJobStatus(s scanner) (*models.JobStatus, error) {
	var (
		status   models.JobStatus
		state    string
		started  sql.NullTime
		finished sql.NullTime
	)

	err := s.Scan(
		&status.Name,
		&status.RunID,
		&state,
		&status.Processed,
		&status.Total,
		&status.Failed,
		&status.Percent,
		&status.Message,
		&started,
		&finished,
		&status.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job status: %w", err)
	}

	status.State = models.JobState(state)
	status.StartedAt = timePtr(started)
	status.FinishedAt = timePtr(finished)
	return &status, nil
}

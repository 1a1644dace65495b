package models

import "time"

// JobState is the lifecycle state of a named job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobSkipped   JobState = "skipped"
	JobFailed    JobState = "failed" // batch-fatal abort; the lock was still released
)

// Terminal reports whether the state ends a run.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobSkipped || s == JobFailed
}

// JobStatus is the externally visible state of the last run of a job.
type JobStatus struct {
	Name       string     `json:"name"`
	RunID      string     `json:"run_id"`
	State      JobState   `json:"state"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	Failed     int        `json:"failed"`
	Percent    float64    `json:"percent"`
	Message    string     `json:"message,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Percentage returns processed/total as a percentage, 100 for an empty batch.
func Percentage(processed, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}

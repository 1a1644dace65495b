package tasks

import (
	"fmt"

	"github.com/desertthunder/jellysync/internal/models"
)

// ProgressUpdate represents a progress event during a job run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Job     string // Job name
	Phase   Phase  // Run phase
	Step    int    // Entities processed so far
	Total   int    // Entities enumerated for this run
	Failed  int    // Entity failures so far
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Percent returns Step/Total as a percentage.
func (u ProgressUpdate) Percent() float64 {
	return models.Percentage(u.Step, u.Total)
}

// Run phase enumeration
type Phase int

const (
	Acquire Phase = iota
	Skip
	Enumerate
	Process
	Finish
	Abort
	Done
)

func (p Phase) String() string {
	switch p {
	case Acquire:
		return "acquire"
	case Skip:
		return "skip"
	case Enumerate:
		return "enumerate"
	case Process:
		return "process"
	case Finish:
		return "finish"
	case Abort:
		return "abort"
	case Done:
		return "done"
	default:
		return ""
	}
}

func acquiredUpdate(job string) ProgressUpdate {
	return ProgressUpdate{
		Job:     job,
		Phase:   Acquire,
		Message: fmt.Sprintf("Acquired %s, starting...", LockName(job)),
	}
}

func skippedUpdate(job string) ProgressUpdate {
	return ProgressUpdate{
		Job:     job,
		Phase:   Skip,
		Message: "Skipped, another instance is already running",
	}
}

func enumeratedUpdate(job string, total int) ProgressUpdate {
	return ProgressUpdate{
		Job:     job,
		Phase:   Enumerate,
		Total:   total,
		Message: fmt.Sprintf("Found %d entities to process", total),
	}
}

func processedUpdate(job string, step, total, failed int, target Target, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s", step, total, target.Label())
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, target.Label(), err)
	}
	return ProgressUpdate{
		Job:     job,
		Phase:   Process,
		Step:    step,
		Total:   total,
		Failed:  failed,
		Message: msg,
		Data:    target,
	}
}

func finishingUpdate(job string, step, total, failed int) ProgressUpdate {
	return ProgressUpdate{
		Job:     job,
		Phase:   Finish,
		Step:    step,
		Total:   total,
		Failed:  failed,
		Message: "Running post-batch steps...",
	}
}

func abortedUpdate(job string, step, total, failed int, err error) ProgressUpdate {
	return ProgressUpdate{
		Job:     job,
		Phase:   Abort,
		Step:    step,
		Total:   total,
		Failed:  failed,
		Message: fmt.Sprintf("Aborted: %v", err),
	}
}

func doneUpdate(job string, summary *Summary) ProgressUpdate {
	return ProgressUpdate{
		Job:     job,
		Phase:   Done,
		Step:    summary.Processed,
		Total:   summary.Total,
		Failed:  summary.Failed,
		Message: fmt.Sprintf("Completed: %d/%d processed, %d failed", summary.Processed, summary.Total, summary.Failed),
		Data:    summary,
	}
}

package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jellysync/internal/lock"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/desertthunder/jellysync/internal/tasks"
	tu "github.com/desertthunder/jellysync/internal/testing"
)

type stubJob struct {
	name string
	ids  []string
	fail map[string]bool
}

func (j *stubJob) Name() string       { return j.name }
func (j *stubJob) TTL() time.Duration { return time.Minute }

func (j *stubJob) Targets(ctx context.Context) ([]tasks.Target, error) {
	out := make([]tasks.Target, 0, len(j.ids))
	for _, id := range j.ids {
		out = append(out, tasks.Target{ID: id, Name: "track " + id})
	}
	return out, nil
}

func (j *stubJob) Process(ctx context.Context, target tasks.Target) error {
	if j.fail[target.ID] {
		return errors.New("no results")
	}
	return nil
}

type stubPlaylists struct {
	playlists []*models.Playlist
}

func (s stubPlaylists) List(criteria map[string]any) ([]*models.Playlist, error) {
	return s.playlists, nil
}

type brokenRunner struct{}

func (brokenRunner) Statuses() ([]*models.JobStatus, error) {
	return nil, errors.New("database is locked")
}

func (brokenRunner) RunByName(ctx context.Context, name string, progress chan<- tasks.ProgressUpdate) (*tasks.Summary, error) {
	return nil, errors.New("database is locked")
}

func newModel(t *testing.T) (*Model, *lock.Manager) {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	clock := tu.FixedClock()
	locks := lock.NewManager(lock.NewMemoryStore(clock), logger)
	orch := tasks.NewOrchestrator(locks, nil, clock, logger)
	orch.Register(&stubJob{name: "download_missing_tracks", ids: []string{"a", "b", "c"}, fail: map[string]bool{"b": true}})

	playlists := stubPlaylists{playlists: []*models.Playlist{
		{ID: "pl-1", Name: "Road Trip", Provider: "SpotifyPlaylists", TrackCount: 4, TracksAvailable: 3},
	}}

	m := NewModel(context.Background(), orch, playlists, time.Second)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, locks
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send runs cmd, feeds its message back into the model and returns it.
func send(m *Model, cmd tea.Cmd) tea.Msg {
	msg := cmd()
	m.Update(msg)
	return msg
}

// drain runs progress commands until the run completes.
func drain(t *testing.T, m *Model, cmd tea.Cmd) int {
	t.Helper()
	updates := 0
	for range 100 {
		msg := cmd()
		_, next := m.Update(msg)
		if _, ok := msg.(runCompleteMsg); ok {
			return updates
		}
		updates++
		cmd = next
	}
	t.Fatal("run did not complete")
	return updates
}

func TestModel(t *testing.T) {
	t.Run("loads job status", func(t *testing.T) {
		m, _ := newModel(t)
		send(m, m.fetchStatuses())

		if got := len(m.jobList.Items()); got != 1 {
			t.Fatalf("job items = %d, want 1", got)
		}
		view := m.View()
		if !strings.Contains(view, "download_missing_tracks") || !strings.Contains(view, "never run") {
			t.Errorf("unexpected view:\n%s", view)
		}
	})

	t.Run("tab switches to playlists", func(t *testing.T) {
		m, _ := newModel(t)
		send(m, m.fetchPlaylists())

		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		if m.view != PlaylistListView {
			t.Fatalf("view = %v, want PlaylistListView", m.view)
		}
		if view := m.View(); !strings.Contains(view, "Road Trip") || !strings.Contains(view, "3/4 available") {
			t.Errorf("unexpected view:\n%s", view)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		if m.view != JobListView {
			t.Errorf("view = %v, want JobListView", m.view)
		}
	})

	t.Run("confirm and decline", func(t *testing.T) {
		m, _ := newModel(t)
		send(m, m.fetchStatuses())

		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.view != ConfirmView || m.selected != "download_missing_tracks" {
			t.Fatalf("view = %v selected = %q", m.view, m.selected)
		}
		if !strings.Contains(m.View(), "Run 'download_missing_tracks' now?") {
			t.Errorf("unexpected confirm view:\n%s", m.View())
		}

		m.Update(keyRunes("n"))
		if m.view != JobListView || m.selected != "" {
			t.Errorf("view = %v selected = %q after decline", m.view, m.selected)
		}
	})

	t.Run("manual run reports progress and summary", func(t *testing.T) {
		m, _ := newModel(t)
		send(m, m.fetchStatuses())
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})

		_, cmd := m.Update(keyRunes("y"))
		if m.view != RunView {
			t.Fatalf("view = %v, want RunView", m.view)
		}
		if cmd == nil {
			t.Fatal("expected a progress command")
		}

		updates := drain(t, m, cmd)
		if updates == 0 {
			t.Error("expected progress updates before completion")
		}
		if m.view != ResultView {
			t.Fatalf("view = %v, want ResultView", m.view)
		}
		if m.summary == nil || m.summary.State != models.JobCompleted || m.summary.Processed != 3 || m.summary.Failed != 1 {
			t.Fatalf("summary = %+v", m.summary)
		}
		view := m.View()
		if !strings.Contains(view, "completed") || !strings.Contains(view, "Processed: 3/3") || !strings.Contains(view, "Failed: 1") {
			t.Errorf("unexpected result view:\n%s", view)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != JobListView || m.summary != nil {
			t.Errorf("view = %v after back", m.view)
		}
	})

	t.Run("held lock ends as skipped", func(t *testing.T) {
		m, locks := newModel(t)
		locks.TryAcquire(context.Background(), tasks.LockName("download_missing_tracks"), time.Minute)
		send(m, m.fetchStatuses())
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		_, cmd := m.Update(keyRunes("y"))
		drain(t, m, cmd)

		if m.summary == nil || m.summary.State != models.JobSkipped {
			t.Fatalf("summary = %+v", m.summary)
		}
		if !strings.Contains(m.View(), "skipped") {
			t.Errorf("unexpected result view:\n%s", m.View())
		}
	})

	t.Run("status error is shown", func(t *testing.T) {
		m := NewModel(context.Background(), brokenRunner{}, nil, 0)
		send(m, m.fetchStatuses())
		if m.err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(m.View(), "database is locked") {
			t.Errorf("unexpected view:\n%s", m.View())
		}
		if m.fetchPlaylists() != nil {
			t.Error("expected no playlist fetch without a lister")
		}
	})

	t.Run("quit", func(t *testing.T) {
		m, _ := newModel(t)
		_, cmd := m.Update(keyRunes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestJobItem(t *testing.T) {
	tc := []struct {
		name   string
		status *models.JobStatus
		want   string
	}{
		{"idle", &models.JobStatus{Name: "a", State: models.JobIdle}, "never run"},
		{"running", &models.JobStatus{Name: "a", State: models.JobRunning, Processed: 1, Total: 4, Percent: 25}, "running • 1/4 (25%)"},
		{"failures", &models.JobStatus{Name: "a", State: models.JobCompleted, Processed: 4, Total: 4, Percent: 100, Failed: 2}, "completed • 4/4 (100%) • 2 failed"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := (jobItem{status: tt.status}).Description(); got != tt.want {
				t.Errorf("Description() = %q, want %q", got, tt.want)
			}
		})
	}
}

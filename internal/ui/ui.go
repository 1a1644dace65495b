package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	PlaylistListView
	ConfirmView
	RunView
	ResultView
)

// JobRunner is the orchestrator surface the TUI reads and triggers.
type JobRunner interface {
	Statuses() ([]*models.JobStatus, error)
	RunByName(ctx context.Context, name string, progress chan<- tasks.ProgressUpdate) (*tasks.Summary, error)
}

// PlaylistLister lists mirrored playlists with their cached availability counts.
type PlaylistLister interface {
	List(criteria map[string]any) ([]*models.Playlist, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	runner       JobRunner
	playlists    PlaylistLister
	interval     time.Duration
	width        int
	height       int
	jobList      list.Model
	playlistList list.Model
	selected     string
	progressChan chan tasks.ProgressUpdate
	doneChan     chan runCompleteMsg
	progress     tasks.ProgressUpdate
	bar          progress.Model
	summary      *tasks.Summary
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model that polls runner every interval. playlists may be nil, in which
// case the playlist view stays empty.
func NewModel(ctx context.Context, runner JobRunner, playlists PlaylistLister, interval time.Duration) *Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	jobs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobs.Title = "Jobs"
	pls := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	pls.Title = "Playlists"

	return &Model{
		ctx:          ctx,
		view:         JobListView,
		runner:       runner,
		playlists:    playlists,
		interval:     interval,
		jobList:      jobs,
		playlistList: pls,
		bar:          progress.New(progress.WithDefaultGradient()),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init fetches job status and playlists, then starts the refresh tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatuses(), m.fetchPlaylists(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-8)
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView, PlaylistListView:
			return m.handleListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case tickMsg:
		return m, tea.Batch(m.fetchStatuses(), m.tick())

	case statusesMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		items := make([]list.Item, len(msg.statuses))
		for i, st := range msg.statuses {
			items[i] = jobItem{status: st}
		}
		return m, m.jobList.SetItems(items)

	case playlistsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		items := make([]list.Item, len(msg.playlists))
		for i, pl := range msg.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		return m, m.playlistList.SetItems(items)

	case progressMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case runCompleteMsg:
		m.summary = msg.summary
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		m.doneChan = nil
		return m, tea.Batch(m.fetchStatuses(), m.fetchPlaylists())
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case JobListView:
		return m.renderList(m.jobList, m.keys.enter, m.keys.tab, m.keys.refresh, m.keys.quit)
	case PlaylistListView:
		return m.renderList(m.playlistList, m.keys.tab, m.keys.refresh, m.keys.quit)
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, tea.Batch(m.fetchStatuses(), m.fetchPlaylists())
	case key.Matches(msg, m.keys.tab):
		if m.view == JobListView {
			m.view = PlaylistListView
		} else {
			m.view = JobListView
		}
		return m, nil
	case m.view == JobListView && key.Matches(msg, m.keys.enter):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			m.selected = item.status.Name
			m.view = ConfirmView
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = RunView
		return m, m.startRun()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = JobListView
		m.selected = ""
		return m, nil
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.enter):
		m.view = JobListView
		m.selected = ""
		m.summary = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case JobListView:
		m.jobList, cmd = m.jobList.Update(msg)
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	}
	return m, cmd
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetchStatuses() tea.Cmd {
	return func() tea.Msg {
		statuses, err := m.runner.Statuses()
		return statusesMsg{statuses: statuses, err: err}
	}
}

func (m *Model) fetchPlaylists() tea.Cmd {
	if m.playlists == nil {
		return nil
	}
	return func() tea.Msg {
		playlists, err := m.playlists.List(nil)
		return playlistsMsg{playlists: playlists, err: err}
	}
}

func (m *Model) startRun() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan runCompleteMsg, 1)
	m.progressChan = progress
	m.doneChan = done

	name := m.selected
	go func() {
		summary, err := m.runner.RunByName(m.ctx, name, progress)
		close(progress)
		done <- runCompleteMsg{summary: summary, err: err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return runCompleteMsg{}
		}
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressMsg(update)
	}
}

func (m *Model) renderList(l list.Model, keys ...key.Binding) string {
	out := l.View()
	if m.err != nil {
		out += "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return fmt.Sprintf("%s\n\n%s", out, m.help.ShortHelpView(keys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Run '%s' now?", m.selected))
	info := "\nThe run is skipped if another instance holds the job lock.\n"
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	title := styles.title.Render(fmt.Sprintf("Running %s", m.selected))

	var phase string
	switch m.progress.Phase {
	case tasks.Acquire:
		phase = "Acquiring lock..."
	case tasks.Enumerate:
		phase = fmt.Sprintf("Found %d entities to process", m.progress.Total)
	case tasks.Process:
		phase = fmt.Sprintf("Processing (%d/%d, %d failed)", m.progress.Step, m.progress.Total, m.progress.Failed)
	case tasks.Finish:
		phase = "Finishing..."
	default:
		phase = "Waiting..."
	}

	bar := m.bar.ViewAs(m.progress.Percent() / 100)
	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, phase, bar, m.progress.Message)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.summary == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Run failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	s := m.summary
	var title string
	switch s.State {
	case models.JobCompleted:
		title = styles.ok.Render(fmt.Sprintf("✓ %s completed", s.Job))
	case models.JobSkipped:
		title = styles.warn.Render(fmt.Sprintf("%s skipped, another instance is running", s.Job))
	default:
		title = styles.err.Render(fmt.Sprintf("✗ %s %s", s.Job, s.State))
	}

	info := fmt.Sprintf("\nProcessed: %d/%d\nFailed: %d\nDuration: %s", s.Processed, s.Total, s.Failed, s.Duration.Round(time.Millisecond))
	if m.err != nil {
		info += "\n\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}

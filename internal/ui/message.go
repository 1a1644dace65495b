package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/tasks"
)

var (
	_ tea.Msg = statusesMsg{}
	_ tea.Msg = playlistsMsg{}
	_ tea.Msg = progressMsg{}
	_ tea.Msg = runCompleteMsg{}
	_ tea.Msg = tickMsg{}
)

// statusesMsg carries a fresh read of every job status.
type statusesMsg struct {
	statuses []*models.JobStatus
	err      error
}

// playlistsMsg carries the mirrored playlists with their cached counts.
type playlistsMsg struct {
	playlists []*models.Playlist
	err       error
}

// progressMsg is one update of the run started from the TUI.
type progressMsg tasks.ProgressUpdate

// runCompleteMsg ends the run started from the TUI.
type runCompleteMsg struct {
	summary *tasks.Summary
	err     error
}

// tickMsg triggers a periodic status refresh.
type tickMsg time.Time

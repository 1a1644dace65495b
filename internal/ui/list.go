package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/jellysync/internal/models"
)

var (
	_ list.Item = jobItem{}
	_ list.Item = playlistItem{}
)

// jobItem wraps [models.JobStatus] to implement [list.Item].
type jobItem struct {
	status *models.JobStatus
}

func (i jobItem) FilterValue() string { return i.status.Name }
func (i jobItem) Title() string       { return i.status.Name }
func (i jobItem) Description() string {
	st := i.status
	if st.State == models.JobIdle {
		return "never run"
	}
	desc := fmt.Sprintf("%s • %d/%d (%.0f%%)", st.State, st.Processed, st.Total, st.Percent)
	if st.Failed > 0 {
		desc = fmt.Sprintf("%s • %d failed", desc, st.Failed)
	}
	return desc
}

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist *models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	return fmt.Sprintf("%d/%d available • %s", i.playlist.TracksAvailable, i.playlist.TrackCount, i.playlist.Provider)
}

package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

// Playlist is a catalog playlist mirrored into the media server.
type Playlist struct {
	ID                 string
	Sequence           int
	Provider           string
	ProviderPlaylistID string
	ProviderURI        string
	Name               string
	Description        string
	CoverImageURL      string
	MediaServerID      string
	TrackCount         int
	TracksAvailable    int
	ChangeToken        string
	LastCheckedAt      *time.Time
	LastChangedAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewPlaylist creates a local mirror for a catalog playlist. The change token is left empty
// so the first sync always diffs.
func NewPlaylist(provider string, cp *CatalogPlaylist) *Playlist {
	now := time.Now().UTC()
	return &Playlist{
		Provider:           provider,
		ProviderPlaylistID: cp.ID,
		ProviderURI:        cp.URI,
		Name:               cp.Name,
		Description:        cp.Description,
		CoverImageURL:      cp.CoverImageURL,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (p *Playlist) PrimaryKey() string { return p.ID }

// Validate checks required fields and the count invariant.
func (p *Playlist) Validate() error {
	if p.Provider == "" {
		return fmt.Errorf("%w: playlist provider is required", shared.ErrValidation)
	}
	if p.ProviderPlaylistID == "" {
		return fmt.Errorf("%w: playlist provider id is required", shared.ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrValidation)
	}
	if p.TrackCount < 0 || p.TracksAvailable < 0 {
		return fmt.Errorf("%w: playlist counts must not be negative", shared.ErrValidation)
	}
	if p.TracksAvailable > p.TrackCount {
		return fmt.Errorf("%w: tracks_available %d exceeds track_count %d", shared.ErrValidation, p.TracksAvailable, p.TrackCount)
	}
	return nil
}

// SetCounts updates the cached counts, clamping availability to the total.
func (p *Playlist) SetCounts(total, available int) {
	p.TrackCount = total
	p.TracksAvailable = min(available, total)
}

// Membership is a (playlist, track, order) association row.
type Membership struct {
	PlaylistID string
	TrackID    string
	Order      int
}

func (m *Membership) PrimaryKey() string { return m.PlaylistID + ":" + m.TrackID }

func (m *Membership) Validate() error {
	if m.PlaylistID == "" || m.TrackID == "" {
		return fmt.Errorf("%w: membership needs playlist and track ids", shared.ErrValidation)
	}
	return nil
}

// PlaylistTrack is a membership joined with its track, in playlist order.
type PlaylistTrack struct {
	Order int
	Track *Track
}

// Package playlistsync diffs a remote playlist snapshot against its local mirror.
//
// The diff is keyed by provider track id. Membership order is copied verbatim from the positions
// the provider reports, so gaps and ties survive. Tracks are never deleted here because they may
// be shared by other playlists.
package playlistsync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/repositories"
	"github.com/desertthunder/jellysync/internal/shared"
)

// TrackStore finds or creates tracks by provider id.
type TrackStore interface {
	GetByProviderID(provider, providerTrackID string) (*models.Track, error)
	Create(track *models.Track) error
}

// MembershipStore edits the ordered membership of a playlist.
type MembershipStore interface {
	Tracks(playlistID string) ([]models.PlaylistTrack, error)
	Upsert(m *models.Membership) error
	Delete(playlistID, trackID string) error
	Counts(playlistID string) (total, available int, err error)
}

// PlaylistStore persists the mirror itself.
type PlaylistStore interface {
	Update(playlist *models.Playlist) error
}

// Repos groups the stores a sync writes to. They should share one transaction.
type Repos struct {
	Tracks      TrackStore
	Memberships MembershipStore
	Playlists   PlaylistStore
}

// FromStore binds Repos to a repositories.Store, usually the tx handed to Store.Transaction.
func FromStore(s *repositories.Store) Repos {
	return Repos{Tracks: s.Tracks, Memberships: s.Memberships, Playlists: s.Playlists}
}

// DiffResult describes what a sync changed.
type DiffResult struct {
	Added     []*models.Track // in remote position order
	Removed   []*models.Track
	Reordered int
	Changed   bool
	Skipped   bool // change token matched, no track diff was made
}

// Synchronizer applies remote snapshots to local mirrors.
type Synchronizer struct {
	clock  shared.Clock
	logger *log.Logger
}

// New creates a Synchronizer.
func New(clock shared.Clock, logger *log.Logger) *Synchronizer {
	if clock == nil {
		clock = shared.RealClock{}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Synchronizer{clock: clock, logger: logger}
}

// Sync brings local in line with remote and saves it.
//
// A non-empty change token equal to the remote one skips the track diff. Metadata, the
// last-checked timestamp and the cached counts are refreshed either way.
func (s *Synchronizer) Sync(ctx context.Context, repos Repos, local *models.Playlist, remote *models.CatalogPlaylist) (*DiffResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	logger := s.logger.With("playlist", local.ID, "name", local.Name)
	result := &DiffResult{}

	refreshMetadata(local, remote)

	if local.ChangeToken != "" && local.ChangeToken == remote.ChangeToken {
		logger.Debug("change token unchanged, skipping track diff", "token", remote.ChangeToken)
		result.Skipped = true
	} else {
		if err := s.diff(repos, local, remote, result); err != nil {
			return nil, err
		}

		local.ChangeToken = remote.ChangeToken
		if len(result.Added) > 0 || len(result.Removed) > 0 {
			result.Changed = true
			local.LastChangedAt = &now
		}
	}
	local.LastCheckedAt = &now

	total, available, err := repos.Memberships.Counts(local.ID)
	if err != nil {
		return nil, err
	}
	local.SetCounts(total, available)
	local.UpdatedAt = now

	if err := repos.Playlists.Update(local); err != nil {
		return nil, err
	}

	if result.Changed {
		logger.Info("playlist changed", "added", len(result.Added), "removed", len(result.Removed))
	}
	return result, nil
}

func (s *Synchronizer) diff(repos Repos, local *models.Playlist, remote *models.CatalogPlaylist, result *DiffResult) error {
	current, err := repos.Memberships.Tracks(local.ID)
	if err != nil {
		return err
	}

	existing := make(map[string]models.PlaylistTrack, len(current))
	for _, pt := range current {
		existing[pt.Track.ProviderTrackID] = pt
	}

	incoming := Dedupe(remote.Items)
	seen := make(map[string]struct{}, len(incoming))

	for _, item := range incoming {
		seen[item.Track.ID] = struct{}{}

		if pt, ok := existing[item.Track.ID]; ok {
			if pt.Order != item.Position {
				if err := repos.Memberships.Upsert(&models.Membership{PlaylistID: local.ID, TrackID: pt.Track.ID, Order: item.Position}); err != nil {
					return err
				}
				result.Reordered++
			}
			continue
		}

		track, err := s.findOrCreate(repos.Tracks, local.Provider, item.Track)
		if err != nil {
			return err
		}

		if err := repos.Memberships.Upsert(&models.Membership{PlaylistID: local.ID, TrackID: track.ID, Order: item.Position}); err != nil {
			return err
		}
		result.Added = append(result.Added, track)
	}

	for _, pt := range current {
		if _, ok := seen[pt.Track.ProviderTrackID]; ok {
			continue
		}
		if err := repos.Memberships.Delete(local.ID, pt.Track.ID); err != nil {
			return err
		}
		result.Removed = append(result.Removed, pt.Track)
	}
	return nil
}

func (s *Synchronizer) findOrCreate(tracks TrackStore, provider string, ct models.CatalogTrack) (*models.Track, error) {
	track, err := tracks.GetByProviderID(provider, ct.ID)
	if err == nil {
		return track, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	track = models.NewTrack(provider, ct)
	if err := tracks.Create(track); err != nil {
		return nil, fmt.Errorf("failed to create track %s: %w", ct.ID, err)
	}
	s.logger.Debug("added new track", "track", track.ID, "name", track.Name)
	return track, nil
}

// Dedupe collapses repeated track ids, keeping the last reported position, and returns the items
// sorted by position. Items without a track id are dropped.
func Dedupe(items []models.CatalogPlaylistItem) []models.CatalogPlaylistItem {
	index := make(map[string]int, len(items))
	out := make([]models.CatalogPlaylistItem, 0, len(items))

	for _, item := range items {
		if item.Track.ID == "" {
			continue
		}
		if i, ok := index[item.Track.ID]; ok {
			out[i] = item
			continue
		}
		index[item.Track.ID] = len(out)
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func refreshMetadata(local *models.Playlist, remote *models.CatalogPlaylist) {
	if remote.Name != "" {
		local.Name = remote.Name
	}
	local.Description = remote.Description
	if remote.CoverImageURL != "" {
		local.CoverImageURL = remote.CoverImageURL
	}
	if remote.URI != "" {
		local.ProviderURI = remote.URI
	}
}

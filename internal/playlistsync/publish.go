package playlistsync

import (
	"context"
	"fmt"

	"github.com/desertthunder/jellysync/internal/models"
)

// PlaylistEditor edits a media server playlist.
type PlaylistEditor interface {
	PlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error)
	AddItems(ctx context.Context, playlistID string, itemIDs []string) error
	RemoveItems(ctx context.Context, playlistID string, itemIDs []string) error
}

// PublishResult counts the media server playlist edits.
type PublishResult struct {
	Added   int
	Removed int
}

// Publish makes the media server playlist hold exactly the linked tracks of the mirror.
//
// tracks must be in membership order. Unlinked tracks are left out until they are resolved or
// downloaded. Items are appended, so a reorder of tracks already present is not reflected.
func Publish(ctx context.Context, editor PlaylistEditor, playlist *models.Playlist, tracks []models.PlaylistTrack) (*PublishResult, error) {
	if playlist.MediaServerID == "" {
		return &PublishResult{}, nil
	}

	current, err := editor.PlaylistItemIDs(ctx, playlist.MediaServerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read media server playlist %s: %w", playlist.MediaServerID, err)
	}

	present := make(map[string]struct{}, len(current))
	for _, id := range current {
		present[id] = struct{}{}
	}

	wanted := make(map[string]struct{}, len(tracks))
	var add []string
	for _, pt := range tracks {
		id := pt.Track.MediaServerID
		if id == "" {
			continue
		}
		if _, dup := wanted[id]; dup {
			continue
		}
		wanted[id] = struct{}{}
		if _, ok := present[id]; !ok {
			add = append(add, id)
		}
	}

	var remove []string
	for _, id := range current {
		if _, ok := wanted[id]; !ok {
			remove = append(remove, id)
		}
	}

	if len(remove) > 0 {
		if err := editor.RemoveItems(ctx, playlist.MediaServerID, remove); err != nil {
			return nil, fmt.Errorf("failed to remove items from %s: %w", playlist.MediaServerID, err)
		}
	}
	if len(add) > 0 {
		if err := editor.AddItems(ctx, playlist.MediaServerID, add); err != nil {
			return nil, fmt.Errorf("failed to add items to %s: %w", playlist.MediaServerID, err)
		}
	}
	return &PublishResult{Added: len(add), Removed: len(remove)}, nil
}

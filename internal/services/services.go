// package services defines the catalog provider and media server contracts and their HTTP clients
//
// Spotify, Deezer, Jellyfin
package services

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

// Provider identifiers recorded on playlists and tracks.
const (
	SpotifyProviderID = "SpotifyPlaylists"
	DeezerProviderID  = "Deezer"
)

// CatalogProvider is a remote music catalog whose playlists can be mirrored.
//
// Implementations normalize their responses to the [models.CatalogPlaylist] and
// [models.CatalogTrack] shapes so callers never see provider-specific fields.
type CatalogProvider interface {
	// Identifier is the stable provider id stored with mirrored entities.
	Identifier() string

	// GetPlaylist fetches the full snapshot of a playlist, including every track and the change token.
	GetPlaylist(ctx context.Context, playlistID string) (*models.CatalogPlaylist, error)

	// GetTrack fetches a single track.
	GetTrack(ctx context.Context, trackID string) (*models.CatalogTrack, error)
}

// MediaServer is the self-hosted library the playlists are mirrored into.
type MediaServer interface {
	SearchTracks(ctx context.Context, query string) ([]models.LibraryItem, error)
	CreatePlaylist(ctx context.Context, name string) (string, error)
	AddItems(ctx context.Context, playlistID string, itemIDs []string) error
	RemoveItems(ctx context.Context, playlistID string, itemIDs []string) error
	PlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error)
	GetItem(ctx context.Context, itemID string) (*models.LibraryItem, error)
	RefreshLibrary(ctx context.Context, libraryID string) error
	MusicLibraries(ctx context.Context) ([]string, error)
}

// Registry maps provider identifiers to providers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]CatalogProvider
}

// NewRegistry creates a registry holding providers.
func NewRegistry(providers ...CatalogProvider) *Registry {
	r := &Registry{providers: make(map[string]CatalogProvider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider under its identifier.
func (r *Registry) Register(p CatalogProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Identifier()] = p
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (CatalogProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrProviderNotFound, id)
	}
	return p, nil
}

// Identifiers lists the registered provider ids in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

var (
	_ CatalogProvider = (*SpotifyProvider)(nil)
	_ CatalogProvider = (*DeezerProvider)(nil)
	_ MediaServer     = (*JellyfinClient)(nil)
)

// Jellyfin implementation of [MediaServer]
//
// Endpoints follow the Jellyfin 10.9 REST API.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

const jellyfinMusicCollection = "music"

// JellyfinNameID is a name/id pair such as an album artist.
type JellyfinNameID struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// JellyfinItem is the subset of BaseItemDto used for audio items.
type JellyfinItem struct {
	ID             string           `json:"Id"`
	Name           string           `json:"Name"`
	Type           string           `json:"Type"`
	Artists        []string         `json:"Artists"`
	AlbumArtists   []JellyfinNameID `json:"AlbumArtists"`
	Path           string           `json:"Path"`
	Container      string           `json:"Container"`
	HasLyrics      bool             `json:"HasLyrics"`
	RunTimeTicks   int64            `json:"RunTimeTicks"`
	PlaylistItemID string           `json:"PlaylistItemId"`
}

// JellyfinItems is a query result page.
type JellyfinItems struct {
	Items            []JellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
}

// JellyfinVirtualFolder is a library root.
type JellyfinVirtualFolder struct {
	Name           string `json:"Name"`
	ItemID         string `json:"ItemId"`
	CollectionType string `json:"CollectionType"`
}

// JellyfinOpts configures a [JellyfinClient].
type JellyfinOpts struct {
	BaseURL     string
	AccessToken string
	UserID      string
	RateLimit   float64
	HTTPClient  *http.Client
}

// JellyfinClient talks to a Jellyfin server with an API key.
type JellyfinClient struct {
	api    *apiClient
	userID string
}

// NewJellyfinClient creates a Jellyfin client.
func NewJellyfinClient(opts JellyfinOpts) (*JellyfinClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: media server url is required", shared.ErrMissingConfig)
	}
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("%w: media server access token is required", shared.ErrMissingCredentials)
	}

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf(`MediaBrowser Client="jellysync", Token="%s"`, opts.AccessToken))

	return &JellyfinClient{
		api:    newAPIClient("jellyfin", opts.BaseURL, opts.HTTPClient, opts.RateLimit, header),
		userID: opts.UserID,
	}, nil
}

func (j *JellyfinClient) userQuery(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if j.userID != "" {
		q.Set("userId", j.userID)
	}
	return q
}

// SearchTracks searches audio items by name.
func (j *JellyfinClient) SearchTracks(ctx context.Context, query string) ([]models.LibraryItem, error) {
	q := j.userQuery(url.Values{
		"searchTerm":       {query},
		"IncludeItemTypes": {"Audio"},
		"Recursive":        {"true"},
		"Fields":           {"Path,MediaSources"},
	})

	var result JellyfinItems
	if err := j.api.get(ctx, "/Items", q, &result); err != nil {
		return nil, fmt.Errorf("failed to search jellyfin for %q: %w", query, err)
	}

	items := make([]models.LibraryItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, it.libraryItem())
	}
	return items, nil
}

// CreatePlaylist creates an empty audio playlist owned by the configured user.
func (j *JellyfinClient) CreatePlaylist(ctx context.Context, name string) (string, error) {
	body := map[string]any{
		"Name":      name,
		"UserId":    j.userID,
		"MediaType": "Audio",
		"Ids":       []string{},
	}

	var result struct {
		ID string `json:"Id"`
	}
	if err := j.api.do(ctx, http.MethodPost, "/Playlists", nil, body, &result); err != nil {
		return "", fmt.Errorf("failed to create jellyfin playlist %q: %w", name, err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: jellyfin returned no playlist id", shared.ErrAPIRequest)
	}
	return result.ID, nil
}

// AddItems appends items to a playlist in the given order.
func (j *JellyfinClient) AddItems(ctx context.Context, playlistID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	q := j.userQuery(url.Values{"ids": {strings.Join(itemIDs, ",")}})
	if err := j.api.do(ctx, http.MethodPost, "/Playlists/"+url.PathEscape(playlistID)+"/Items", q, nil, nil); err != nil {
		return fmt.Errorf("failed to add items to jellyfin playlist %s: %w", playlistID, err)
	}
	return nil
}

// RemoveItems removes items from a playlist. Jellyfin removes by playlist entry, so the entries
// are looked up first; item ids not in the playlist are ignored.
func (j *JellyfinClient) RemoveItems(ctx context.Context, playlistID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	entries, err := j.playlistEntries(ctx, playlistID)
	if err != nil {
		return err
	}

	remove := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		remove[id] = struct{}{}
	}

	var entryIDs []string
	for _, it := range entries {
		if _, ok := remove[it.ID]; ok && it.PlaylistItemID != "" {
			entryIDs = append(entryIDs, it.PlaylistItemID)
		}
	}
	if len(entryIDs) == 0 {
		return nil
	}

	q := url.Values{"entryIds": {strings.Join(entryIDs, ",")}}
	if err := j.api.do(ctx, http.MethodDelete, "/Playlists/"+url.PathEscape(playlistID)+"/Items", q, nil, nil); err != nil {
		return fmt.Errorf("failed to remove items from jellyfin playlist %s: %w", playlistID, err)
	}
	return nil
}

// PlaylistItemIDs returns the item ids of a playlist in playlist order.
func (j *JellyfinClient) PlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	entries, err := j.playlistEntries(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, it := range entries {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

func (j *JellyfinClient) playlistEntries(ctx context.Context, playlistID string) ([]JellyfinItem, error) {
	var result JellyfinItems
	if err := j.api.get(ctx, "/Playlists/"+url.PathEscape(playlistID)+"/Items", j.userQuery(nil), &result); err != nil {
		return nil, fmt.Errorf("failed to list jellyfin playlist %s: %w", playlistID, err)
	}
	return result.Items, nil
}

// GetItem retrieves a library item with its file path.
func (j *JellyfinClient) GetItem(ctx context.Context, itemID string) (*models.LibraryItem, error) {
	var it JellyfinItem
	if err := j.api.get(ctx, "/Items/"+url.PathEscape(itemID), j.userQuery(nil), &it); err != nil {
		return nil, fmt.Errorf("failed to get jellyfin item %s: %w", itemID, err)
	}
	item := it.libraryItem()
	return &item, nil
}

// RefreshLibrary queues a recursive metadata refresh of a library root.
func (j *JellyfinClient) RefreshLibrary(ctx context.Context, libraryID string) error {
	q := url.Values{
		"Recursive":           {"true"},
		"MetadataRefreshMode": {"Default"},
		"ImageRefreshMode":    {"Default"},
	}
	if err := j.api.do(ctx, http.MethodPost, "/Items/"+url.PathEscape(libraryID)+"/Refresh", q, nil, nil); err != nil {
		return fmt.Errorf("failed to refresh jellyfin library %s: %w", libraryID, err)
	}
	return nil
}

// MusicLibraries returns the ids of every music library root.
func (j *JellyfinClient) MusicLibraries(ctx context.Context) ([]string, error) {
	var folders []JellyfinVirtualFolder
	if err := j.api.get(ctx, "/Library/VirtualFolders", nil, &folders); err != nil {
		return nil, fmt.Errorf("failed to list jellyfin libraries: %w", err)
	}

	var ids []string
	for _, f := range folders {
		if f.CollectionType == jellyfinMusicCollection {
			ids = append(ids, f.ItemID)
		}
	}
	return ids, nil
}

func (it JellyfinItem) libraryItem() models.LibraryItem {
	albumArtists := make([]string, 0, len(it.AlbumArtists))
	for _, a := range it.AlbumArtists {
		albumArtists = append(albumArtists, a.Name)
	}
	return models.LibraryItem{
		ID:           it.ID,
		Name:         it.Name,
		Artists:      it.Artists,
		AlbumArtists: albumArtists,
		Path:         it.Path,
		Container:    it.Container,
		HasLyrics:    it.HasLyrics,
		RunTimeTicks: it.RunTimeTicks,
	}
}

// Spotify Web API implementation of [CatalogProvider]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// spotifyPageSize is the maximum page size of the playlist items endpoint.
	spotifyPageSize = 100
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	Images  []SpotifyImage  `json:"images"`
}

// SpotifyTrack represents a Spotify track. ID is empty for local files.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	PreviewURL string          `json:"preview_url"`
	URI        string          `json:"uri"`
	IsLocal    bool            `json:"is_local"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed content.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistTracks is a page of playlist items.
type SpotifyPlaylistTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist. SnapshotID changes with every edit.
type SpotifyPlaylist struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	SnapshotID  string                `json:"snapshot_id"`
	Images      []SpotifyImage        `json:"images"`
	URI         string                `json:"uri"`
	Tracks      SpotifyPlaylistTracks `json:"tracks"`
}

// SpotifyOpts configures a [SpotifyProvider]. Empty URLs use the public Spotify endpoints.
type SpotifyOpts struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	RateLimit    float64 // requests per second
	HTTPClient   *http.Client
}

// SpotifyProvider reads public and collaborative playlists with the client credentials flow.
//
// The [clientcredentials] token source fetches and refreshes the app token on demand.
type SpotifyProvider struct {
	api *apiClient
}

// NewSpotifyProvider creates a Spotify catalog provider.
func NewSpotifyProvider(ctx context.Context, opts SpotifyOpts) (*SpotifyProvider, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	config := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
	}

	return &SpotifyProvider{
		api: newAPIClient("spotify", opts.BaseURL, config.Client(ctx), opts.RateLimit, nil),
	}, nil
}

func (s *SpotifyProvider) Identifier() string { return SpotifyProviderID }

// GetPlaylist retrieves a playlist and pages through all of its items.
//
// Positions are absolute indexes into the remote playlist. Removed content, podcast episodes and
// local files are skipped without renumbering the tracks after them.
func (s *SpotifyProvider) GetPlaylist(ctx context.Context, playlistID string) (*models.CatalogPlaylist, error) {
	var sp SpotifyPlaylist
	query := url.Values{"additional_types": {"track"}}
	if err := s.api.get(ctx, "/playlists/"+url.PathEscape(playlistID), query, &sp); err != nil {
		return nil, fmt.Errorf("failed to get spotify playlist %s: %w", playlistID, err)
	}

	playlist := &models.CatalogPlaylist{
		ID:          sp.ID,
		Name:        sp.Name,
		Description: sp.Description,
		URI:         sp.URI,
		ChangeToken: sp.SnapshotID,
	}
	if len(sp.Images) > 0 {
		playlist.CoverImageURL = sp.Images[0].URL
	}

	page := sp.Tracks
	offset := 0
	for {
		for i, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" || item.Track.IsLocal || item.Track.Type == "episode" {
				continue
			}
			playlist.Items = append(playlist.Items, models.CatalogPlaylistItem{
				Position: offset + i,
				Track:    toCatalogTrack(*item.Track),
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)

		page = SpotifyPlaylistTracks{}
		query := url.Values{
			"offset":           {strconv.Itoa(offset)},
			"limit":            {strconv.Itoa(spotifyPageSize)},
			"additional_types": {"track"},
		}
		if err := s.api.get(ctx, "/playlists/"+url.PathEscape(playlistID)+"/tracks", query, &page); err != nil {
			return nil, fmt.Errorf("failed to page spotify playlist %s at %d: %w", playlistID, offset, err)
		}
	}

	return playlist, nil
}

// GetTrack retrieves a single track by ID.
func (s *SpotifyProvider) GetTrack(ctx context.Context, trackID string) (*models.CatalogTrack, error) {
	var track SpotifyTrack
	if err := s.api.get(ctx, "/tracks/"+url.PathEscape(trackID), nil, &track); err != nil {
		return nil, fmt.Errorf("failed to get spotify track %s: %w", trackID, err)
	}
	ct := toCatalogTrack(track)
	return &ct, nil
}

func toCatalogTrack(t SpotifyTrack) models.CatalogTrack {
	return models.CatalogTrack{
		ID:           t.ID,
		Name:         t.Name,
		URI:          t.URI,
		DurationMS:   t.DurationMS,
		Artists:      artistNames(t.Artists),
		AlbumArtists: artistNames(t.Album.Artists),
		PreviewURL:   t.PreviewURL,
	}
}

func artistNames(artists []SpotifyArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

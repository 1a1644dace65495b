// Deezer public API implementation of [CatalogProvider]
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

const (
	deezerBaseURL  = "https://api.deezer.com"
	deezerPageSize = 100

	// deezerNoData is the error code Deezer returns for missing resources.
	deezerNoData = 800
)

// deezerError is reported in the body of a 200 response.
type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *deezerError) err(kind, id string) error {
	if e.Code == deezerNoData {
		return fmt.Errorf("%w: deezer %s %s", shared.ErrNotFound, kind, id)
	}
	return fmt.Errorf("%w: deezer %s: %s", shared.ErrAPIRequest, e.Type, e.Message)
}

// DeezerArtist represents a Deezer artist.
type DeezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// DeezerTrack represents a Deezer track. Contributors are only present on the track endpoint.
type DeezerTrack struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	Link         string         `json:"link"`
	Duration     int            `json:"duration"` // seconds
	Preview      string         `json:"preview"`
	Readable     *bool          `json:"readable"`
	Artist       DeezerArtist   `json:"artist"`
	Contributors []DeezerArtist `json:"contributors"`
	Error        *deezerError   `json:"error"`
}

// DeezerTracks is a page of playlist tracks.
type DeezerTracks struct {
	Data  []DeezerTrack `json:"data"`
	Total int           `json:"total"`
	Next  string        `json:"next"`
	Error *deezerError  `json:"error"`
}

// DeezerPlaylist represents a Deezer playlist. Checksum changes with every edit.
type DeezerPlaylist struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Checksum    string       `json:"checksum"`
	PictureXL   string       `json:"picture_xl"`
	Link        string       `json:"link"`
	NbTracks    int          `json:"nb_tracks"`
	Error       *deezerError `json:"error"`
}

// DeezerOpts configures a [DeezerProvider].
type DeezerOpts struct {
	BaseURL    string
	RateLimit  float64
	HTTPClient *http.Client
}

// DeezerProvider reads public Deezer playlists. No credentials are needed.
type DeezerProvider struct {
	api *apiClient
}

// NewDeezerProvider creates a Deezer catalog provider.
func NewDeezerProvider(opts DeezerOpts) *DeezerProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = deezerBaseURL
	}
	return &DeezerProvider{api: newAPIClient("deezer", opts.BaseURL, opts.HTTPClient, opts.RateLimit, nil)}
}

func (d *DeezerProvider) Identifier() string { return DeezerProviderID }

// GetPlaylist retrieves the playlist metadata and pages through its tracks.
func (d *DeezerProvider) GetPlaylist(ctx context.Context, playlistID string) (*models.CatalogPlaylist, error) {
	var dp DeezerPlaylist
	if err := d.api.get(ctx, "/playlist/"+url.PathEscape(playlistID), nil, &dp); err != nil {
		return nil, fmt.Errorf("failed to get deezer playlist %s: %w", playlistID, err)
	}
	if dp.Error != nil {
		return nil, dp.Error.err("playlist", playlistID)
	}

	playlist := &models.CatalogPlaylist{
		ID:            strconv.FormatInt(dp.ID, 10),
		Name:          dp.Title,
		Description:   dp.Description,
		CoverImageURL: dp.PictureXL,
		URI:           dp.Link,
		ChangeToken:   dp.Checksum,
	}

	for index := 0; ; {
		var page DeezerTracks
		query := url.Values{"index": {strconv.Itoa(index)}, "limit": {strconv.Itoa(deezerPageSize)}}
		if err := d.api.get(ctx, "/playlist/"+url.PathEscape(playlistID)+"/tracks", query, &page); err != nil {
			return nil, fmt.Errorf("failed to page deezer playlist %s at %d: %w", playlistID, index, err)
		}
		if page.Error != nil {
			return nil, page.Error.err("playlist", playlistID)
		}

		for i, t := range page.Data {
			if t.Readable != nil && !*t.Readable {
				continue
			}
			playlist.Items = append(playlist.Items, models.CatalogPlaylistItem{
				Position: index + i,
				Track:    deezerCatalogTrack(t),
			})
		}

		if page.Next == "" || len(page.Data) == 0 {
			break
		}
		index += len(page.Data)
	}

	return playlist, nil
}

// GetTrack retrieves a single track, including its contributors.
func (d *DeezerProvider) GetTrack(ctx context.Context, trackID string) (*models.CatalogTrack, error) {
	var t DeezerTrack
	if err := d.api.get(ctx, "/track/"+url.PathEscape(trackID), nil, &t); err != nil {
		return nil, fmt.Errorf("failed to get deezer track %s: %w", trackID, err)
	}
	if t.Error != nil {
		return nil, t.Error.err("track", trackID)
	}
	ct := deezerCatalogTrack(t)
	return &ct, nil
}

func deezerCatalogTrack(t DeezerTrack) models.CatalogTrack {
	artists := []string{t.Artist.Name}
	if len(t.Contributors) > 0 {
		artists = artists[:0]
		for _, c := range t.Contributors {
			artists = append(artists, c.Name)
		}
	}

	return models.CatalogTrack{
		ID:           strconv.FormatInt(t.ID, 10),
		Name:         t.Title,
		URI:          t.Link,
		DurationMS:   t.Duration * 1000,
		Artists:      artists,
		AlbumArtists: []string{t.Artist.Name},
		PreviewURL:   t.Preview,
	}
}

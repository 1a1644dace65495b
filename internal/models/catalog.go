package models

// CatalogTrack is a track as normalized by a catalog provider.
type CatalogTrack struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	URI          string   `json:"uri"`
	DurationMS   int      `json:"duration_ms"`
	Artists      []string `json:"artists"`
	AlbumArtists []string `json:"album_artists"`
	PreviewURL   string   `json:"preview_url,omitempty"`
}

// CatalogPlaylistItem is a track at the position the provider reports for it.
type CatalogPlaylistItem struct {
	Position int          `json:"position"`
	Track    CatalogTrack `json:"track"`
}

// CatalogPlaylist is a remote playlist snapshot.
//
// ChangeToken changes whenever the playlist contents change (e.g. a Spotify snapshot id).
type CatalogPlaylist struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	CoverImageURL string                `json:"cover_image_url"`
	URI           string                `json:"uri"`
	ChangeToken   string                `json:"change_token"`
	Items         []CatalogPlaylistItem `json:"tracks"`
}

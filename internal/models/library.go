package models

// LibraryItem is an audio item returned by a media server search.
type LibraryItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Artists      []string `json:"artists"`
	AlbumArtists []string `json:"album_artists"`
	Path         string   `json:"path"`
	Container    string   `json:"container"`
	HasLyrics    bool     `json:"has_lyrics"`
	RunTimeTicks int64    `json:"runtime_ticks"`
}

// MatchMethod names the comparison that produced a [Candidate].
type MatchMethod string

const (
	MatchExactSingleResult MatchMethod = "exact-single-result"
	MatchMetadata          MatchMethod = "metadata-match"
	MatchFingerprint       MatchMethod = "fingerprint-match"
)

// Candidate is a library item chosen as the same recording as a catalog track.
type Candidate struct {
	Item       LibraryItem
	Score      float64
	Method     MatchMethod
	Similarity float64 // only set for fingerprint matches
}

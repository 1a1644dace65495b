package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

// MaxDiagnosticLength bounds the failure detail stored on a track.
const MaxDiagnosticLength = 2048

// Track is a catalog track mirrored locally.
//
// Downloaded implies FilesystemPath was non-empty when last verified. A MediaServerID is only
// kept while the file at FilesystemPath exists; both are cleared together.
type Track struct {
	ID              string
	Sequence        int
	Provider        string
	ProviderTrackID string
	ProviderURI     string
	Name            string
	Downloaded      bool
	FilesystemPath  string
	MediaServerID   string
	DownloadStatus  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTrack creates an undownloaded track for a catalog track.
func NewTrack(provider string, ct CatalogTrack) *Track {
	now := time.Now().UTC()
	return &Track{
		Provider:        provider,
		ProviderTrackID: ct.ID,
		ProviderURI:     ct.URI,
		Name:            ct.Name,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (t *Track) PrimaryKey() string { return t.ID }

// Validate checks required fields and the download invariant.
func (t *Track) Validate() error {
	if t.Provider == "" {
		return fmt.Errorf("%w: track provider is required", shared.ErrValidation)
	}
	if t.ProviderTrackID == "" {
		return fmt.Errorf("%w: track provider id is required", shared.ErrValidation)
	}
	if t.Downloaded && t.FilesystemPath == "" {
		return fmt.Errorf("%w: downloaded track %s has no file path", shared.ErrValidation, t.ProviderTrackID)
	}
	if len(t.DownloadStatus) > MaxDiagnosticLength {
		return fmt.Errorf("%w: download status exceeds %d bytes", shared.ErrValidation, MaxDiagnosticLength)
	}
	return nil
}

// MarkDownloaded records a verified file and clears any previous failure.
func (t *Track) MarkDownloaded(path string) {
	t.Downloaded = true
	t.FilesystemPath = path
	t.DownloadStatus = ""
}

// MarkFailed records a bounded failure detail and leaves the track undownloaded.
func (t *Track) MarkFailed(detail string) {
	t.Downloaded = false
	t.DownloadStatus = shared.Truncate(detail, MaxDiagnosticLength)
}

// ClearFile drops the file path and the media server link together.
func (t *Track) ClearFile() {
	t.Downloaded = false
	t.FilesystemPath = ""
	t.MediaServerID = ""
}

// Link associates the track with a library item.
func (t *Track) Link(item LibraryItem) {
	t.MediaServerID = item.ID
	if item.Path != "" {
		t.MarkDownloaded(item.Path)
	}
}

// Available reports whether the track can be played from the media server.
func (t *Track) Available() bool {
	return t.Downloaded && t.MediaServerID != ""
}

package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

const playlistColumns = `id, sequence, provider, provider_playlist_id, provider_uri, name, description,
	cover_image_url, media_server_id, track_count, tracks_available, change_token,
	last_checked_at, last_changed_at, created_at, updated_at`

// PlaylistRepository implements models.Repository[*models.Playlist].
type PlaylistRepository struct {
	q querier
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{q: db}
}

// Create inserts a new [models.Playlist] with generated ID and sequence
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.q, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now().UTC()
	playlist.ID = shared.GenerateID()
	playlist.Sequence = sequence
	if playlist.CreatedAt.IsZero() {
		playlist.CreatedAt = now
	}
	playlist.UpdatedAt = now

	query := `INSERT INTO playlists (` + playlistColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.q.Exec(query,
		playlist.ID,
		playlist.Sequence,
		playlist.Provider,
		playlist.ProviderPlaylistID,
		playlist.ProviderURI,
		playlist.Name,
		playlist.Description,
		playlist.CoverImageURL,
		nullString(playlist.MediaServerID),
		playlist.TrackCount,
		playlist.TracksAvailable,
		nullString(playlist.ChangeToken),
		nullTime(playlist.LastCheckedAt),
		nullTime(playlist.LastChangedAt),
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	return nil
}

// Get retrieves a playlist by ID
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = ?`
	return r.scanOne(r.q.QueryRow(query, id), id)
}

// GetByProviderID retrieves a playlist by provider and provider playlist id
func (r *PlaylistRepository) GetByProviderID(provider, providerPlaylistID string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE provider = ? AND provider_playlist_id = ?`
	return r.scanOne(r.q.QueryRow(query, provider, providerPlaylistID), providerPlaylistID)
}

// Update writes every mutable field of an existing playlist
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	playlist.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE playlists
		SET provider_uri = ?, name = ?, description = ?, cover_image_url = ?, media_server_id = ?,
			track_count = ?, tracks_available = ?, change_token = ?, last_checked_at = ?,
			last_changed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.q.Exec(query,
		playlist.ProviderURI,
		playlist.Name,
		playlist.Description,
		playlist.CoverImageURL,
		nullString(playlist.MediaServerID),
		playlist.TrackCount,
		playlist.TracksAvailable,
		nullString(playlist.ChangeToken),
		nullTime(playlist.LastCheckedAt),
		nullTime(playlist.LastChangedAt),
		playlist.UpdatedAt,
		playlist.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	return checkAffected(result, "playlist", playlist.ID)
}

// Delete removes a playlist and its memberships. Tracks are kept since they may be shared.
func (r *PlaylistRepository) Delete(id string) error {
	result, err := r.q.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return checkAffected(result, "playlist", id)
}

// List retrieves all playlists matching the given criteria.
//
// Supported keys: "provider" (string), "mirrored" (bool, has a media server playlist).
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE 1 = 1`
	args := []any{}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	if mirrored, ok := criteria["mirrored"].(bool); ok {
		if mirrored {
			query += " AND media_server_id IS NOT NULL"
		} else {
			query += " AND media_server_id IS NULL"
		}
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlists: %w", err)
	}

	return playlists, nil
}

func (r *PlaylistRepository) scanOne(row *sql.Row, key string) (*models.Playlist, error) {
	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("playlist", key)
	}
	return playlist, err
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var (
		playlist      models.Playlist
		mediaServerID sql.NullString
		changeToken   sql.NullString
		lastChecked   sql.NullTime
		lastChanged   sql.NullTime
	)

	err := s.Scan(
		&playlist.ID,
		&playlist.Sequence,
		&playlist.Provider,
		&playlist.ProviderPlaylistID,
		&playlist.ProviderURI,
		&playlist.Name,
		&playlist.Description,
		&playlist.CoverImageURL,
		&mediaServerID,
		&playlist.TrackCount,
		&playlist.TracksAvailable,
		&changeToken,
		&lastChecked,
		&lastChanged,
		&playlist.CreatedAt,
		&playlist.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	playlist.MediaServerID = mediaServerID.String
	playlist.ChangeToken = changeToken.String
	playlist.LastCheckedAt = timePtr(lastChecked)
	playlist.LastChangedAt = timePtr(lastChanged)

	return &playlist, nil
}

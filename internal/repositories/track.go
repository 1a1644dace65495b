package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

const trackColumns = `id, sequence, provider, provider_track_id, provider_uri, name, downloaded,
	filesystem_path, media_server_id, download_status, created_at, updated_at`

// TrackRepository implements models.Repository[*models.Track].
type TrackRepository struct {
	q querier
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{q: db}
}

// Create inserts a new [models.Track] into the database with generated ID and sequence
func (r *TrackRepository) Create(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.q, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now().UTC()
	track.ID = shared.GenerateID()
	track.Sequence = sequence
	if track.CreatedAt.IsZero() {
		track.CreatedAt = now
	}
	track.UpdatedAt = now

	query := `INSERT INTO tracks (` + trackColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.q.Exec(query,
		track.ID,
		track.Sequence,
		track.Provider,
		track.ProviderTrackID,
		track.ProviderURI,
		track.Name,
		track.Downloaded,
		nullString(track.FilesystemPath),
		nullString(track.MediaServerID),
		nullString(track.DownloadStatus),
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	return r.scanOne(r.q.QueryRow(query, id), id)
}

// GetByProviderID retrieves a track by provider and provider track id
func (r *TrackRepository) GetByProviderID(provider, providerTrackID string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE provider = ? AND provider_track_id = ?`
	return r.scanOne(r.q.QueryRow(query, provider, providerTrackID), providerTrackID)
}

// Update writes every mutable field of an existing track
func (r *TrackRepository) Update(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	track.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tracks
		SET provider_uri = ?, name = ?, downloaded = ?, filesystem_path = ?, media_server_id = ?,
			download_status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.q.Exec(query,
		track.ProviderURI,
		track.Name,
		track.Downloaded,
		nullString(track.FilesystemPath),
		nullString(track.MediaServerID),
		nullString(track.DownloadStatus),
		track.UpdatedAt,
		track.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}

	return checkAffected(result, "track", track.ID)
}

// Delete removes a track and, through the foreign key, its memberships
func (r *TrackRepository) Delete(id string) error {
	result, err := r.q.Exec(`DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return checkAffected(result, "track", id)
}

// List retrieves all tracks matching the given criteria.
//
// Supported keys: "provider" (string), "downloaded" (bool), "linked" (bool, has a media server id),
// "failed" (bool, has a download status).
func (r *TrackRepository) List(criteria map[string]any) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE 1 = 1`
	args := []any{}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	if downloaded, ok := criteria["downloaded"].(bool); ok {
		query += " AND downloaded = ?"
		args = append(args, downloaded)
	}

	if linked, ok := criteria["linked"].(bool); ok {
		if linked {
			query += " AND media_server_id IS NOT NULL"
		} else {
			query += " AND media_server_id IS NULL"
		}
	}

	if failed, ok := criteria["failed"].(bool); ok {
		if failed {
			query += " AND download_status IS NOT NULL"
		} else {
			query += " AND download_status IS NULL"
		}
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}

	return tracks, nil
}

func (r *TrackRepository) scanOne(row *sql.Row, key string) (*models.Track, error) {
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("track", key)
	}
	return track, err
}

// scanTrack scans a row into a [models.Track]
func scanTrack(s scanner) (*models.Track, error) {
	var (
		track          models.Track
		filesystemPath sql.NullString
		mediaServerID  sql.NullString
		downloadStatus sql.NullString
	)

	err := s.Scan(
		&track.ID,
		&track.Sequence,
		&track.Provider,
		&track.ProviderTrackID,
		&track.ProviderURI,
		&track.Name,
		&track.Downloaded,
		&filesystemPath,
		&mediaServerID,
		&downloadStatus,
		&track.CreatedAt,
		&track.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track.FilesystemPath = filesystemPath.String
	track.MediaServerID = mediaServerID.String
	track.DownloadStatus = downloadStatus.String

	return &track, nil
}

package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/jellysync/internal/models"
)

// MembershipRepository manages the ordered playlist_tracks association.
type MembershipRepository struct {
	q querier
}

// NewMembershipRepository creates a new MembershipRepository with the given database connection
func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{q: db}
}

// Upsert creates the membership or moves it to m.Order when it already exists.
func (r *MembershipRepository) Upsert(m *models.Membership) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO playlist_tracks (playlist_id, track_id, track_order) VALUES (?, ?, ?)
		ON CONFLICT (playlist_id, track_id) DO UPDATE SET track_order = excluded.track_order
	`
	if _, err := r.q.Exec(query, m.PlaylistID, m.TrackID, m.Order); err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// Delete removes one membership row.
func (r *MembershipRepository) Delete(playlistID, trackID string) error {
	result, err := r.q.Exec(`DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?`, playlistID, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return checkAffected(result, "membership", playlistID+":"+trackID)
}

// ListByPlaylist returns the memberships of a playlist in order.
func (r *MembershipRepository) ListByPlaylist(playlistID string) ([]models.Membership, error) {
	rows, err := r.q.Query(`
		SELECT playlist_id, track_id, track_order
		FROM playlist_tracks
		WHERE playlist_id = ?
		ORDER BY track_order ASC, track_id ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.PlaylistID, &m.TrackID, &m.Order); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}

// Tracks returns the tracks of a playlist joined with their order.
func (r *MembershipRepository) Tracks(playlistID string) ([]models.PlaylistTrack, error) {
	rows, err := r.q.Query(`
		SELECT pt.track_order, `+prefixed("t", trackColumns)+`
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.track_order ASC, t.id ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.PlaylistTrack
	for rows.Next() {
		var order int
		track, err := scanTrack(orderScanner{rows: rows, order: &order})
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, models.PlaylistTrack{Order: order, Track: track})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlist tracks: %w", err)
	}
	return tracks, nil
}

// Counts returns the number of tracks in a playlist and how many of them are downloaded.
func (r *MembershipRepository) Counts(playlistID string) (total, available int, err error) {
	err = r.q.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(t.downloaded), 0)
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
	`, playlistID).Scan(&total, &available)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count playlist tracks: %w", err)
	}
	return total, available, nil
}

// PlaylistIDsForTrack returns the ids of every playlist containing the track.
func (r *MembershipRepository) PlaylistIDsForTrack(trackID string) ([]string, error) {
	rows, err := r.q.Query(`SELECT playlist_id FROM playlist_tracks WHERE track_id = ?`, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track playlists: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan playlist id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// orderScanner prepends the membership order column to a track scan.
type orderScanner struct {
	rows  *sql.Rows
	order *int
}

func (o orderScanner) Scan(dest ...any) error {
	return o.rows.Scan(append([]any{o.order}, dest...)...)
}

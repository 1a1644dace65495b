package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

// querier is satisfied by both [*sql.DB] and [*sql.Tx].
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// scanner is satisfied by both [*sql.Row] and [*sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers provide human-readable ordering for entities (e.g., playlist #15).
// They are NOT exposed in CLI output but used internally for sorting and debugging.
func NextSequence(q querier, table string) (int, error) {
	var sequence int
	err := q.QueryRow("UPDATE sequences SET value = value + 1 WHERE name = ? RETURNING value", table).Scan(&sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no sequence registered for %s", table)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return sequence, nil
}

// Store groups the repositories over one database handle or one open transaction.
type Store struct {
	db *sql.DB
	tx *sql.Tx

	Tracks      *TrackRepository
	Playlists   *PlaylistRepository
	Memberships *MembershipRepository
}

// NewStore creates a Store bound to db.
func NewStore(db *sql.DB) *Store {
	return bind(db, nil, db)
}

func bind(db *sql.DB, tx *sql.Tx, q querier) *Store {
	return &Store{
		db:          db,
		tx:          tx,
		Tracks:      &TrackRepository{q: q},
		Playlists:   &PlaylistRepository{q: q},
		Memberships: &MembershipRepository{q: q},
	}
}

// Transaction runs fn against a transaction-bound Store and commits when fn returns nil.
//
// A failure to begin or commit means the database itself is unreachable and is wrapped
// with [shared.ErrStoreUnavailable]. Nested calls reuse the open transaction.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if err := fn(bind(s.db, tx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", shared.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func notFound(kind, key string) error {
	return fmt.Errorf("%w: %s %s", shared.ErrNotFound, kind, key)
}

func checkAffected(result sql.Result, kind, key string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound(kind, key)
	}
	return nil
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

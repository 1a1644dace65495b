package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

// SQLiteStore keeps locks in the locks table, shared by every process using the same database file.
type SQLiteStore struct {
	db    *sql.DB
	clock shared.Clock
}

// NewSQLiteStore creates a SQLiteStore. The locks table comes from the regular migrations.
func NewSQLiteStore(db *sql.DB, clock shared.Clock) *SQLiteStore {
	if clock == nil {
		clock = shared.RealClock{}
	}
	return &SQLiteStore{db: db, clock: clock}
}

// SetNX inserts the lock, or takes over a row whose expiry has passed, in one statement.
func (s *SQLiteStore) SetNX(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()

	query := `
		INSERT INTO locks (name, created_at, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET created_at = excluded.created_at, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`
	result, err := s.db.ExecContext(ctx, query, name, now, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrLockUnavailable, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrLockUnavailable, err)
	}
	return rows == 1, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ?`, name); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrLockUnavailable, err)
	}
	return nil
}

// Package lock provides named, TTL-bound, non-blocking mutual exclusion over a shared store.
//
// Locks are cooperative: [Manager.Release] deletes the lock whoever holds it, and expiry is a
// safety net for crashed holders rather than a renewal mechanism. Callers that fail to acquire
// must treat the work as already running and return.
package lock

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/metrics"
	"github.com/desertthunder/jellysync/internal/shared"
)

// Store is a key-value store with an atomic set-if-absent-with-expiry and a delete.
type Store interface {
	// SetNX creates name with the given ttl only if it is absent or expired and reports whether it did.
	SetNX(ctx context.Context, name string, ttl time.Duration) (bool, error)
	// Delete removes name; deleting an absent lock is not an error.
	Delete(ctx context.Context, name string) error
}

// Manager wraps a [Store] with fail-closed semantics and logging.
type Manager struct {
	store  Store
	logger *log.Logger
}

// NewManager creates a Manager over store.
func NewManager(store Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{store: store, logger: logger}
}

// TryAcquire atomically creates the lock if absent and reports whether this caller now holds it.
//
// A store error is reported as a failed acquisition so two instances never both proceed.
func (m *Manager) TryAcquire(ctx context.Context, name string, ttl time.Duration) bool {
	if ttl <= 0 {
		m.logger.Error("refusing lock without ttl", "lock", name)
		return false
	}

	ok, err := m.store.SetNX(ctx, name, ttl)
	switch {
	case err != nil:
		metrics.IncLockAttempt(name, "error")
		m.logger.Error("lock store unavailable, treating lock as held", "lock", name, "error", err)
		return false
	case !ok:
		metrics.IncLockAttempt(name, "held")
		m.logger.Debug("lock already held", "lock", name)
		return false
	default:
		metrics.IncLockAttempt(name, "acquired")
		m.logger.Debug("lock acquired", "lock", name, "ttl", ttl)
		return true
	}
}

// Release deletes the lock unconditionally. Failures are logged; the lock then expires at its TTL.
func (m *Manager) Release(ctx context.Context, name string) {
	if err := m.store.Delete(ctx, name); err != nil {
		m.logger.Warn("failed to release lock, it will expire at its ttl", "lock", name, "error", err)
		return
	}
	m.logger.Debug("lock released", "lock", name)
}

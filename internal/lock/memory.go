package lock

import (
	"context"
	"sync"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

// MemoryStore keeps locks in process memory. It only excludes callers sharing the same process.
type MemoryStore struct {
	mu      sync.Mutex
	clock   shared.Clock
	expires map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore. A nil clock uses [shared.RealClock].
func NewMemoryStore(clock shared.Clock) *MemoryStore {
	if clock == nil {
		clock = shared.RealClock{}
	}
	return &MemoryStore{clock: clock, expires: make(map[string]time.Time)}
}

func (s *MemoryStore) SetNX(_ context.Context, name string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if exp, ok := s.expires[name]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[name] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, name)
	return nil
}

// Held reports whether name is currently locked.
func (s *MemoryStore) Held(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[name]
	return ok && s.clock.Now().Before(exp)
}

package lock

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/jellysync/internal/shared"
	tu "github.com/desertthunder/jellysync/internal/testing"
	"github.com/redis/go-redis/v9"
)

type failingStore struct{}

func (failingStore) SetNX(context.Context, string, time.Duration) (bool, error) {
	return false, shared.ErrLockUnavailable
}

func (failingStore) Delete(context.Context, string) error { return shared.ErrLockUnavailable }

func newSQLiteStore(t *testing.T, clock shared.Clock) *SQLiteStore {
	t.Helper()
	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "locks.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return NewSQLiteStore(db, clock)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })
	return store, mr
}

// contract runs the behavior every Store must share.
func contract(t *testing.T, store Store, advance func(time.Duration)) {
	ctx := context.Background()
	m := NewManager(store, shared.NewLogger(io.Discard))

	t.Run("first acquire wins", func(t *testing.T) {
		if !m.TryAcquire(ctx, "job_a_lock", time.Minute) {
			t.Fatal("expected first acquisition to succeed")
		}
		if m.TryAcquire(ctx, "job_a_lock", time.Minute) {
			t.Fatal("expected second acquisition to fail")
		}
	})

	t.Run("names are independent", func(t *testing.T) {
		if !m.TryAcquire(ctx, "job_b_lock", time.Minute) {
			t.Fatal("expected a different name to be acquirable")
		}
	})

	t.Run("release frees immediately", func(t *testing.T) {
		m.Release(ctx, "job_a_lock")
		if !m.TryAcquire(ctx, "job_a_lock", time.Minute) {
			t.Fatal("expected acquisition after release")
		}
		m.Release(ctx, "job_a_lock")
	})

	t.Run("release of absent lock is harmless", func(t *testing.T) {
		m.Release(ctx, "never_held_lock")
	})

	t.Run("expiry frees a crashed holder", func(t *testing.T) {
		if !m.TryAcquire(ctx, "job_c_lock", 10*time.Second) {
			t.Fatal("expected acquisition")
		}
		advance(11 * time.Second)
		if !m.TryAcquire(ctx, "job_c_lock", 10*time.Second) {
			t.Fatal("expected acquisition after ttl expiry")
		}
	})

	t.Run("zero ttl is refused", func(t *testing.T) {
		if m.TryAcquire(ctx, "job_d_lock", 0) {
			t.Fatal("expected refusal without ttl")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	clock := tu.FixedClock()
	contract(t, NewMemoryStore(clock), clock.Advance)
}

func TestSQLiteStore(t *testing.T) {
	clock := tu.FixedClock()
	contract(t, newSQLiteStore(t, clock), clock.Advance)
}

func TestRedisStore(t *testing.T) {
	store, mr := newRedisStore(t)
	contract(t, store, mr.FastForward)

	t.Run("stores SET NX EX semantics", func(t *testing.T) {
		ctx := context.Background()
		ok, err := store.SetNX(ctx, "ttl_lock", 600*time.Second)
		if err != nil || !ok {
			t.Fatalf("expected acquisition, got %v %v", ok, err)
		}
		if got := mr.TTL("ttl_lock"); got != 600*time.Second {
			t.Errorf("expected ttl 600s, got %v", got)
		}
		if v, _ := mr.Get("ttl_lock"); v != lockValue {
			t.Errorf("expected value %q, got %q", lockValue, v)
		}
	})

	t.Run("unreachable store fails closed", func(t *testing.T) {
		mr.Close()
		m := NewManager(store, shared.NewLogger(io.Discard))
		if m.TryAcquire(context.Background(), "job_e_lock", time.Minute) {
			t.Fatal("expected acquisition to fail when redis is down")
		}
		if _, err := store.SetNX(context.Background(), "job_e_lock", time.Minute); !errors.Is(err, shared.ErrLockUnavailable) {
			t.Errorf("expected ErrLockUnavailable, got %v", err)
		}
	})
}

func TestManagerFailsClosed(t *testing.T) {
	m := NewManager(failingStore{}, shared.NewLogger(io.Discard))
	if m.TryAcquire(context.Background(), "any_lock", time.Minute) {
		t.Fatal("expected failure when the store errors")
	}
	m.Release(context.Background(), "any_lock")
}

func TestConcurrentAcquire(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(nil),
		"sqlite": newSQLiteStore(t, nil),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, shared.NewLogger(io.Discard))
			var wins atomic.Int32
			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if m.TryAcquire(context.Background(), "race_lock", time.Minute) {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			if got := wins.Load(); got != 1 {
				t.Errorf("expected exactly one winner, got %d", got)
			}
		})
	}
}

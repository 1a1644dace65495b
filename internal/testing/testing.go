// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

// StubClock returns a fixed time that only moves with [StubClock.Advance]. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockCatalog is a test double for a catalog provider
type MockCatalog struct {
	mu        sync.Mutex
	ID        string
	Playlists map[string]*models.CatalogPlaylist
	Tracks    map[string]*models.CatalogTrack
	Err       error
	Calls     int
}

func NewMockCatalog(id string) *MockCatalog {
	return &MockCatalog{
		ID:        id,
		Playlists: map[string]*models.CatalogPlaylist{},
		Tracks:    map[string]*models.CatalogTrack{},
	}
}

func (m *MockCatalog) Identifier() string { return m.ID }

func (m *MockCatalog) GetPlaylist(ctx context.Context, id string) (*models.CatalogPlaylist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	pl, ok := m.Playlists[id]
	if !ok {
		return nil, fmt.Errorf("playlist %s not found", id)
	}
	return pl, nil
}

func (m *MockCatalog) GetTrack(ctx context.Context, id string) (*models.CatalogTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	tr, ok := m.Tracks[id]
	if !ok {
		return nil, fmt.Errorf("track %s not found", id)
	}
	return tr, nil
}

// MockMediaServer is an in-memory media server with recorded calls
type MockMediaServer struct {
	mu        sync.Mutex
	Results   map[string][]models.LibraryItem // search results keyed by query
	Items     map[string]models.LibraryItem
	Playlists map[string][]string
	Libraries []string
	Refreshed []string
	Queries   []string
	SearchErr error
	nextID    int
}

func NewMockMediaServer() *MockMediaServer {
	return &MockMediaServer{
		Results:   map[string][]models.LibraryItem{},
		Items:     map[string]models.LibraryItem{},
		Playlists: map[string][]string{},
	}
}

func (m *MockMediaServer) SearchTracks(ctx context.Context, query string) ([]models.LibraryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.Results[query], nil
}

func (m *MockMediaServer) CreatePlaylist(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("jf-playlist-%d", m.nextID)
	m.Playlists[id] = []string{}
	return id, nil
}

func (m *MockMediaServer) AddItems(ctx context.Context, playlistID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.Playlists[playlistID]
	if !ok {
		return fmt.Errorf("playlist %s not found", playlistID)
	}
	m.Playlists[playlistID] = append(items, ids...)
	return nil
}

func (m *MockMediaServer) RemoveItems(ctx context.Context, playlistID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.Playlists[playlistID]
	if !ok {
		return fmt.Errorf("playlist %s not found", playlistID)
	}
	m.Playlists[playlistID] = slices.DeleteFunc(items, func(id string) bool { return slices.Contains(ids, id) })
	return nil
}

func (m *MockMediaServer) GetItem(ctx context.Context, id string) (*models.LibraryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.Items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	return &item, nil
}

func (m *MockMediaServer) RefreshLibrary(ctx context.Context, libraryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refreshed = append(m.Refreshed, libraryID)
	return nil
}

func (m *MockMediaServer) MusicLibraries(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Libraries), nil
}

func (m *MockMediaServer) PlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.Playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("playlist %s not found", playlistID)
	}
	return slices.Clone(items), nil
}

// PlaylistItems returns a copy of the items of a media server playlist.
func (m *MockMediaServer) PlaylistItems(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Playlists[id])
}

// MockFingerprinter returns canned fingerprints keyed by URL or file path
type MockFingerprinter struct {
	Prints map[string][]uint32
	Err    error
}

func (m *MockFingerprinter) FingerprintURL(ctx context.Context, url string) ([]uint32, error) {
	return m.lookup(url)
}

func (m *MockFingerprinter) FingerprintFile(ctx context.Context, path string) ([]uint32, error) {
	return m.lookup(path)
}

func (m *MockFingerprinter) lookup(key string) ([]uint32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	fp, ok := m.Prints[key]
	if !ok {
		return nil, fmt.Errorf("no fingerprint for %s", key)
	}
	return fp, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// NewTestDB creates a migrated SQLite database in a temp dir, closed on cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// WriteFile creates a file with content under dir and returns its path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

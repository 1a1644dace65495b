package tasks

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/desertthunder/jellysync/internal/download"
	"github.com/desertthunder/jellysync/internal/lock"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/playlistsync"
	"github.com/desertthunder/jellysync/internal/quality"
	"github.com/desertthunder/jellysync/internal/repositories"
	"github.com/desertthunder/jellysync/internal/resolver"
	"github.com/desertthunder/jellysync/internal/services"
	"github.com/desertthunder/jellysync/internal/shared"
	tu "github.com/desertthunder/jellysync/internal/testing"
)

const provider = "SpotifyPlaylists"

type fakeDownloader struct {
	dir    string
	fail   map[string]error
	before func(track *models.Track)

	mu    sync.Mutex
	calls []string
}

func (d *fakeDownloader) OutputPath(id string) string {
	return filepath.Join(d.dir, id) + download.FileExtension
}

func (d *fakeDownloader) Download(ctx context.Context, track *models.Track) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, track.ProviderTrackID)
	d.mu.Unlock()
	if d.before != nil {
		d.before(track)
	}
	if err := d.fail[track.ProviderTrackID]; err != nil {
		return "", err
	}
	path := d.OutputPath(track.ProviderTrackID)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (d *fakeDownloader) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

type fakeResolver struct {
	matches map[string]*models.Candidate // keyed by catalog track id
	err     error
	seen    []models.CatalogTrack
}

func (r *fakeResolver) Resolve(ctx context.Context, track models.CatalogTrack) (*models.Candidate, error) {
	r.seen = append(r.seen, track)
	if r.err != nil {
		return nil, r.err
	}
	return r.matches[track.ID], nil
}

type jobFixture struct {
	db       *sql.DB
	store    *repositories.Store
	catalog  *tu.MockCatalog
	media    *tu.MockMediaServer
	mem      *lock.MemoryStore
	orch     *Orchestrator
	deps     *Deps
	dl       *fakeDownloader
	resolver *fakeResolver
	dir      string
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()

	db := tu.NewTestDB(t)
	clock := tu.FixedClock()
	logger := shared.NewLogger(io.Discard)
	mem := lock.NewMemoryStore(clock)
	locks := lock.NewManager(mem, logger)
	dir := t.TempDir()

	f := &jobFixture{
		db:       db,
		store:    repositories.NewStore(db),
		catalog:  tu.NewMockCatalog(provider),
		media:    tu.NewMockMediaServer(),
		mem:      mem,
		dl:       &fakeDownloader{dir: dir, fail: map[string]error{}},
		resolver: &fakeResolver{matches: map[string]*models.Candidate{}},
		dir:      dir,
	}
	cfg := shared.DefaultConfig()
	cfg.Download.SearchBeforeDownload = false
	cfg.Download.RefreshLibrariesAfter = false

	f.deps = &Deps{
		Store:      f.store,
		Locks:      locks,
		Providers:  services.NewRegistry(f.catalog),
		Media:      f.media,
		Resolver:   f.resolver,
		Downloader: f.dl,
		Sync:       playlistsync.New(clock, logger),
		Config:     cfg,
		Logger:     logger,
	}
	f.orch = NewOrchestrator(locks, repositories.NewJobStatusRepository(db), clock, logger)
	f.orch.Register(NewJobs(f.deps)...)
	return f
}

func (f *jobFixture) addTrack(t *testing.T, id, name string, mutate func(*models.Track)) *models.Track {
	t.Helper()
	track := models.NewTrack(provider, models.CatalogTrack{ID: id, Name: name, URI: "spotify:track:" + id})
	if mutate != nil {
		mutate(track)
	}
	if err := f.store.Tracks.Create(track); err != nil {
		t.Fatalf("failed to create track: %v", err)
	}
	return track
}

func (f *jobFixture) addPlaylist(t *testing.T, id string, tracks ...*models.Track) *models.Playlist {
	t.Helper()
	mediaID, _ := f.media.CreatePlaylist(context.Background(), id)
	playlist := models.NewPlaylist(provider, &models.CatalogPlaylist{ID: id, Name: "Playlist " + id, URI: "spotify:playlist:" + id})
	playlist.MediaServerID = mediaID
	if err := f.store.Playlists.Create(playlist); err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	for i, tr := range tracks {
		if err := f.store.Memberships.Upsert(&models.Membership{PlaylistID: playlist.ID, TrackID: tr.ID, Order: i}); err != nil {
			t.Fatalf("failed to add membership: %v", err)
		}
	}
	return playlist
}

func (f *jobFixture) track(t *testing.T, id string) *models.Track {
	t.Helper()
	track, err := f.store.Tracks.Get(id)
	if err != nil {
		t.Fatalf("failed to get track: %v", err)
	}
	return track
}

func (f *jobFixture) run(t *testing.T, name string) *Summary {
	t.Helper()
	summary, err := f.orch.RunByName(context.Background(), name, nil)
	if err != nil {
		t.Fatalf("RunByName(%s) error = %v", name, err)
	}
	return summary
}

func TestNewJobs(t *testing.T) {
	f := newJobFixture(t)
	want := []string{CheckForPlaylistUpdates, DownloadMissingTracks, UpdatePlaylistsTrackStatus, UpdateMediaServerIDs}
	if got := f.orch.Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	ttls := map[string]string{
		DownloadMissingTracks:      "30m0s",
		CheckForPlaylistUpdates:    "10m0s",
		UpdatePlaylistsTrackStatus: "10m0s",
		UpdateMediaServerIDs:       "10m0s",
	}
	for name, want := range ttls {
		job, _ := f.orch.Job(name)
		if got := job.TTL().String(); got != want {
			t.Errorf("%s TTL = %s, want %s", name, got, want)
		}
		if LockName(name) != name+"_lock" {
			t.Errorf("LockName(%s) = %s", name, LockName(name))
		}
	}
}

func TestDownloadJob(t *testing.T) {
	t.Run("downloads every missing track", func(t *testing.T) {
		f := newJobFixture(t)
		a := f.addTrack(t, "A", "Ay", nil)
		b := f.addTrack(t, "B", "Bee", nil)
		f.addTrack(t, "C", "Cee", func(tr *models.Track) { tr.MarkDownloaded("/music/c.mp3") })

		summary := f.run(t, DownloadMissingTracks)
		if summary.Total != 2 || summary.Processed != 2 || summary.Failed != 0 {
			t.Errorf("summary = %+v", summary)
		}
		if got := f.dl.Calls(); !slices.Equal(got, []string{"A", "B"}) {
			t.Errorf("download calls = %v", got)
		}
		for _, tr := range []*models.Track{a, b} {
			got := f.track(t, tr.ID)
			if !got.Downloaded || got.FilesystemPath != f.dl.OutputPath(tr.ProviderTrackID) {
				t.Errorf("track %s = %+v, want downloaded", tr.ProviderTrackID, got)
			}
		}
	})

	t.Run("adopts a file already at the output path", func(t *testing.T) {
		f := newJobFixture(t)
		a := f.addTrack(t, "A", "Ay", nil)
		tu.WriteFile(t, f.dir, "A.mp3", "audio")

		f.run(t, DownloadMissingTracks)
		if len(f.dl.Calls()) != 0 {
			t.Errorf("tool invoked for an existing file: %v", f.dl.Calls())
		}
		if got := f.track(t, a.ID); !got.Downloaded {
			t.Error("expected track marked downloaded")
		}
	})

	t.Run("failure is stored and counted", func(t *testing.T) {
		f := newJobFixture(t)
		a := f.addTrack(t, "A", "Ay", nil)
		b := f.addTrack(t, "B", "Bee", nil)
		f.dl.fail["A"] = &download.Failure{Diagnostic: "exit status 1: no results found"}

		summary := f.run(t, DownloadMissingTracks)
		if summary.State != models.JobCompleted || summary.Failed != 1 || summary.Processed != 2 {
			t.Errorf("summary = %+v", summary)
		}
		got := f.track(t, a.ID)
		if got.Downloaded || got.DownloadStatus != "exit status 1: no results found" {
			t.Errorf("failed track = %+v", got)
		}
		if !f.track(t, b.ID).Downloaded {
			t.Error("failure of one track must not stop the batch")
		}
	})

	t.Run("retry after failure clears the status", func(t *testing.T) {
		f := newJobFixture(t)
		a := f.addTrack(t, "A", "Ay", func(tr *models.Track) { tr.MarkFailed("earlier failure") })

		f.run(t, DownloadMissingTracks)
		got := f.track(t, a.ID)
		if !got.Downloaded || got.DownloadStatus != "" {
			t.Errorf("track = %+v, want downloaded without status", got)
		}
	})

	t.Run("search before download links the library item", func(t *testing.T) {
		f := newJobFixture(t)
		f.deps.Config.Download.SearchBeforeDownload = true
		a := f.addTrack(t, "A", "Ay", nil)
		f.catalog.Tracks["A"] = &models.CatalogTrack{ID: "A", Name: "Ay", Artists: []string{"Artist"}}
		f.resolver.matches["A"] = &models.Candidate{
			Item:   models.LibraryItem{ID: "jf-1", Name: "Ay", Path: "/music/ay.flac"},
			Method: models.MatchMetadata,
		}

		f.run(t, DownloadMissingTracks)
		if len(f.dl.Calls()) != 0 {
			t.Errorf("tool invoked for a track already in the library: %v", f.dl.Calls())
		}
		got := f.track(t, a.ID)
		if !got.Downloaded || got.MediaServerID != "jf-1" || got.FilesystemPath != "/music/ay.flac" {
			t.Errorf("track = %+v", got)
		}
		if len(f.resolver.seen) != 1 || len(f.resolver.seen[0].Artists) != 1 {
			t.Errorf("resolver saw %+v, want the catalog track with artists", f.resolver.seen)
		}
	})

	t.Run("search failure falls back to downloading", func(t *testing.T) {
		f := newJobFixture(t)
		f.deps.Config.Download.SearchBeforeDownload = true
		f.resolver.err = errors.New("jellyfin down")
		f.addTrack(t, "A", "Ay", nil)

		summary := f.run(t, DownloadMissingTracks)
		if summary.Failed != 0 || len(f.dl.Calls()) != 1 {
			t.Errorf("summary = %+v, calls = %v", summary, f.dl.Calls())
		}
	})

	t.Run("refreshes music libraries afterwards", func(t *testing.T) {
		f := newJobFixture(t)
		f.deps.Config.Download.RefreshLibrariesAfter = true
		f.media.Libraries = []string{"lib-music", "lib-audiobooks"}
		f.addTrack(t, "A", "Ay", nil)

		f.run(t, DownloadMissingTracks)
		if !slices.Equal(f.media.Refreshed, []string{"lib-music", "lib-audiobooks"}) {
			t.Errorf("refreshed = %v", f.media.Refreshed)
		}
	})

	t.Run("store outage aborts the batch", func(t *testing.T) {
		f := newJobFixture(t)
		f.addTrack(t, "A", "Ay", nil)
		f.addTrack(t, "B", "Bee", nil)
		f.dl.before = func(*models.Track) { f.db.Close() }

		summary, err := f.orch.RunByName(context.Background(), DownloadMissingTracks, nil)
		if !errors.Is(err, shared.ErrStoreUnavailable) {
			t.Fatalf("RunByName() error = %v, want ErrStoreUnavailable", err)
		}
		if summary.State != models.JobFailed || summary.Processed != 0 {
			t.Errorf("summary = %+v", summary)
		}
		if len(f.dl.Calls()) != 1 {
			t.Errorf("batch continued after the outage: %v", f.dl.Calls())
		}
		if f.mem.Held(LockName(DownloadMissingTracks)) {
			t.Error("lock must be released after an abort")
		}
	})
}

func TestPlaylistUpdateJob(t *testing.T) {
	t.Run("syncs and publishes linked tracks in order", func(t *testing.T) {
		f := newJobFixture(t)
		linked := f.addTrack(t, "B", "Bee", func(tr *models.Track) {
			tr.Link(models.LibraryItem{ID: "jf-b", Path: "/music/b.flac"})
		})
		stale := f.addTrack(t, "Z", "Zed", func(tr *models.Track) {
			tr.Link(models.LibraryItem{ID: "jf-z", Path: "/music/z.flac"})
		})
		playlist := f.addPlaylist(t, "pl1", stale)
		f.media.Playlists[playlist.MediaServerID] = []string{"jf-z"}

		f.catalog.Playlists["pl1"] = &models.CatalogPlaylist{
			ID:          "pl1",
			Name:        "Renamed",
			ChangeToken: "snap-2",
			Items: []models.CatalogPlaylistItem{
				{Position: 0, Track: models.CatalogTrack{ID: "A", Name: "Ay", Artists: []string{"Artist"}}},
				{Position: 1, Track: models.CatalogTrack{ID: "B", Name: "Bee", Artists: []string{"Artist"}}},
			},
		}

		summary := f.run(t, CheckForPlaylistUpdates)
		if summary.Processed != 1 || summary.Failed != 0 {
			t.Fatalf("summary = %+v", summary)
		}

		got, err := f.store.Playlists.Get(playlist.ID)
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		if got.Name != "Renamed" || got.ChangeToken != "snap-2" || got.TrackCount != 2 || got.LastChangedAt == nil {
			t.Errorf("playlist = %+v", got)
		}

		tracks, _ := f.store.Memberships.Tracks(playlist.ID)
		if len(tracks) != 2 || tracks[0].Track.ProviderTrackID != "A" || tracks[1].Track.ID != linked.ID {
			t.Errorf("memberships = %+v", tracks)
		}
		if _, err := f.store.Tracks.Get(stale.ID); err != nil {
			t.Errorf("removed track must survive: %v", err)
		}

		if items := f.media.PlaylistItems(playlist.MediaServerID); !slices.Equal(items, []string{"jf-b"}) {
			t.Errorf("media server playlist = %v, want [jf-b]", items)
		}
	})

	t.Run("unknown provider fails only that playlist", func(t *testing.T) {
		f := newJobFixture(t)
		orphan := models.NewPlaylist("Tidal", &models.CatalogPlaylist{ID: "t1", Name: "Orphan"})
		if err := f.store.Playlists.Create(orphan); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		f.addPlaylist(t, "pl1")
		f.catalog.Playlists["pl1"] = &models.CatalogPlaylist{ID: "pl1", Name: "Playlist pl1", ChangeToken: "s1"}

		summary := f.run(t, CheckForPlaylistUpdates)
		if summary.Total != 2 || summary.Failed != 1 || summary.State != models.JobCompleted {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("unchanged token skips the diff", func(t *testing.T) {
		f := newJobFixture(t)
		a := f.addTrack(t, "A", "Ay", nil)
		playlist := f.addPlaylist(t, "pl1", a)
		playlist.ChangeToken = "same"
		if err := f.store.Playlists.Update(playlist); err != nil {
			t.Fatalf("failed to update playlist: %v", err)
		}
		f.catalog.Playlists["pl1"] = &models.CatalogPlaylist{ID: "pl1", Name: "Playlist pl1", ChangeToken: "same"}

		f.run(t, CheckForPlaylistUpdates)
		tracks, _ := f.store.Memberships.Tracks(playlist.ID)
		if len(tracks) != 1 {
			t.Errorf("membership changed despite matching token: %+v", tracks)
		}
	})
}

func TestTrackStatusJob(t *testing.T) {
	f := newJobFixture(t)
	present := tu.WriteFile(t, f.dir, "present.mp3", "audio")
	reappeared := tu.WriteFile(t, f.dir, "back.mp3", "audio")

	ok := f.addTrack(t, "A", "Ay", func(tr *models.Track) {
		tr.Link(models.LibraryItem{ID: "jf-a", Path: present})
	})
	gone := f.addTrack(t, "B", "Bee", func(tr *models.Track) {
		tr.Link(models.LibraryItem{ID: "jf-b", Path: filepath.Join(f.dir, "deleted.mp3")})
	})
	back := f.addTrack(t, "C", "Cee", func(tr *models.Track) { tr.FilesystemPath = reappeared })
	never := f.addTrack(t, "D", "Dee", nil)
	playlist := f.addPlaylist(t, "pl1", ok, gone, back, never)

	summary := f.run(t, UpdatePlaylistsTrackStatus)
	if summary.Processed != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	if got := f.track(t, ok.ID); !got.Downloaded || got.MediaServerID != "jf-a" {
		t.Errorf("present track = %+v", got)
	}
	if got := f.track(t, gone.ID); got.Downloaded || got.FilesystemPath != "" || got.MediaServerID != "" {
		t.Errorf("missing file must clear path and media id together: %+v", got)
	}
	if got := f.track(t, back.ID); !got.Downloaded {
		t.Errorf("reappeared file = %+v", got)
	}

	pl, _ := f.store.Playlists.Get(playlist.ID)
	if pl.TrackCount != 4 || pl.TracksAvailable != 2 {
		t.Errorf("counts = %d/%d, want 2/4", pl.TracksAvailable, pl.TrackCount)
	}
}

func TestMediaServerIDJob(t *testing.T) {
	candidate := func(id, path string) *models.Candidate {
		return &models.Candidate{Item: models.LibraryItem{ID: id, Path: path}, Method: models.MatchMetadata}
	}

	t.Run("first run of the day re-resolves every track", func(t *testing.T) {
		f := newJobFixture(t)
		f.addTrack(t, "A", "Ay", nil)
		f.addTrack(t, "B", "Bee", func(tr *models.Track) { tr.MarkDownloaded("/music/b.mp3") })
		f.resolver.matches["A"] = candidate("jf-a", "/music/a.flac")

		summary := f.run(t, UpdateMediaServerIDs)
		if summary.Total != 2 {
			t.Errorf("Total = %d, want every track", summary.Total)
		}
		if !f.mem.Held(FullUpdateGate) {
			t.Error("full update gate must stay held")
		}
	})

	t.Run("gate held limits to unlinked downloads", func(t *testing.T) {
		f := newJobFixture(t)
		f.mem.SetNX(context.Background(), FullUpdateGate, FullUpdateTTL)
		f.addTrack(t, "A", "Ay", nil)
		b := f.addTrack(t, "B", "Bee", func(tr *models.Track) { tr.MarkDownloaded("/music/b.mp3") })
		f.addTrack(t, "C", "Cee", func(tr *models.Track) {
			tr.Link(models.LibraryItem{ID: "jf-c", Path: "/music/c.mp3"})
		})
		f.resolver.matches["B"] = candidate("jf-b", "/music/b.flac")

		summary := f.run(t, UpdateMediaServerIDs)
		if summary.Total != 1 || summary.Processed != 1 {
			t.Fatalf("summary = %+v", summary)
		}
		got := f.track(t, b.ID)
		if got.MediaServerID != "jf-b" || got.FilesystemPath != "/music/b.flac" {
			t.Errorf("track = %+v", got)
		}
	})

	t.Run("no match leaves the track alone", func(t *testing.T) {
		f := newJobFixture(t)
		f.mem.SetNX(context.Background(), FullUpdateGate, FullUpdateTTL)
		b := f.addTrack(t, "B", "Bee", func(tr *models.Track) { tr.MarkDownloaded("/music/b.mp3") })

		summary := f.run(t, UpdateMediaServerIDs)
		if summary.Failed != 0 {
			t.Errorf("no match is not a failure: %+v", summary)
		}
		if got := f.track(t, b.ID); got.MediaServerID != "" || !got.Downloaded {
			t.Errorf("track = %+v", got)
		}
	})

	t.Run("search failure counts the entity", func(t *testing.T) {
		f := newJobFixture(t)
		f.mem.SetNX(context.Background(), FullUpdateGate, FullUpdateTTL)
		f.addTrack(t, "B", "Bee", func(tr *models.Track) { tr.MarkDownloaded("/music/b.mp3") })
		f.resolver.err = errors.New("jellyfin down")

		summary := f.run(t, UpdateMediaServerIDs)
		if summary.Failed != 1 || summary.State != models.JobCompleted {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("without a media server the run fails", func(t *testing.T) {
		f := newJobFixture(t)
		f.deps.Resolver = nil
		f.addTrack(t, "B", "Bee", func(tr *models.Track) { tr.MarkDownloaded("/music/b.mp3") })

		summary, err := f.orch.RunByName(context.Background(), UpdateMediaServerIDs, nil)
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Fatalf("err = %v, want ErrMissingConfig", err)
		}
		if summary.State != models.JobFailed {
			t.Errorf("state = %s, want failed", summary.State)
		}
	})

	t.Run("failed track listing frees the full update gate", func(t *testing.T) {
		f := newJobFixture(t)
		down := tu.NewTestDB(t)
		down.Close()
		f.deps.Store = repositories.NewStore(down)

		summary, err := f.orch.RunByName(context.Background(), UpdateMediaServerIDs, nil)
		if err == nil {
			t.Fatal("expected the run to fail when tracks cannot be listed")
		}
		if summary.State != models.JobFailed {
			t.Errorf("state = %s, want failed", summary.State)
		}
		if f.mem.Held(FullUpdateGate) {
			t.Error("full update gate must be released when the full pass never started")
		}
	})

	t.Run("with the library resolver", func(t *testing.T) {
		f := newJobFixture(t)
		logger := shared.NewLogger(io.Discard)
		f.deps.Resolver = resolver.New(f.media, quality.NewScorer(quality.ScorerOpts{Logger: logger}), nil, resolver.DefaultOptions(), logger)
		f.mem.SetNX(context.Background(), FullUpdateGate, FullUpdateTTL)

		b := f.addTrack(t, "B", "Bohemian Rhapsody", func(tr *models.Track) { tr.MarkDownloaded("/music/b.mp3") })
		f.catalog.Tracks["B"] = &models.CatalogTrack{ID: "B", Name: "Bohemian Rhapsody", Artists: []string{"Queen"}}
		f.media.Results[resolver.SearchQuery("Bohemian Rhapsody")] = []models.LibraryItem{
			{ID: "jf-mp3", Name: "Bohemian Rhapsody", Artists: []string{"Queen"}, Container: "mp3", Path: "/music/br.mp3"},
			{ID: "jf-flac", Name: "Bohemian Rhapsody", Artists: []string{"Queen"}, Container: "flac", Path: "/music/br.flac"},
		}

		f.run(t, UpdateMediaServerIDs)
		if got := f.track(t, b.ID); got.MediaServerID != "jf-flac" || got.FilesystemPath != "/music/br.flac" {
			t.Errorf("track = %+v, want the flac copy", got)
		}
	})
}

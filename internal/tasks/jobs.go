package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/download"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/playlistsync"
	"github.com/desertthunder/jellysync/internal/repositories"
	"github.com/desertthunder/jellysync/internal/services"
	"github.com/desertthunder/jellysync/internal/shared"
)

// Job names. Each job is guarded by the lock [LockName] returns for it.
const (
	DownloadMissingTracks      = "download_missing_tracks"
	CheckForPlaylistUpdates    = "check_for_playlist_updates"
	UpdatePlaylistsTrackStatus = "update_all_playlists_track_status"
	UpdateMediaServerIDs       = "update_media_server_ids"
)

// FullUpdateGate is taken by [UpdateMediaServerIDs] to re-resolve every track at most once per
// FullUpdateTTL. It is never released.
const (
	FullUpdateGate = "full_update_media_server_ids"
	FullUpdateTTL  = 24 * time.Hour
)

// Schedule is the default lock TTL and run interval of a job.
type Schedule struct {
	TTL      time.Duration
	Interval time.Duration
}

// DefaultSchedules are used for jobs missing from the [jobs] config section.
var DefaultSchedules = map[string]Schedule{
	DownloadMissingTracks:      {TTL: 30 * time.Minute, Interval: 60 * time.Minute},
	CheckForPlaylistUpdates:    {TTL: 10 * time.Minute, Interval: 60 * time.Minute},
	UpdatePlaylistsTrackStatus: {TTL: 10 * time.Minute, Interval: 5 * time.Minute},
	UpdateMediaServerIDs:       {TTL: 10 * time.Minute, Interval: 10 * time.Minute},
}

// TrackResolver finds the library item holding a catalog track.
type TrackResolver interface {
	Resolve(ctx context.Context, track models.CatalogTrack) (*models.Candidate, error)
}

// TrackDownloader produces a local file for a track.
type TrackDownloader interface {
	OutputPath(providerTrackID string) string
	Download(ctx context.Context, track *models.Track) (string, error)
}

// Deps are the collaborators shared by the jobs.
//
// Media may be nil, in which case nothing is published to or refreshed on the media server.
type Deps struct {
	Store      *repositories.Store
	Locks      Locker
	Providers  *services.Registry
	Media      services.MediaServer
	Resolver   TrackResolver
	Downloader TrackDownloader
	Sync       *playlistsync.Synchronizer
	Config     *shared.Config
	Logger     *log.Logger
}

// NewJobs builds the four jobs over deps.
func NewJobs(deps *Deps) []Job {
	if deps.Config == nil {
		deps.Config = shared.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}
	if deps.Sync == nil {
		deps.Sync = playlistsync.New(nil, deps.Logger)
	}
	return []Job{
		&DownloadJob{deps},
		&PlaylistUpdateJob{deps},
		&TrackStatusJob{deps},
		&MediaServerIDJob{deps},
	}
}

func (d *Deps) ttl(name string) time.Duration {
	return d.Config.JobTTL(name, DefaultSchedules[name].TTL)
}

func (d *Deps) logger(job string) *log.Logger {
	return shared.WithLogger(d.Logger, "job", job)
}

// loadTrack reads a track inside a transaction so an unreachable store surfaces as
// [shared.ErrStoreUnavailable].
func (d *Deps) loadTrack(id string) (*models.Track, error) {
	var track *models.Track
	err := d.Store.Transaction(func(tx *repositories.Store) error {
		var err error
		track, err = tx.Tracks.Get(id)
		return err
	})
	return track, err
}

func (d *Deps) saveTrack(track *models.Track) error {
	return d.Store.Transaction(func(tx *repositories.Store) error {
		return tx.Tracks.Update(track)
	})
}

func (d *Deps) loadPlaylist(id string) (*models.Playlist, error) {
	var playlist *models.Playlist
	err := d.Store.Transaction(func(tx *repositories.Store) error {
		var err error
		playlist, err = tx.Playlists.Get(id)
		return err
	})
	return playlist, err
}

// catalogTrack fetches the catalog view of track. When the provider is unknown or unreachable
// it falls back to the stored name, which can only produce a match through the fingerprint path.
func (d *Deps) catalogTrack(ctx context.Context, track *models.Track, logger *log.Logger) models.CatalogTrack {
	fallback := models.CatalogTrack{ID: track.ProviderTrackID, Name: track.Name, URI: track.ProviderURI}
	if d.Providers == nil {
		return fallback
	}
	provider, err := d.Providers.Get(track.Provider)
	if err != nil {
		logger.Warn("no catalog provider for track", "track", track.Name, "provider", track.Provider)
		return fallback
	}
	ct, err := provider.GetTrack(ctx, track.ProviderTrackID)
	if err != nil {
		logger.Warn("failed to fetch catalog track", "track", track.Name, "error", err)
		return fallback
	}
	return *ct
}

func trackTargets(tracks []*models.Track) []Target {
	targets := make([]Target, 0, len(tracks))
	for _, t := range tracks {
		targets = append(targets, Target{ID: t.ID, Name: t.Name})
	}
	return targets
}

func (d *Deps) playlistTargets() ([]Target, error) {
	playlists, err := d.Store.Playlists.List(nil)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(playlists))
	for _, p := range playlists {
		targets = append(targets, Target{ID: p.ID, Name: p.Name})
	}
	return targets, nil
}

// DownloadJob downloads every track that has no local file yet.
type DownloadJob struct{ *Deps }

func (j *DownloadJob) Name() string       { return DownloadMissingTracks }
func (j *DownloadJob) TTL() time.Duration { return j.ttl(DownloadMissingTracks) }

func (j *DownloadJob) Targets(ctx context.Context) ([]Target, error) {
	tracks, err := j.Store.Tracks.List(map[string]any{"downloaded": false})
	if err != nil {
		return nil, err
	}
	return trackTargets(tracks), nil
}

// Process links the track to an existing library item when search-before-download is on, adopts a
// file already at the output path, and otherwise runs the download tool. Tool failures are stored
// on the track before being reported.
func (j *DownloadJob) Process(ctx context.Context, target Target) error {
	logger := j.logger(DownloadMissingTracks)
	track, err := j.loadTrack(target.ID)
	if err != nil {
		return err
	}
	if track.Downloaded {
		return nil
	}

	if j.Config.Download.SearchBeforeDownload && j.Resolver != nil {
		candidate, err := j.Resolver.Resolve(ctx, j.catalogTrack(ctx, track, logger))
		switch {
		case err != nil:
			logger.Warn("library search failed, downloading instead", "track", track.Name, "error", err)
		case candidate != nil:
			track.Link(candidate.Item)
			if track.Downloaded {
				logger.Info("found track in library", "track", track.Name, "item", candidate.Item.ID, "method", candidate.Method)
				return j.saveTrack(track)
			}
		}
	}

	path := j.Downloader.OutputPath(track.ProviderTrackID)
	if download.Exists(path) {
		logger.Info("file already present", "track", track.Name, "path", path)
		track.MarkDownloaded(path)
		return j.saveTrack(track)
	}

	got, err := j.Downloader.Download(ctx, track)
	if err != nil {
		diagnostic := err.Error()
		var failure *download.Failure
		if errors.As(err, &failure) {
			diagnostic = failure.Diagnostic
		}
		track.MarkFailed(diagnostic)
		if saveErr := j.saveTrack(track); saveErr != nil {
			return saveErr
		}
		return err
	}

	logger.Info("downloaded track", "track", track.Name, "path", got)
	track.MarkDownloaded(got)
	return j.saveTrack(track)
}

// Finish asks the media server to rescan its music libraries so new files get item ids.
func (j *DownloadJob) Finish(ctx context.Context, summary *Summary) error {
	if !j.Config.Download.RefreshLibrariesAfter || j.Media == nil || summary.Processed == 0 {
		return nil
	}
	libraries, err := j.Media.MusicLibraries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list music libraries: %w", err)
	}
	var errs []error
	for _, id := range libraries {
		if err := j.Media.RefreshLibrary(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("failed to refresh library %s: %w", id, err))
			continue
		}
		j.logger(DownloadMissingTracks).Info("refreshed library", "library", id)
	}
	return errors.Join(errs...)
}

// PlaylistUpdateJob syncs every playlist with its remote snapshot and publishes the result.
type PlaylistUpdateJob struct{ *Deps }

func (j *PlaylistUpdateJob) Name() string       { return CheckForPlaylistUpdates }
func (j *PlaylistUpdateJob) TTL() time.Duration { return j.ttl(CheckForPlaylistUpdates) }

func (j *PlaylistUpdateJob) Targets(ctx context.Context) ([]Target, error) {
	return j.playlistTargets()
}

func (j *PlaylistUpdateJob) Process(ctx context.Context, target Target) error {
	logger := j.logger(CheckForPlaylistUpdates)
	playlist, err := j.loadPlaylist(target.ID)
	if err != nil {
		return err
	}

	provider, err := j.Providers.Get(playlist.Provider)
	if err != nil {
		return err
	}
	remote, err := provider.GetPlaylist(ctx, playlist.ProviderPlaylistID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote playlist %s: %w", playlist.ProviderPlaylistID, err)
	}

	var (
		result *playlistsync.DiffResult
		tracks []models.PlaylistTrack
	)
	err = j.Store.Transaction(func(tx *repositories.Store) error {
		var err error
		if result, err = j.Sync.Sync(ctx, playlistsync.FromStore(tx), playlist, remote); err != nil {
			return err
		}
		tracks, err = tx.Memberships.Tracks(playlist.ID)
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case result.Skipped:
		logger.Debug("playlist unchanged", "playlist", playlist.Name)
	case result.Changed:
		logger.Info("playlist changed", "playlist", playlist.Name, "added", len(result.Added), "removed", len(result.Removed))
	}

	if j.Media == nil {
		return nil
	}
	published, err := playlistsync.Publish(ctx, j.Media, playlist, tracks)
	if err != nil {
		return err
	}
	if published.Added > 0 || published.Removed > 0 {
		logger.Info("updated media server playlist", "playlist", playlist.Name, "added", published.Added, "removed", published.Removed)
	}
	return nil
}

// TrackStatusJob re-verifies the files of every playlist's tracks and refreshes the cached counts.
type TrackStatusJob struct{ *Deps }

func (j *TrackStatusJob) Name() string       { return UpdatePlaylistsTrackStatus }
func (j *TrackStatusJob) TTL() time.Duration { return j.ttl(UpdatePlaylistsTrackStatus) }

func (j *TrackStatusJob) Targets(ctx context.Context) ([]Target, error) {
	return j.playlistTargets()
}

// Process clears the path and media server id of tracks whose file is gone, adopts files that
// reappeared, then recomputes track_count and tracks_available.
func (j *TrackStatusJob) Process(ctx context.Context, target Target) error {
	logger := j.logger(UpdatePlaylistsTrackStatus)
	return j.Store.Transaction(func(tx *repositories.Store) error {
		playlist, err := tx.Playlists.Get(target.ID)
		if err != nil {
			return err
		}
		tracks, err := tx.Memberships.Tracks(playlist.ID)
		if err != nil {
			return err
		}

		for _, pt := range tracks {
			track := pt.Track
			present := track.FilesystemPath != "" && download.Exists(track.FilesystemPath)
			switch {
			case present && !track.Downloaded:
				track.MarkDownloaded(track.FilesystemPath)
			case !present && (track.Downloaded || track.FilesystemPath != "" || track.MediaServerID != ""):
				logger.Debug("file missing, clearing track", "track", track.Name, "path", track.FilesystemPath)
				track.ClearFile()
			default:
				continue
			}
			if err := tx.Tracks.Update(track); err != nil {
				return err
			}
		}

		total, available, err := tx.Memberships.Counts(playlist.ID)
		if err != nil {
			return err
		}
		playlist.SetCounts(total, available)
		return tx.Playlists.Update(playlist)
	})
}

// MediaServerIDJob links downloaded tracks to their media server items.
//
// Once per [FullUpdateTTL] it re-resolves every track so a better-quality copy added to the
// library replaces the earlier link.
type MediaServerIDJob struct{ *Deps }

func (j *MediaServerIDJob) Name() string       { return UpdateMediaServerIDs }
func (j *MediaServerIDJob) TTL() time.Duration { return j.ttl(UpdateMediaServerIDs) }

func (j *MediaServerIDJob) Targets(ctx context.Context) ([]Target, error) {
	if j.Resolver == nil {
		return nil, fmt.Errorf("%w: no media server to resolve tracks against", shared.ErrMissingConfig)
	}
	criteria := map[string]any{"downloaded": true, "linked": false}
	full := j.Locks != nil && j.Locks.TryAcquire(ctx, FullUpdateGate, FullUpdateTTL)
	if full {
		j.logger(UpdateMediaServerIDs).Info("performing full update of media server ids")
		criteria = nil
	}
	tracks, err := j.Store.Tracks.List(criteria)
	if err != nil {
		// the full pass never started, so the next run may try again
		if full {
			j.Locks.Release(context.WithoutCancel(ctx), FullUpdateGate)
		}
		return nil, err
	}
	return trackTargets(tracks), nil
}

func (j *MediaServerIDJob) Process(ctx context.Context, target Target) error {
	logger := j.logger(UpdateMediaServerIDs)
	track, err := j.loadTrack(target.ID)
	if err != nil {
		return err
	}

	candidate, err := j.Resolver.Resolve(ctx, j.catalogTrack(ctx, track, logger))
	if err != nil {
		return fmt.Errorf("failed to search library for %s: %w", track.Name, err)
	}
	if candidate == nil {
		logger.Warn("no matching library item", "track", track.Name)
		return nil
	}

	item := candidate.Item
	if track.MediaServerID == item.ID && (item.Path == "" || track.FilesystemPath == item.Path) {
		return nil
	}
	track.Link(item)
	logger.Info("updated media server id", "track", track.Name, "item", item.ID, "method", candidate.Method)
	return j.saveTrack(track)
}

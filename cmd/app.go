package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/download"
	"github.com/desertthunder/jellysync/internal/fingerprint"
	"github.com/desertthunder/jellysync/internal/lock"
	"github.com/desertthunder/jellysync/internal/metrics"
	"github.com/desertthunder/jellysync/internal/playlistsync"
	"github.com/desertthunder/jellysync/internal/quality"
	"github.com/desertthunder/jellysync/internal/repositories"
	"github.com/desertthunder/jellysync/internal/resolver"
	"github.com/desertthunder/jellysync/internal/services"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/desertthunder/jellysync/internal/tasks"
)

// app is the wired application a command works with. Close releases the database and any lock
// store connection.
type app struct {
	db        *sql.DB
	store     *repositories.Store
	locks     *lock.Manager
	orch      *tasks.Orchestrator
	providers *services.Registry
	media     services.MediaServer // nil when no media server is configured
	resolver  *resolver.Resolver   // nil when media is nil
	sync      *playlistsync.Synchronizer
	closers   []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// requireMedia reports a config error when the command needs the media server.
func (a *app) requireMedia() error {
	if a.media == nil {
		return fmt.Errorf("%w: media_server.url and media_server.access_token are required", shared.ErrMissingConfig)
	}
	return nil
}

// open connects to the database, applies migrations and builds the orchestrator with every job
// registered.
func (r *Runner) open(ctx context.Context) (*app, error) {
	cfg := r.config
	a := &app{}

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db)
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		a.Close()
		return nil, err
	}
	a.store = repositories.NewStore(db)

	lockStore, err := r.newLockStore(db, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.locks = lock.NewManager(lockStore, r.logger)

	if a.providers, err = r.newProviders(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if a.media, err = r.newMediaServer(); err != nil {
		a.Close()
		return nil, err
	}

	a.sync = playlistsync.New(r.clock, r.logger)

	var trackResolver tasks.TrackResolver
	if a.media != nil {
		a.resolver = r.newResolver(a.media)
		trackResolver = a.resolver
	}

	downloader := download.New(download.Opts{
		Tool:           cfg.Download.Tool,
		OutputTemplate: cfg.Download.OutputTemplate,
		Timeout:        cfg.Download.Timeout.Duration,
		CookieFile:     cfg.Download.CookieFile,
		ClientID:       cfg.Credentials.Spotify.ClientID,
		ClientSecret:   cfg.Credentials.Spotify.ClientSecret,
		Logger:         shared.WithLogger(r.logger, "component", "download"),
	})

	metrics.Register()
	a.orch = tasks.NewOrchestrator(a.locks, repositories.NewJobStatusRepository(db), r.clock, r.logger)
	a.orch.Register(tasks.NewJobs(&tasks.Deps{
		Store:      a.store,
		Locks:      a.locks,
		Providers:  a.providers,
		Media:      a.media,
		Resolver:   trackResolver,
		Downloader: downloader,
		Sync:       a.sync,
		Config:     cfg,
		Logger:     r.logger,
	})...)

	return a, nil
}

func (r *Runner) newLockStore(db *sql.DB, a *app) (lock.Store, error) {
	if r.lockStore != nil {
		return r.lockStore, nil
	}
	switch r.config.Lock.Backend {
	case "redis":
		store, err := lock.DialRedis(r.config.Lock.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case "memory":
		r.logger.Warn("using in-memory locks, runs are only exclusive within this process")
		return lock.NewMemoryStore(r.clock), nil
	default:
		return lock.NewSQLiteStore(db, r.clock), nil
	}
}

// newProviders registers Spotify when credentials are set and Deezer when enabled.
func (r *Runner) newProviders(ctx context.Context) (*services.Registry, error) {
	if r.providers != nil {
		return r.providers, nil
	}
	creds := r.config.Credentials
	registry := services.NewRegistry()

	if creds.Spotify.ClientID != "" && creds.Spotify.ClientSecret != "" {
		spotify, err := services.NewSpotifyProvider(context.WithoutCancel(ctx), services.SpotifyOpts{
			ClientID:     creds.Spotify.ClientID,
			ClientSecret: creds.Spotify.ClientSecret,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(spotify)
	}
	if creds.Deezer.Enabled {
		registry.Register(services.NewDeezerProvider(services.DeezerOpts{}))
	}

	if len(registry.Identifiers()) == 0 {
		r.logger.Warn("no catalog providers configured, playlist syncs will fail")
	}
	return registry, nil
}

func (r *Runner) newMediaServer() (services.MediaServer, error) {
	if r.media != nil {
		return r.media, nil
	}
	ms := r.config.MediaServer
	if ms.URL == "" || ms.AccessToken == "" {
		r.logger.Warn("media server not configured, publishing and resolution are disabled")
		return nil, nil
	}
	client, err := services.NewJellyfinClient(services.JellyfinOpts{
		BaseURL:     ms.URL,
		AccessToken: ms.AccessToken,
		UserID:      ms.UserID,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Runner) newResolver(library resolver.LibrarySearcher) *resolver.Resolver {
	m := r.config.Matching
	logger := shared.WithLogger(r.logger, "component", "resolver")

	scorer := quality.NewScorer(quality.ScorerOpts{
		Prober:  quality.ChainProber{quality.NewFFprobe(nil), quality.TagProber{}},
		Deep:    m.DeepQualityAnalysis,
		Timeout: m.ProbeTimeout.Duration,
		Logger:  logger,
	})

	var printer resolver.Fingerprinter
	if m.FingerprintFallback {
		printer = fingerprint.NewChromaprint(fingerprint.ChromaprintOpts{
			PreviewTimeout: m.PreviewTimeout.Duration,
			ToolTimeout:    m.ProbeTimeout.Duration,
		})
	}

	return resolver.New(library, scorer, printer, resolver.Options{
		SingleResultFastPath: m.SingleResultFastPath,
		FingerprintFallback:  m.FingerprintFallback,
		Threshold:            m.FingerprintThreshold,
	}, logger)
}

// quietLogger discards log lines below error, for commands that render their own output.
func quietLogger(l *log.Logger) *log.Logger {
	child := l.With()
	child.SetLevel(log.ErrorLevel)
	return child
}

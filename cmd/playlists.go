package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/jellysync/internal/formatter"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/playlistsync"
	"github.com/desertthunder/jellysync/internal/repositories"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistsAdd starts mirroring a catalog playlist: it fetches the remote snapshot, creates the
// media server playlist, stores the mirror and runs the initial sync.
func (r *Runner) PlaylistsAdd(ctx context.Context, cmd *cli.Command) error {
	providerID := cmd.StringArg("provider")
	playlistID := cmd.StringArg("id")
	if providerID == "" || playlistID == "" {
		return fmt.Errorf("%w: provider and playlist id", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := a.providers.Get(providerID)
	if err != nil {
		return err
	}

	existing, err := a.store.Playlists.GetByProviderID(providerID, playlistID)
	if err == nil {
		return fmt.Errorf("%w: playlist %s is already mirrored as %s", shared.ErrInvalidArgument, playlistID, existing.ID)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	r.logger.Info("fetching playlist", "provider", providerID, "id", playlistID)
	remote, err := provider.GetPlaylist(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to fetch playlist: %w", err)
	}

	playlist := models.NewPlaylist(providerID, remote)
	if a.media != nil {
		mediaID, err := a.media.CreatePlaylist(ctx, remote.Name)
		if err != nil {
			return fmt.Errorf("failed to create media server playlist: %w", err)
		}
		playlist.MediaServerID = mediaID
	}

	var (
		result *playlistsync.DiffResult
		tracks []models.PlaylistTrack
	)
	err = a.store.Transaction(func(tx *repositories.Store) error {
		if err := tx.Playlists.Create(playlist); err != nil {
			return err
		}
		var err error
		if result, err = a.sync.Sync(ctx, playlistsync.FromStore(tx), playlist, remote); err != nil {
			return err
		}
		tracks, err = tx.Memberships.Tracks(playlist.ID)
		return err
	})
	if err != nil {
		return err
	}

	r.writePlain("✓ Added %s (%d tracks, %d new)\n", playlist.Name, playlist.TrackCount, len(result.Added))

	if a.media != nil {
		published, err := playlistsync.Publish(ctx, a.media, playlist, tracks)
		if err != nil {
			return err
		}
		r.writePlain("✓ Media server playlist %s: %d/%d tracks available\n", playlist.MediaServerID, published.Added, playlist.TrackCount)
	} else {
		r.writePlain("No media server configured, the playlist will be published once one is set\n")
	}
	r.writePlainln("Run 'jellysync jobs run download_missing_tracks' to fetch missing tracks.")
	return nil
}

// PlaylistsList prints every mirrored playlist with its availability.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	playlists, err := a.store.Playlists.List(map[string]any{"provider": cmd.String("provider")})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	if len(playlists) == 0 {
		return r.writePlain("No playlists mirrored yet. Add one with 'jellysync playlists add <provider> <id>'.\n")
	}

	reports := make([]formatter.Report, 0, len(playlists))
	for _, p := range playlists {
		reports = append(reports, formatter.Report{Playlist: p})
	}
	data, err := formatter.ReportsToText(reports)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// PlaylistsReport writes availability reports. Without --output the report goes to stdout.
func (r *Runner) PlaylistsReport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := r.reports(a, cmd.StringArg("id"))
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		files, err := formatter.Write(reports, format, output)
		if err != nil {
			return err
		}
		for _, f := range files {
			r.writePlain("✓ Wrote %s\n", f)
		}
		return nil
	}

	switch format {
	case formatter.CSV:
		data, err := formatter.ReportsToCSV(reports)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	case formatter.Markdown:
		for _, report := range reports {
			data, err := formatter.ReportToMarkdown(report)
			if err != nil {
				return err
			}
			r.writePlain("%s\n", data)
		}
		return nil
	default:
		data, err := formatter.ReportsToText(reports)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}
}

// PlaylistsMissing lists the tracks of a playlist that are not playable from the media server.
func (r *Runner) PlaylistsMissing(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := r.reports(a, id)
	if err != nil {
		return err
	}
	report := reports[0]
	missing := formatter.MissingToText(report)
	if len(missing) == 0 {
		return r.writePlain("✓ Every track of %s is available\n", report.Playlist.Name)
	}
	r.writePlainHeader(fmt.Sprintf("Missing from %s", report.Playlist.Name))
	return r.writePlain("%s", missing)
}

// reports loads one playlist by id, or all of them when id is empty, with their tracks.
func (r *Runner) reports(a *app, id string) ([]formatter.Report, error) {
	var playlists []*models.Playlist
	if id != "" {
		p, err := a.store.Playlists.Get(id)
		if err != nil {
			return nil, err
		}
		playlists = []*models.Playlist{p}
	} else {
		var err error
		if playlists, err = a.store.Playlists.List(nil); err != nil {
			return nil, err
		}
	}

	reports := make([]formatter.Report, 0, len(playlists))
	for _, p := range playlists {
		tracks, err := a.store.Memberships.Tracks(p.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, formatter.Report{Playlist: p, Tracks: tracks})
	}
	return reports, nil
}

// Resolve looks up a catalog track in the media library and prints the chosen item.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	providerID := cmd.StringArg("provider")
	trackID := cmd.StringArg("id")
	if providerID == "" || trackID == "" {
		return fmt.Errorf("%w: provider and track id", shared.ErrMissingArgument)
	}

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireMedia(); err != nil {
		return err
	}

	provider, err := a.providers.Get(providerID)
	if err != nil {
		return err
	}
	track, err := provider.GetTrack(ctx, trackID)
	if err != nil {
		return fmt.Errorf("failed to fetch track: %w", err)
	}

	candidate, err := a.resolver.Resolve(ctx, *track)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"track": track, "candidate": candidate}, cmd.Bool("pretty"))
	}

	if candidate == nil {
		return r.writePlain("✗ No library item matches %s\n", track.Name)
	}
	r.writePlain("✓ %s\n", track.Name)
	r.writePlain("Item: %s (%s)\n", candidate.Item.ID, candidate.Item.Name)
	r.writePlain("Path: %s\n", candidate.Item.Path)
	r.writePlain("Method: %s\n", candidate.Method)
	r.writePlain("Score: %.1f\n", candidate.Score)
	if candidate.Method == models.MatchFingerprint {
		r.writePlain("Similarity: %.1f%%\n", candidate.Similarity)
	}
	return nil
}

// Package tasks runs the long background jobs that keep mirrored playlists and their tracks in
// line with the catalog and the media library.
//
// # Orchestration
//
// [Orchestrator.Run] wraps one run of a [Job]:
//
//  1. Try to take the job lock (<name>_lock) with the job's TTL. If another instance holds it the
//     run is SKIPPED and returns immediately without an error.
//  2. Enumerate the targets and process them one at a time. Each entity commits its own changes,
//     so a crash loses at most the entity in flight.
//  3. Entity errors are logged with a bounded diagnostic, counted and skipped over. An error
//     wrapping [shared.ErrStoreUnavailable], a failed enumeration or a cancelled context aborts
//     the run with state FAILED.
//  4. The lock is released on every path once acquired.
//
// Status is persisted through a [StatusStore] after every entity so callers can poll
// {processed, total, percent, failed}.
//
// # Jobs
//
//   - [DownloadJob] : download_missing_tracks
//   - [PlaylistUpdateJob] : check_for_playlist_updates
//   - [TrackStatusJob] : update_all_playlists_track_status
//   - [MediaServerIDJob] : update_media_server_ids, with a daily full pass gated by [FullUpdateGate]
//
// # Progress Reporting
//
// Runs emit [ProgressUpdate] values on an optional channel. Sends use select with default so
// a slow reader never blocks a job.
//
// # Scheduling
//
// [Worker] runs every registered job on its interval, one goroutine per job.
package tasks

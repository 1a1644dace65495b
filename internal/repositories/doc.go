// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// Repositories are bound either to the database or to an open transaction; [Store.Transaction]
// hands a transaction-bound [Store] to its callback so each job commits one entity at a time.
//
// Key Implementations:
//   - [TrackRepository] : catalog tracks keyed by (provider, provider track id)
//   - [PlaylistRepository] : mirrored playlists with cached counts and change tokens
//   - [MembershipRepository] : ordered playlist membership rows
//   - [JobStatusRepository] : last known state of each named job
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table counters in the sequences table.
package repositories

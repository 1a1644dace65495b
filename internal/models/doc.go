// Package models defines domain entities and persistence interfaces for the jellysync playlist mirror.
//
// The package contains three categories of types:
//
// 1. Data Transfer Objects (DTOs): normalized shapes returned by external collaborators
//   - [CatalogPlaylist], [CatalogTrack] : playlists and tracks from a catalog provider
//   - [LibraryItem] : an audio item found in the media server library
//
// 2. Persistent Entities: database-backed rows mutated by the jobs
//   - [Track] : a catalog track with its download state and media server link
//   - [Playlist] : a mirrored playlist with cached counts and a change token
//   - [Membership] : the ordered (playlist, track) association
//   - [JobStatus] : the last known state of a named background job
//
// 3. Transient values: [Candidate] is produced by identity resolution and never stored.
//
// Persistent entities implement [Model]. The [Repository] interface defines the CRUD and
// filter operations shared by every SQLite repository.
package models

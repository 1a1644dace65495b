// Package ui implements the watch terminal interface using bubbletea's Elm architecture.
//
// The TUI shows the scheduled jobs and the mirrored playlists:
//  1. [JobListView] : Job status, refreshed on a tick from the orchestrator
//  2. [PlaylistListView] : Mirrored playlists with their availability counts
//  3. [ConfirmView] : Confirm a manual run
//  4. [RunView] : Monitor real-time progress updates
//  5. [ResultView] : Display the run summary
//
// Manual runs go through the same orchestrator as the worker, so a run started while the job
// lock is held elsewhere ends as skipped. Progress flows through a channel and is read one
// update per command, keeping Update non-blocking.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, tab, esc, y/n, r, q) with contextual
// help displayed via charmbracelet/bubbles/help.
package ui

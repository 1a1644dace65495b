package resolver

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/quality"
	"github.com/desertthunder/jellysync/internal/shared"
	tu "github.com/desertthunder/jellysync/internal/testing"
)

func sequence(n int) []uint32 {
	fp := make([]uint32, n)
	for i := range fp {
		fp[i] = uint32(i+1) * 2654435761
	}
	return fp
}

func constant(n int, v uint32) []uint32 {
	fp := make([]uint32, n)
	for i := range fp {
		fp[i] = v
	}
	return fp
}

func newResolver(server *tu.MockMediaServer, printer Fingerprinter, opts Options) *Resolver {
	logger := shared.NewLogger(io.Discard)
	scorer := quality.NewScorer(quality.ScorerOpts{Logger: logger})
	return New(server, scorer, printer, opts, logger)
}

var catalogTrack = models.CatalogTrack{
	ID:         "sp1",
	Name:       "Don't Stop Me Now",
	Artists:    []string{"Queen"},
	PreviewURL: "https://p.scdn.co/mp3-preview/sp1",
}

func TestSearchQuery(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{"straight apostrophe", "Don't Stop Me Now", "t Stop Me Now"},
		{"curly apostrophe", "Don’t Stop Me Now", "t Stop Me Now"},
		{"grave and acute", "Rock `n´ Roll Suicide", "Roll Suicide"},
		{"no quotes", "Bohemian Rhapsody", "Bohemian Rhapsody"},
		{"first wins ties", "ab'cd", "ab"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchQuery(tt.in); got != tt.want {
				t.Errorf("SearchQuery(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	query := SearchQuery(catalogTrack.Name)

	t.Run("single result is accepted without comparison", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = []models.LibraryItem{{ID: "x", Name: "Something Else", Artists: []string{"Nobody"}}}

		c, err := newResolver(server, nil, DefaultOptions()).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil || c.Item.ID != "x" || c.Method != models.MatchExactSingleResult {
			t.Fatalf("expected fast path match, got %+v", c)
		}
		if len(server.Queries) != 1 || server.Queries[0] != query {
			t.Errorf("expected query %q, got %v", query, server.Queries)
		}
	})

	t.Run("single result is compared when fast path is off", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = []models.LibraryItem{{ID: "x", Name: "Something Else", Artists: []string{"Nobody"}}}

		c, err := newResolver(server, nil, Options{}).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c != nil {
			t.Errorf("expected no match, got %+v", c)
		}
	})

	t.Run("disjoint artists are rejected", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = []models.LibraryItem{
			{ID: "a", Name: "Don't Stop Me Now", Artists: []string{"McFly"}, AlbumArtists: []string{"Various Artists"}},
			{ID: "b", Name: "Don't Stop Me Now", Artists: []string{"The Vamps"}},
		}

		c, err := newResolver(server, nil, DefaultOptions()).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c != nil {
			t.Errorf("expected no match, got %+v", c)
		}
	})

	t.Run("album artists cover compilations", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = []models.LibraryItem{
			{ID: "a", Name: "don't stop me now", Artists: []string{"Queen", "Brian May"}, AlbumArtists: []string{"QUEEN"}},
			{ID: "b", Name: "Don't Stop Me Now (Live)", Artists: []string{"Queen"}},
		}

		c, err := newResolver(server, nil, DefaultOptions()).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil || c.Item.ID != "a" || c.Method != models.MatchMetadata {
			t.Errorf("expected album artist match, got %+v", c)
		}
	})

	t.Run("higher quality wins", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = []models.LibraryItem{
			{ID: "mp3", Name: "Don't Stop Me Now", Artists: []string{"Queen"}, Container: "mp3", RunTimeTicks: 1_800_000_000},
			{ID: "flac", Name: "Don't Stop Me Now", Artists: []string{"Queen"}, Container: "flac", RunTimeTicks: 1_800_000_000},
		}

		c, err := newResolver(server, nil, DefaultOptions()).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil || c.Item.ID != "flac" {
			t.Fatalf("expected flac candidate, got %+v", c)
		}
	})

	t.Run("ties keep the first candidate", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = []models.LibraryItem{
			{ID: "first", Name: "Don't Stop Me Now", Artists: []string{"Queen"}, Container: "mp3"},
			{ID: "second", Name: "Don't Stop Me Now", Artists: []string{"Queen"}, Container: "mp3"},
		}

		c, err := newResolver(server, nil, DefaultOptions()).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil || c.Item.ID != "first" {
			t.Errorf("expected first candidate, got %+v", c)
		}
	})

	t.Run("no results", func(t *testing.T) {
		c, err := newResolver(tu.NewMockMediaServer(), nil, DefaultOptions()).Resolve(ctx, catalogTrack)
		if err != nil || c != nil {
			t.Errorf("expected no match and no error, got %+v, %v", c, err)
		}
	})

	t.Run("search failure is an error", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.SearchErr = errors.New("connection refused")

		if _, err := newResolver(server, nil, DefaultOptions()).Resolve(ctx, catalogTrack); err == nil {
			t.Error("expected error")
		}
	})
}

func TestResolveFingerprint(t *testing.T) {
	ctx := context.Background()
	query := SearchQuery(catalogTrack.Name)
	opts := Options{SingleResultFastPath: true, FingerprintFallback: true, Threshold: 60}

	// Titles differ so metadata matching fails and the fallback runs.
	results := []models.LibraryItem{
		{ID: "other", Name: "Dont Stop Me Now (Remaster)", Artists: []string{"Queen", "Freddie Mercury"}, Path: "/music/other.mp3"},
		{ID: "real", Name: "Dont Stop Me Now", Artists: []string{"Queen"}, Path: "/music/real.flac"},
		{ID: "stranger", Name: "Dont Stop Me Now", Artists: []string{"Someone"}, Path: "/music/stranger.mp3"},
	}

	full := sequence(200)

	t.Run("accepts the matching recording", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = results
		printer := &tu.MockFingerprinter{Prints: map[string][]uint32{
			catalogTrack.PreviewURL: full[40:70],
			"/music/other.mp3":      constant(200, 0),
			"/music/real.flac":      full,
			"/music/stranger.mp3":   full,
		}}

		c, err := newResolver(server, printer, opts).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c == nil || c.Item.ID != "real" || c.Method != models.MatchFingerprint {
			t.Fatalf("expected fingerprint match on real, got %+v", c)
		}
		if c.Similarity != 100 {
			t.Errorf("expected similarity 100, got %v", c.Similarity)
		}
	})

	t.Run("rejects below threshold", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = results
		printer := &tu.MockFingerprinter{Prints: map[string][]uint32{
			catalogTrack.PreviewURL: constant(30, 0xFFFFFFFF),
			"/music/other.mp3":      constant(200, 0),
			"/music/real.flac":      constant(200, 0),
		}}

		c, err := newResolver(server, printer, opts).Resolve(ctx, catalogTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c != nil {
			t.Errorf("expected no match, got %+v", c)
		}
	})

	t.Run("no preview skips the fallback", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = results
		printer := &tu.MockFingerprinter{Err: errors.New("should not be called")}

		track := catalogTrack
		track.PreviewURL = ""
		c, err := newResolver(server, printer, opts).Resolve(ctx, track)
		if err != nil || c != nil {
			t.Errorf("expected no match and no error, got %+v, %v", c, err)
		}
	})

	t.Run("fingerprint failures mean no match", func(t *testing.T) {
		server := tu.NewMockMediaServer()
		server.Results[query] = results
		printer := &tu.MockFingerprinter{Err: shared.ErrFingerprintFailed}

		c, err := newResolver(server, printer, opts).Resolve(ctx, catalogTrack)
		if err != nil || c != nil {
			t.Errorf("expected no match and no error, got %+v, %v", c, err)
		}
	})
}

func TestRankByName(t *testing.T) {
	items := []models.LibraryItem{
		{ID: "miss", Name: "Completely Different"},
		{ID: "long", Name: "Song Title (2011 Remaster)"},
		{ID: "exact", Name: "Song Title"},
	}

	got := rankByName("Song Title", items)
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	want := []string{"exact", "long", "miss"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("rankByName() = %v, want %v", ids, want)
		}
	}
}

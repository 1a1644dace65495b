// Package resolver decides which file already in the media library is the same recording as a
// catalog track.
//
// A nil [models.Candidate] with a nil error means "no match" and is the signal to download.
// Errors are reserved for failures of the library search itself.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/fingerprint"
	"github.com/desertthunder/jellysync/internal/metrics"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// LibrarySearcher finds library items for a free-text query.
type LibrarySearcher interface {
	SearchTracks(ctx context.Context, query string) ([]models.LibraryItem, error)
}

// Fingerprinter produces acoustic fingerprints from a remote preview or a local file.
type Fingerprinter interface {
	FingerprintURL(ctx context.Context, url string) ([]uint32, error)
	FingerprintFile(ctx context.Context, path string) ([]uint32, error)
}

// Scorer ranks library items by quality.
type Scorer interface {
	Score(ctx context.Context, item models.LibraryItem) float64
}

// Options tune resolution. The zero value disables both the fast path and the fingerprint fallback.
type Options struct {
	SingleResultFastPath bool
	FingerprintFallback  bool
	Threshold            float64 // minimum similarity percentage, exclusive
}

// DefaultOptions matches the behaviour of the configuration defaults.
func DefaultOptions() Options {
	return Options{
		SingleResultFastPath: true,
		FingerprintFallback:  false,
		Threshold:            fingerprint.DefaultThreshold,
	}
}

// Resolver matches catalog tracks against library search results.
type Resolver struct {
	library LibrarySearcher
	scorer  Scorer
	printer Fingerprinter
	opts    Options
	logger  *log.Logger
}

// New creates a Resolver. printer may be nil when the fingerprint fallback is disabled.
func New(library LibrarySearcher, scorer Scorer, printer Fingerprinter, opts Options, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = fingerprint.DefaultThreshold
	}
	return &Resolver{library: library, scorer: scorer, printer: printer, opts: opts, logger: logger}
}

// SearchQuery is the library query used for a track name.
func SearchQuery(name string) string {
	return shared.LongestSafeSubstring(name)
}

// Resolve returns the best library match for track, or nil when there is none.
func (r *Resolver) Resolve(ctx context.Context, track models.CatalogTrack) (*models.Candidate, error) {
	query := SearchQuery(track.Name)
	if query == "" {
		r.logger.Debug("empty search query", "track", track.ID)
		return nil, nil
	}

	items, err := r.library.SearchTracks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("library search for %q failed: %w", query, err)
	}

	logger := r.logger.With("track", track.ID, "query", query, "results", len(items))

	if len(items) == 0 {
		logger.Debug("no search results")
		return nil, nil
	}

	if r.opts.SingleResultFastPath && len(items) == 1 {
		c := &models.Candidate{Item: items[0], Method: models.MatchExactSingleResult}
		logger.Debug("accepted single search result", "item", c.Item.ID)
		metrics.IncResolution(string(c.Method))
		return c, nil
	}

	if c := r.bestMetadataMatch(ctx, track, items); c != nil {
		logger.Debug("metadata match", "item", c.Item.ID, "score", c.Score)
		metrics.IncResolution(string(c.Method))
		return c, nil
	}

	if r.opts.FingerprintFallback && r.printer != nil && track.PreviewURL != "" {
		if c := r.bestFingerprintMatch(ctx, track, items); c != nil {
			logger.Debug("fingerprint match", "item", c.Item.ID, "similarity", c.Similarity)
			metrics.IncResolution(string(c.Method))
			return c, nil
		}
	}

	logger.Debug("no match")
	metrics.IncResolution("none")
	return nil, nil
}

// MetadataMatches reports whether item has the track's title and the same artists.
//
// The artist sets must be equal, or the item's album artists must equal the track's artists.
func MetadataMatches(track models.CatalogTrack, item models.LibraryItem) bool {
	if shared.NormalizeName(item.Name) != shared.NormalizeName(track.Name) {
		return false
	}

	artists := shared.NormalizeSet(track.Artists)
	if shared.SetsEqual(shared.NormalizeSet(item.Artists), artists) {
		return true
	}
	return shared.SetsEqual(shared.NormalizeSet(item.AlbumArtists), artists)
}

func (r *Resolver) bestMetadataMatch(ctx context.Context, track models.CatalogTrack, items []models.LibraryItem) *models.Candidate {
	var best *models.Candidate
	for _, item := range items {
		if !MetadataMatches(track, item) {
			continue
		}
		score := r.scorer.Score(ctx, item)
		if best == nil || score > best.Score {
			best = &models.Candidate{Item: item, Score: score, Method: models.MatchMetadata}
		}
	}
	return best
}

func (r *Resolver) bestFingerprintMatch(ctx context.Context, track models.CatalogTrack, items []models.LibraryItem) *models.Candidate {
	preview, err := r.printer.FingerprintURL(ctx, track.PreviewURL)
	if err != nil {
		r.logger.Warn("failed to fingerprint preview", "track", track.ID, "error", err)
		return nil
	}

	artists := shared.NormalizeSet(track.Artists)

	var best *models.Candidate
	for _, item := range rankByName(track.Name, items) {
		if item.Path == "" || !shared.SetsOverlap(shared.NormalizeSet(item.Artists), artists) {
			continue
		}

		full, err := r.printer.FingerprintFile(ctx, item.Path)
		if err != nil {
			r.logger.Warn("failed to fingerprint library file", "path", item.Path, "error", err)
			continue
		}

		similarity, offset := fingerprint.Similarity(full, preview)
		r.logger.Debug("compared fingerprints", "item", item.ID, "similarity", similarity, "offset", offset)

		if similarity <= r.opts.Threshold {
			continue
		}
		if best == nil || similarity > best.Similarity {
			best = &models.Candidate{
				Item:       item,
				Score:      r.scorer.Score(ctx, item),
				Method:     models.MatchFingerprint,
				Similarity: similarity,
			}
		}
	}
	return best
}

// rankByName orders items by fuzzy closeness of their names to name. Items whose names do not
// fuzzy-match keep their search order after the ones that do.
func rankByName(name string, items []models.LibraryItem) []models.LibraryItem {
	type ranked struct {
		item     models.LibraryItem
		distance int
	}

	rs := make([]ranked, len(items))
	for i, item := range items {
		rs[i] = ranked{item: item, distance: fuzzy.RankMatchNormalizedFold(name, item.Name)}
	}

	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i].distance, rs[j].distance
		switch {
		case a < 0:
			return false
		case b < 0:
			return true
		}
		return a < b
	})

	out := make([]models.LibraryItem, len(rs))
	for i, r := range rs {
		out[i] = r.item
	}
	return out
}

// Package quality ranks library files so identity resolution can break ties between matches.
//
// Scores are additive and only their relative order matters.
package quality

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

// Container bonuses, strictly decreasing from lossless to lossy-low.
const (
	FLACBonus   = 100.0
	WAVBonus    = 50.0
	MP3Bonus    = 10.0
	AACBonus    = 5.0
	LyricsBonus = 10.0

	// ticksPerPoint converts media server runtime ticks into a mild duration tie-break.
	ticksPerPoint = 1e6
)

var containerBonus = map[string]float64{
	"flac": FLACBonus,
	"wav":  WAVBonus,
	"mp3":  MP3Bonus,
	"aac":  AACBonus,
}

// Scorer computes quality scores, optionally probing the file for a deep-analysis bonus.
type Scorer struct {
	prober  Prober
	deep    bool
	timeout time.Duration
	logger  *log.Logger
}

// ScorerOpts configures a [Scorer]. Deep analysis is off unless Deep is set and a Prober is given.
type ScorerOpts struct {
	Prober  Prober
	Deep    bool
	Timeout time.Duration
	Logger  *log.Logger
}

// NewScorer creates a Scorer.
func NewScorer(opts ScorerOpts) *Scorer {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Scorer{
		prober:  opts.Prober,
		deep:    opts.Deep && opts.Prober != nil,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Score returns the quality score of item. Probe failures contribute zero.
func (s *Scorer) Score(ctx context.Context, item models.LibraryItem) float64 {
	score := containerBonus[strings.ToLower(strings.TrimSpace(item.Container))]

	if item.HasLyrics {
		score += LyricsBonus
	}

	score += float64(item.RunTimeTicks) / ticksPerPoint

	if s.deep {
		score += s.deepBonus(ctx, item)
	}
	return score
}

func (s *Scorer) deepBonus(ctx context.Context, item models.LibraryItem) float64 {
	if item.Path == "" {
		s.logger.Warn("no file path, skipping deep analysis", "item", item.Name)
		return 0
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profile, err := s.prober.Probe(pctx, item.Path)
	if err != nil {
		s.logger.Warn("probe failed, deep analysis contributes nothing", "path", item.Path, "error", err)
		return 0
	}
	return profile.Bonus()
}

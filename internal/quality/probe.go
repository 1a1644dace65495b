package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/dhowden/tag"
)

// FFprobe constants
const (
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeStream       = "a:0"
	FFprobeShowEntries  = "stream=bit_rate,sample_rate,channels"
	FFprobeOutputFormat = "json"
)

// ErrProberUnavailable marks a prober that could not run at all, e.g. a missing executable.
// Only this error lets a [ChainProber] move on to its next prober.
var ErrProberUnavailable = errors.New("prober unavailable")

// AudioProfile is the result of probing an audio file.
type AudioProfile struct {
	Path       string
	Bitrate    int // kbps
	SampleRate int // Hz
	Channels   int
}

// Bonus is bitrate(kbps) + sample rate(kHz, truncated) + channels*10.
func (p *AudioProfile) Bonus() float64 {
	return float64(p.Bitrate + p.SampleRate/1000 + p.Channels*10)
}

// Prober extracts an [AudioProfile] from a file.
type Prober interface {
	Probe(ctx context.Context, path string) (*AudioProfile, error)
}

// FFprobe probes files with the ffprobe executable.
type FFprobe struct {
	run shared.CommandRunner
}

// NewFFprobe creates an FFprobe. A nil runner executes the real binary.
func NewFFprobe(run shared.CommandRunner) *FFprobe {
	if run == nil {
		run = shared.ExecCommand
	}
	return &FFprobe{run: run}
}

type ffprobeOutput struct {
	Streams []struct {
		BitRate    string `json:"bit_rate"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		BitRate string `json:"bit_rate"`
	} `json:"format"`
}

// Probe reads the first audio stream. The stream bitrate falls back to the container bitrate.
func (f *FFprobe) Probe(ctx context.Context, path string) (*AudioProfile, error) {
	args := []string{
		"-v", FFprobeLogLevel,
		"-select_streams", FFprobeStream,
		"-show_entries", FFprobeShowEntries,
		"-show_format",
		"-of", FFprobeOutputFormat,
		path,
	}

	out, err := f.run(ctx, FFprobeCommand, args...)
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w: %v", shared.ErrProbeFailed, ErrProberUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProbeFailed, err)
	}

	var data ffprobeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("%w: failed to decode ffprobe output: %v", shared.ErrProbeFailed, err)
	}
	if len(data.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio stream in %s", shared.ErrProbeFailed, path)
	}

	stream := data.Streams[0]
	bitrate := atoi(stream.BitRate) / 1000
	if bitrate == 0 {
		bitrate = atoi(data.Format.BitRate) / 1000
	}

	return &AudioProfile{
		Path:       path,
		Bitrate:    bitrate,
		SampleRate: atoi(stream.SampleRate),
		Channels:   stream.Channels,
	}, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// TagProber estimates a profile from embedded tags when ffprobe is unavailable.
// Bitrates are codec defaults; FLAC assumes 16-bit samples. A file without readable tags is
// a probe failure.
type TagProber struct{}

func (TagProber) Probe(_ context.Context, path string) (*AudioProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrProbeFailed, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%w: no readable tags in %s: %v", shared.ErrProbeFailed, path, err)
	}

	switch m.FileType() {
	case tag.MP3:
		return &AudioProfile{Path: path, Bitrate: 192, SampleRate: 44100, Channels: 2}, nil
	case tag.M4A, tag.M4B, tag.M4P, tag.ALAC:
		return &AudioProfile{Path: path, Bitrate: 128, SampleRate: 44100, Channels: 2}, nil
	case tag.FLAC:
		return &AudioProfile{Path: path, Bitrate: 44100 * 16 * 2 / 1000, SampleRate: 44100, Channels: 2}, nil
	case tag.OGG:
		return &AudioProfile{Path: path, Bitrate: 160, SampleRate: 44100, Channels: 2}, nil
	}
	return nil, fmt.Errorf("%w: unrecognized audio file %s", shared.ErrProbeFailed, path)
}

// ChainProber returns the first successful profile from its probers.
//
// The next prober is only tried when the current one is [ErrProberUnavailable]. A prober that
// ran and rejected the file ends the chain, so an undecodable file never gets an estimate.
type ChainProber []Prober

func (c ChainProber) Probe(ctx context.Context, path string) (*AudioProfile, error) {
	var errs []error
	for _, p := range c {
		profile, err := p.Probe(ctx, path)
		if err == nil {
			return profile, nil
		}
		errs = append(errs, err)
		if !errors.Is(err, ErrProberUnavailable) {
			return nil, errors.Join(errs...)
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no probers configured", shared.ErrProbeFailed)
	}
	return nil, errors.Join(errs...)
}

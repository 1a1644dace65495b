package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/jellysync/internal/shared"
)

// Executable and conversion constants
const (
	FFmpegCommand     = "ffmpeg"
	FpcalcCommand     = "fpcalc"
	WaveCodec         = "pcm_s16le"
	WaveSampleRate    = "44100"
	WaveChannels      = "2"
	DefaultPreviewTTL = 10 * time.Second
	DefaultToolTTL    = 60 * time.Second
	previewPattern    = "jellysync-preview-*"
	wavePattern       = "jellysync-wave-*.wav"
)

// Chromaprint downloads previews, normalizes audio to a fixed PCM waveform with ffmpeg and
// fingerprints it with fpcalc. Every external step is bounded by its own timeout.
type Chromaprint struct {
	httpClient     *http.Client
	run            shared.CommandRunner
	previewTimeout time.Duration
	toolTimeout    time.Duration
	tmpDir         string
}

// ChromaprintOpts configures a [Chromaprint]. Zero values select defaults.
type ChromaprintOpts struct {
	HTTPClient     *http.Client
	Runner         shared.CommandRunner
	PreviewTimeout time.Duration
	ToolTimeout    time.Duration
	TempDir        string
}

// NewChromaprint creates a Chromaprint fingerprinter.
func NewChromaprint(opts ChromaprintOpts) *Chromaprint {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Runner == nil {
		opts.Runner = shared.ExecCommand
	}
	if opts.PreviewTimeout <= 0 {
		opts.PreviewTimeout = DefaultPreviewTTL
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTTL
	}
	return &Chromaprint{
		httpClient:     opts.HTTPClient,
		run:            opts.Runner,
		previewTimeout: opts.PreviewTimeout,
		toolTimeout:    opts.ToolTimeout,
		tmpDir:         opts.TempDir,
	}
}

// FingerprintURL downloads a preview clip and fingerprints it.
func (c *Chromaprint) FingerprintURL(ctx context.Context, url string) ([]uint32, error) {
	path, err := c.download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	return c.FingerprintFile(ctx, path)
}

// FingerprintFile normalizes a local audio file and fingerprints it.
func (c *Chromaprint) FingerprintFile(ctx context.Context, path string) ([]uint32, error) {
	wav, err := c.normalize(ctx, path)
	if err != nil {
		return nil, err
	}
	defer os.Remove(wav)

	tctx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	out, err := c.run(tctx, FpcalcCommand, "-raw", "-json", wav)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFingerprintFailed, err)
	}

	var result struct {
		Duration    float64  `json:"duration"`
		Fingerprint []uint32 `json:"fingerprint"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode fpcalc output: %v", shared.ErrFingerprintFailed, err)
	}
	if len(result.Fingerprint) == 0 {
		return nil, fmt.Errorf("%w: empty fingerprint for %s", shared.ErrFingerprintFailed, path)
	}
	return result.Fingerprint, nil
}

// normalize converts input to 16-bit 44.1kHz stereo PCM and returns the temporary wav path.
func (c *Chromaprint) normalize(ctx context.Context, input string) (string, error) {
	f, err := os.CreateTemp(c.tmpDir, wavePattern)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %v", shared.ErrFingerprintFailed, err)
	}
	wav := f.Name()
	f.Close()

	tctx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	args := []string{"-y", "-i", input, "-acodec", WaveCodec, "-ar", WaveSampleRate, "-ac", WaveChannels, wav}
	if _, err := c.run(tctx, FFmpegCommand, args...); err != nil {
		os.Remove(wav)
		return "", fmt.Errorf("%w: audio conversion failed: %v", shared.ErrFingerprintFailed, err)
	}
	return wav, nil
}

func (c *Chromaprint) download(ctx context.Context, url string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, c.previewTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", shared.ErrFingerprintFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: preview download failed: %v", shared.ErrFingerprintFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: preview download returned status %d", shared.ErrFingerprintFailed, resp.StatusCode)
	}

	f, err := os.CreateTemp(c.tmpDir, previewPattern+filepath.Ext(req.URL.Path))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp file: %v", shared.ErrFingerprintFailed, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: failed to save preview: %v", shared.ErrFingerprintFailed, err)
	}
	return f.Name(), nil
}

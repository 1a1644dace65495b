// Package download invokes the external download tool for tracks missing from the library.
//
// The tool writes to a deterministic path derived from the provider track id, so a file already
// present at that path counts as downloaded without running the tool again.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
)

const (
	// TrackIDPlaceholder is replaced with the provider track id in the output template.
	TrackIDPlaceholder = "{track-id}"
	FileExtension      = ".mp3"
	DefaultTool        = "spotdl"
	DefaultTimeout     = 90 * time.Second

	spotifyTrackURL = "https://open.spotify.com/track/"
	spotifyProvider = "SpotifyPlaylists"
)

// Failure is a failed tool run. Diagnostic is bounded to [models.MaxDiagnosticLength] and is
// meant to be stored on the track.
type Failure struct {
	Diagnostic string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%v: %s", shared.ErrDownloadFailed, f.Diagnostic)
}

func (f *Failure) Unwrap() error { return shared.ErrDownloadFailed }

// Opts configures a [Downloader].
type Opts struct {
	Tool           string
	OutputTemplate string
	Timeout        time.Duration
	CookieFile     string
	ClientID       string
	ClientSecret   string
	Runner         shared.CommandRunner
	Logger         *log.Logger
}

// Downloader runs the download tool once per track.
type Downloader struct {
	tool         string
	template     string
	timeout      time.Duration
	cookieFile   string
	clientID     string
	clientSecret string
	run          shared.CommandRunner
	logger       *log.Logger
}

// New creates a Downloader.
func New(opts Opts) *Downloader {
	if opts.Tool == "" {
		opts.Tool = DefaultTool
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Runner == nil {
		opts.Runner = shared.ExecCommand
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Downloader{
		tool:         opts.Tool,
		template:     opts.OutputTemplate,
		timeout:      opts.Timeout,
		cookieFile:   opts.CookieFile,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		run:          opts.Runner,
		logger:       opts.Logger,
	}
}

// OutputPath is the file the tool produces for a provider track id.
func (d *Downloader) OutputPath(providerTrackID string) string {
	return strings.ReplaceAll(d.template, TrackIDPlaceholder, providerTrackID) + FileExtension
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SourceURL is the URL handed to the tool for track.
func SourceURL(track *models.Track) (string, error) {
	if track.Provider == spotifyProvider {
		return spotifyTrackURL + track.ProviderTrackID, nil
	}
	if strings.HasPrefix(track.ProviderURI, "https://") || strings.HasPrefix(track.ProviderURI, "http://") {
		return track.ProviderURI, nil
	}
	return "", fmt.Errorf("%w: no downloadable url for %s track %s", shared.ErrInvalidInput, track.Provider, track.ProviderTrackID)
}

// Download runs the tool for track and returns the path of the produced file.
//
// A non-zero exit, a timeout, or a zero exit without the expected file yields a [*Failure].
func (d *Downloader) Download(ctx context.Context, track *models.Track) (string, error) {
	source, err := SourceURL(track)
	if err != nil {
		return "", &Failure{Diagnostic: err.Error()}
	}

	path := d.OutputPath(track.ProviderTrackID)
	args := []string{"download", source, "--output", d.template}
	if d.clientID != "" && d.clientSecret != "" {
		args = append(args, "--client-id", d.clientID, "--client-secret", d.clientSecret)
	}
	if d.cookieFile != "" && Exists(d.cookieFile) {
		d.logger.Debug("using cookie file", "path", d.cookieFile)
		args = append(args, "--cookie-file", d.cookieFile)
	}

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.logger.Info("downloading track", "track", track.ProviderTrackID, "name", track.Name, "timeout", d.timeout)

	out, err := d.run(tctx, d.tool, args...)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return "", d.failure(fmt.Sprintf("%s timed out after %s", d.tool, d.timeout), out)
		}
		return "", d.failure(err.Error(), out)
	}

	if !Exists(path) {
		return "", d.failure(fmt.Sprintf("%s exited without producing %s", d.tool, path), out)
	}
	return path, nil
}

// failure prefers the tool's own output as the diagnostic.
func (d *Downloader) failure(reason string, out []byte) *Failure {
	diagnostic := strings.TrimSpace(string(out))
	if diagnostic == "" {
		diagnostic = reason
	} else {
		diagnostic = reason + ": " + diagnostic
	}
	return &Failure{Diagnostic: shared.Truncate(diagnostic, models.MaxDiagnosticLength)}
}

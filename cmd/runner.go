package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/lock"
	"github.com/desertthunder/jellysync/internal/services"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Providers, Media and LockStore are normally built from the config when a command opens the
// application; tests inject them through [RunnerOpts].
type Runner struct {
	config    *shared.Config
	loaded    bool
	logger    *log.Logger
	output    io.Writer
	clock     shared.Clock
	providers *services.Registry
	media     services.MediaServer
	lockStore lock.Store
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *shared.Config
	Logger    *log.Logger
	Output    io.Writer
	Clock     shared.Clock
	Providers *services.Registry
	Media     services.MediaServer
	LockStore lock.Store
}

// NewRunner creates a new Runner with the provided configuration.
//
// A Runner created with a Config skips loading the config file in [Runner.Before].
func NewRunner(opts RunnerOpts) *Runner {
	loaded := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = shared.RealClock{}
	}

	return &Runner{
		config:    opts.Config,
		loaded:    loaded,
		logger:    opts.Logger,
		output:    opts.Output,
		clock:     opts.Clock,
		providers: opts.Providers,
		media:     opts.Media,
		lockStore: opts.LockStore,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, jobsCommand, workerCommand, serveCommand, playlistsCommand, resolveCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the config file named by --config, applies environment overrides, validates the
// result and sets the log level. A missing file falls back to the defaults.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if !r.loaded {
		path := cmd.String("config")
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
		r.config.ApplyEnv(nil)
		r.loaded = true
	}

	if err := r.config.Validate(); err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Log.Level))
	return ctx, nil
}

// SetLogger replaces the logger, e.g. to keep log lines out of a full-screen TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jellysync/internal/server"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/desertthunder/jellysync/internal/tasks"
	"github.com/desertthunder/jellysync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Serve exposes job status, manual triggers, health and metrics over HTTP. With --worker the
// periodic worker runs in the same process.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	host, port := r.config.Server.Host, r.config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	jobs := server.NewJobsHandler(ctx, a.orch, r.logger)
	defer jobs.Wait()
	srv := server.New(addr, server.NewRouter(jobs, server.NewHealthHandler(a.store), r.logger))

	if cmd.Bool("worker") {
		worker := tasks.NewWorker(a.orch, tasks.Intervals(r.config), r.logger)
		go func() {
			if err := worker.Run(ctx); err != nil {
				r.logger.Error("worker stopped", "error", err)
			}
		}()
	}

	return server.ListenAndServe(ctx, srv, r.logger)
}

// Watch opens the job status TUI. Log lines go to --log-file so they do not tear the screen.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return err
	}
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	a, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := ui.NewModel(ctx, a.orch, a.store.Playlists, cmd.Duration("refresh"))
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

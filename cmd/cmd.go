// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the database",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recent migration",
			},
		},
		Action: r.Setup,
	}
}

// jobsCommand handles manual job runs and status
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and run the sync jobs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List jobs with their lock, TTL and interval",
				Action: r.JobsList,
			},
			{
				Name:  "status",
				Usage: "Show the last known status of every job, or of one",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.JobsStatus,
			},
			{
				Name:  "run",
				Usage: "Run a job once in the foreground",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Show log output instead of only errors",
					},
				},
				Action: r.JobsRun,
			},
		},
	}
}

func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run every job on its configured interval",
		Action: r.Worker,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve job status, manual triggers and metrics over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:  "worker",
				Usage: "Also run the periodic worker",
			},
		},
		Action: r.Serve,
	}
}

// playlistsCommand handles mirrored playlists
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Manage mirrored playlists",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Mirror a catalog playlist into the media server",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "provider"},
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistsAdd,
			},
			{
				Name:  "list",
				Usage: "List mirrored playlists with their availability",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Only list playlists of this provider",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.PlaylistsList,
			},
			{
				Name:  "report",
				Usage: "Write availability reports for one or all playlists",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, csv, md)",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file, or directory for md",
					},
				},
				Action: r.PlaylistsReport,
			},
			{
				Name:  "missing",
				Usage: "List the tracks of a playlist that are not available yet",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistsMissing,
			},
		},
	}
}

func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Find the library item holding a catalog track",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "provider"},
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Resolve,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Interactive job status and playlist view",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "Status refresh interval",
				Value: 2 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "File receiving log output while the TUI is open",
				Value: "./tmp/jellysync-watch.log",
			},
		},
		Action: r.Watch,
	}
}

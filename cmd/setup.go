package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes a config file from the template when none exists, then initializes the database
// and runs migrations. With --rollback it reverts the most recent migration instead.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Created %s\n", configPath)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back last migration")
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
	} else {
		r.logger.Info("running database migrations")
		if err := shared.RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	version, dirty, err := shared.MigrationVersion(db)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty, fix the database and rerun setup", version)
	}

	r.writePlain("✓ Database ready: %s (schema version %d)\n", r.config.Database.Path, version)
	if !cmd.Bool("rollback") {
		r.writePlainln("Next steps:")
		r.writePlain("1. Set [credentials.spotify] and [media_server] in %s\n", configPath)
		r.writePlain("2. Run 'jellysync playlists add SpotifyPlaylists <playlist id>'\n")
		r.writePlain("3. Run 'jellysync worker' to keep playlists in sync\n")
	}
	return nil
}

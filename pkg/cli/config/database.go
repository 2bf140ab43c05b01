package config

import (
	"context"

	"github.com/m-mizutani/refhook/pkg/infra/db"
	"github.com/urfave/cli/v3"
)

// Database holds SQLite configuration
type Database struct {
	Path string
}

// Flags returns CLI flags for database configuration
func (c *Database) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "SQLite database file (:memory: for a throwaway database)",
			Value:       "refhook.db",
			Destination: &c.Path,
			Sources:     cli.EnvVars("REFHOOK_DB_PATH"),
		},
	}
}

// Configure opens the database and bootstraps its schema
func (c *Database) Configure(ctx context.Context) (*db.Client, error) {
	return db.Open(ctx, c.Path)
}

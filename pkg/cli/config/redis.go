package config

import (
	"context"

	"github.com/m-mizutani/refhook/pkg/infra/redis"
	"github.com/urfave/cli/v3"
)

// Redis holds job queue and cache configuration
type Redis struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Flags returns CLI flags for Redis configuration
func (c *Redis) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address",
			Value:       "localhost:6379",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("REFHOOK_REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:        "redis-username",
			Usage:       "Redis ACL user",
			Destination: &c.Username,
			Sources:     cli.EnvVars("REFHOOK_REDIS_USERNAME"),
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Destination: &c.Password,
			Sources:     cli.EnvVars("REFHOOK_REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Destination: &c.DB,
			Sources:     cli.EnvVars("REFHOOK_REDIS_DB"),
		},
		&cli.StringFlag{
			Name:        "redis-prefix",
			Usage:       "Key prefix of every Redis key",
			Value:       "refhook:",
			Destination: &c.Prefix,
			Sources:     cli.EnvVars("REFHOOK_REDIS_PREFIX"),
		},
	}
}

// Configure connects to Redis
func (c *Redis) Configure(ctx context.Context) (*redis.Client, error) {
	return redis.New(ctx, redis.Config{
		Addr:     c.Addr,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
		Prefix:   c.Prefix,
	})
}

package config

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	refsentry "github.com/m-mizutani/refhook/pkg/infra/sentry"
	"github.com/urfave/cli/v3"
)

const flushTimeout = 2 * time.Second

// Sentry holds error tracking configuration
type Sentry struct {
	DSN         string
	Environment string
}

// Flags returns CLI flags for Sentry configuration
func (c *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Usage:       "Sentry DSN. Errors are only logged when empty.",
			Destination: &c.DSN,
			Sources:     cli.EnvVars("REFHOOK_SENTRY_DSN"),
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Usage:       "Sentry environment",
			Destination: &c.Environment,
			Sources:     cli.EnvVars("REFHOOK_SENTRY_ENV"),
		},
	}
}

// Configure returns the error tracker and a flush function
func (c *Sentry) Configure() (interfaces.ErrorTracker, func(), error) {
	if c.DSN == "" {
		return refsentry.Nop{}, func() {}, nil
	}

	tracker, err := refsentry.New(sentry.ClientOptions{
		Dsn:         c.DSN,
		Environment: c.Environment,
	})
	if err != nil {
		return nil, nil, err
	}
	return tracker, func() { tracker.Flush(flushTimeout) }, nil
}

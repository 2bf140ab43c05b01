package config

import (
	"time"

	"github.com/m-mizutani/refhook/pkg/controller/worker"
	"github.com/urfave/cli/v3"
)

// Worker holds job worker configuration
type Worker struct {
	ID          string
	Concurrency int
	Rate        float64
	MaxRetries  int
	RetryDelay  time.Duration
}

// Flags returns CLI flags for the job worker
func (c *Worker) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "worker-id",
			Usage:       "Stable worker name; unfinished jobs of the same name are resumed on start (default: hostname)",
			Destination: &c.ID,
			Sources:     cli.EnvVars("REFHOOK_WORKER_ID"),
		},
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Number of jobs run at once",
			Value:       worker.DefaultConcurrency,
			Destination: &c.Concurrency,
			Sources:     cli.EnvVars("REFHOOK_WORKER_CONCURRENCY"),
		},
		&cli.FloatFlag{
			Name:        "rate",
			Usage:       "Maximum jobs started per second (0 for unlimited)",
			Destination: &c.Rate,
			Sources:     cli.EnvVars("REFHOOK_WORKER_RATE"),
		},
		&cli.IntFlag{
			Name:        "max-retries",
			Usage:       "Retries of a failing job before it is dropped",
			Value:       worker.DefaultMaxRetries,
			Destination: &c.MaxRetries,
			Sources:     cli.EnvVars("REFHOOK_WORKER_MAX_RETRIES"),
		},
		&cli.DurationFlag{
			Name:        "retry-delay",
			Usage:       "Delay before the first retry; doubled on each attempt",
			Value:       worker.DefaultRetryBaseDelay,
			Destination: &c.RetryDelay,
			Sources:     cli.EnvVars("REFHOOK_WORKER_RETRY_DELAY"),
		},
	}
}

// Options converts the configuration into worker options
func (c *Worker) Options() []worker.Option {
	burst := int(c.Rate)
	return []worker.Option{
		worker.WithID(c.ID),
		worker.WithConcurrency(max(c.Concurrency, 1)),
		worker.WithRate(c.Rate, burst),
		worker.WithMaxRetries(c.MaxRetries),
		worker.WithRetryBaseDelay(c.RetryDelay),
	}
}

package cli

import (
	"context"
	"os/signal"
	"slices"
	"syscall"

	"github.com/m-mizutani/refhook/pkg/cli/config"
	"github.com/m-mizutani/refhook/pkg/controller/worker"
	"github.com/urfave/cli/v3"
)

func cmdWorker() *cli.Command {
	var (
		workerCfg  config.Worker
		runtimeCfg runtimeConfig
	)

	return &cli.Command{
		Name:    "worker",
		Aliases: []string{"w"},
		Usage:   "Run queued jobs (hooks, commit processing, mirrors, housekeeping)",
		Flags:   slices.Concat(workerCfg.Flags(), runtimeCfg.Flags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := runtimeCfg.build(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()

			opts := append(workerCfg.Options(), worker.WithErrorTracker(rt.tracker))
			return worker.New(rt.redis, rt.uc, opts...).Run(ctx)
		},
	}
}

package cli

import (
	"context"
	"slices"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/cli/config"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/infra/db"
	"github.com/m-mizutani/refhook/pkg/infra/jira"
	"github.com/m-mizutani/refhook/pkg/infra/redis"
	"github.com/m-mizutani/refhook/pkg/infra/slack"
	"github.com/m-mizutani/refhook/pkg/infra/webhook"
	"github.com/m-mizutani/refhook/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// runtimeConfig gathers the configuration every processing command needs
type runtimeConfig struct {
	file     config.File
	database config.Database
	redis    config.Redis
	git      config.Git
	sentry   config.Sentry
}

func (c *runtimeConfig) Flags() []cli.Flag {
	return slices.Concat(
		c.file.Flags(),
		c.database.Flags(),
		c.redis.Flags(),
		c.git.Flags(),
		c.sentry.Flags(),
	)
}

// runtime holds the wired infrastructure and the use case
type runtime struct {
	settings *config.Settings
	redis    *redis.Client
	tracker  interfaces.ErrorTracker
	uc       *usecase.UseCase
	closers  []func()
}

func (c *runtimeConfig) build(ctx context.Context, cmd *cli.Command) (*runtime, error) {
	settings, err := c.file.Load(cmd)
	if err != nil {
		return nil, err
	}

	rt := &runtime{settings: settings}

	tracker, flush, err := c.sentry.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure error tracker")
	}
	rt.tracker = tracker
	rt.closers = append(rt.closers, flush)

	dbClient, err := c.database.Configure(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		if err := dbClient.Close(); err != nil {
			ctxlog.From(ctx).Warn("failed to close database", "error", err)
		}
	})

	redisClient, err := c.redis.Configure(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.redis = redisClient
	rt.closers = append(rt.closers, func() {
		if err := redisClient.Close(); err != nil {
			ctxlog.From(ctx).Warn("failed to close redis", "error", err)
		}
	})

	opts := append(settings.UseCaseOptions(),
		usecase.WithLease(redisClient),
		usecase.WithCounter(redisClient),
		usecase.WithFileTypeCache(redisClient),
		usecase.WithErrorTracker(tracker),
		usecase.WithHookSender(webhook.New()),
		usecase.WithJiraClient(jira.New()),
		usecase.WithChatNotifier(slack.New()),
	)
	rt.uc = usecase.New(dbClient, c.git.Configure(), redisClient, db.NewPipelineCreator(dbClient), opts...)

	ctxlog.From(ctx).Debug("runtime configured",
		"db_path", c.database.Path,
		"redis_addr", c.redis.Addr,
		"system_hooks", len(settings.SystemHooks),
		"limits", settings.Limits,
	)
	return rt, nil
}

// Close releases resources in reverse order of acquisition
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

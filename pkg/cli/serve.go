package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/cli/config"
	controller "github.com/m-mizutani/refhook/pkg/controller/http"
	"github.com/m-mizutani/refhook/pkg/utils/async"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		serverCfg  config.Server
		githubCfg  config.GitHub
		runtimeCfg runtimeConfig
	)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server receiving post-receive notifications",
		Flags:   slices.Concat(serverCfg.Flags(), githubCfg.Flags(), runtimeCfg.Flags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			rt, err := runtimeCfg.build(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()

			group := async.NewGroup(async.WithErrorHandler(func(ctx context.Context, err error) {
				rt.tracker.Report(ctx, err, map[string]string{"handler": "post_receive"})
			}))

			server, err := controller.NewServer(
				ctx,
				rt.uc,
				controller.WithAsyncGroup(group),
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(githubCfg.WebhookSecret),
				controller.WithInternalSecret([]byte(serverCfg.InternalSecret)),
				controller.WithGitHubRepositories(rt.settings.GitHubRepositories),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			if serverCfg.InternalSecret == "" {
				logger.Warn("internal API secret is empty, post_receive endpoint is disabled")
			}

			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}
			if err := group.Wait(shutdownCtx); err != nil {
				logger.Warn("pushes still in progress at shutdown", "error", err)
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}

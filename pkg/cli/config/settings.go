package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"
	githubctrl "github.com/m-mizutani/refhook/pkg/controller/github"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/usecase"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// CommitWorker spreads commit processing jobs of one push over time
type CommitWorker struct {
	PoolSize        int `toml:"pool_size" validate:"gte=0"`
	IntervalSeconds int `toml:"interval_seconds" validate:"gte=0"`
}

// Settings is the content of the TOML configuration file
type Settings struct {
	Limits             model.Limits               `toml:"limits"`
	Housekeeping       usecase.HousekeepingConfig `toml:"housekeeping"`
	CommitWorker       CommitWorker               `toml:"commit_worker"`
	SystemHooks        []model.SystemHook         `toml:"system_hooks" validate:"dive"`
	GitHubRepositories []githubctrl.Repository    `toml:"github_repositories" validate:"dive"`
}

// DefaultSettings returns the settings used without a file
func DefaultSettings() *Settings {
	return &Settings{
		Limits:       model.DefaultLimits(),
		Housekeeping: usecase.DefaultHousekeepingConfig(),
		CommitWorker: CommitWorker{
			PoolSize:        model.DefaultCommitWorkerPoolSize,
			IntervalSeconds: int(model.DefaultCommitWorkerDelayInterval / time.Second),
		},
	}
}

// UseCaseOptions converts the settings into use case options
func (s *Settings) UseCaseOptions() []usecase.Option {
	return []usecase.Option{
		usecase.WithLimits(s.Limits),
		usecase.WithHousekeeping(s.Housekeeping),
		usecase.WithSystemHooks(s.SystemHooks),
		usecase.WithCommitWorkerPool(s.CommitWorker.PoolSize, time.Duration(s.CommitWorker.IntervalSeconds)*time.Second),
	}
}

// File holds the configuration file path and the limit overrides given as flags
type File struct {
	Path string

	processCommitLimit int
	pipelineLimit      int
	hooksLimit         int
	hookCommitsLimit   int
	wikiMaxChanges     int
	executeAllHooks    bool
	createAllPipelines bool
	activitiesLimit    int
}

// Flags returns CLI flags for the configuration file
func (c *File) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "TOML file with limits, housekeeping, system hooks and GitHub repository mappings",
			Destination: &c.Path,
			Sources:     cli.EnvVars("REFHOOK_CONFIG"),
		},
		&cli.IntFlag{
			Name:        "process-commit-limit",
			Usage:       "Commits per branch push processed for references",
			Destination: &c.processCommitLimit,
			Sources:     cli.EnvVars("REFHOOK_PROCESS_COMMIT_LIMIT"),
		},
		&cli.IntFlag{
			Name:        "pipeline-process-limit",
			Usage:       "Ref changes per push that request a pipeline",
			Destination: &c.pipelineLimit,
			Sources:     cli.EnvVars("REFHOOK_PIPELINE_PROCESS_LIMIT"),
		},
		&cli.IntFlag{
			Name:        "push-event-hooks-limit",
			Usage:       "Ref changes per push that execute hooks",
			Destination: &c.hooksLimit,
			Sources:     cli.EnvVars("REFHOOK_PUSH_EVENT_HOOKS_LIMIT"),
		},
		&cli.IntFlag{
			Name:        "push-event-activities-limit",
			Usage:       "Ref changes per push recorded as individual events",
			Destination: &c.activitiesLimit,
			Sources:     cli.EnvVars("REFHOOK_PUSH_EVENT_ACTIVITIES_LIMIT"),
		},
		&cli.IntFlag{
			Name:        "hook-commits-limit",
			Usage:       "Commits included in a push hook payload",
			Destination: &c.hookCommitsLimit,
			Sources:     cli.EnvVars("REFHOOK_HOOK_COMMITS_LIMIT"),
		},
		&cli.IntFlag{
			Name:        "wiki-max-changes",
			Usage:       "Wiki page changes processed per push",
			Destination: &c.wikiMaxChanges,
			Sources:     cli.EnvVars("REFHOOK_WIKI_MAX_CHANGES"),
		},
		&cli.BoolFlag{
			Name:        "execute-all-project-hooks",
			Usage:       "Execute hooks for every ref change of a push",
			Destination: &c.executeAllHooks,
			Sources:     cli.EnvVars("REFHOOK_EXECUTE_ALL_PROJECT_HOOKS"),
		},
		&cli.BoolFlag{
			Name:        "create-all-pipelines",
			Usage:       "Request pipelines for every ref change of a push",
			Destination: &c.createAllPipelines,
			Sources:     cli.EnvVars("REFHOOK_CREATE_ALL_PIPELINES"),
		},
	}
}

// Load reads the file when given, applies flag overrides and validates the result
func (c *File) Load(cmd *cli.Command) (*Settings, error) {
	settings := DefaultSettings()

	if c.Path != "" {
		raw, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", c.Path))
		}
		if err := toml.Unmarshal(raw, settings); err != nil {
			return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", c.Path))
		}
	}

	if cmd != nil {
		c.override(cmd, &settings.Limits)
	}

	if err := validator.New().Struct(settings); err != nil {
		return nil, goerr.Wrap(err, "invalid configuration", goerr.V("path", c.Path))
	}
	return settings, nil
}

func (c *File) override(cmd *cli.Command, limits *model.Limits) {
	ints := []struct {
		name string
		src  int
		dst  *int
	}{
		{"process-commit-limit", c.processCommitLimit, &limits.ProcessCommitLimit},
		{"pipeline-process-limit", c.pipelineLimit, &limits.PipelineProcessLimit},
		{"push-event-hooks-limit", c.hooksLimit, &limits.PushEventHooksLimit},
		{"push-event-activities-limit", c.activitiesLimit, &limits.PushEventActivitiesLimit},
		{"hook-commits-limit", c.hookCommitsLimit, &limits.HookCommitsLimit},
		{"wiki-max-changes", c.wikiMaxChanges, &limits.WikiMaxChanges},
	}
	for _, f := range ints {
		if cmd.IsSet(f.name) {
			*f.dst = f.src
		}
	}

	if cmd.IsSet("execute-all-project-hooks") {
		limits.ExecuteAllProjectHooks = c.executeAllHooks
	}
	if cmd.IsSet("create-all-pipelines") {
		limits.CreateAllPipelines = c.createAllPipelines
	}
}

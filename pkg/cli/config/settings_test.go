package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/cli/config"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

const settingsTOML = `
[limits]
process_commit_limit = 50
pipeline_process_limit = 2
push_event_hooks_limit = 3
push_event_activities_limit = 3
wiki_max_changes = 10
hook_commits_limit = 5
create_all_pipelines = true

[housekeeping]
incremental_repack_period = 5
full_repack_period = 50

[[system_hooks]]
url = "https://audit.example.com/hook"
token = "audit-token"
push_events = true
repository_update_events = true

[[github_repositories]]
full_name = "acme/app"
project_id = 1
user_id = 10
`

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refhook.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFile_Load(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		f := &config.File{}
		settings, err := f.Load(nil)
		gt.NoError(t, err)
		gt.Equal(t, settings.Limits, model.DefaultLimits())
		gt.A(t, settings.SystemHooks).Length(0)
	})

	t.Run("file values", func(t *testing.T) {
		f := &config.File{Path: writeSettings(t, settingsTOML)}
		settings, err := f.Load(nil)
		gt.NoError(t, err)

		gt.Equal(t, settings.Limits.ProcessCommitLimit, 50)
		gt.Equal(t, settings.Limits.HookCommitsLimit, 5)
		gt.True(t, settings.Limits.CreateAllPipelines)
		gt.Equal(t, settings.Housekeeping.FullRepackPeriod, 50)
		gt.A(t, settings.SystemHooks).Length(1)
		gt.True(t, settings.SystemHooks[0].Subscribes(model.RepositoryUpdateHooks))
		gt.False(t, settings.SystemHooks[0].Subscribes(model.TagPushHooks))
		gt.A(t, settings.GitHubRepositories).Length(1)
		gt.Equal(t, settings.GitHubRepositories[0].ProjectID, int64(1))
		gt.A(t, settings.UseCaseOptions()).Length(4)
	})

	t.Run("invalid system hook URL", func(t *testing.T) {
		f := &config.File{Path: writeSettings(t, "[[system_hooks]]\nurl = \"not a url\"\n")}
		_, err := f.Load(nil)
		gt.Error(t, err)
	})

	t.Run("negative limit", func(t *testing.T) {
		f := &config.File{Path: writeSettings(t, "[limits]\nprocess_commit_limit = -1\n")}
		_, err := f.Load(nil)
		gt.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		f := &config.File{Path: filepath.Join(t.TempDir(), "none.toml")}
		_, err := f.Load(nil)
		gt.Error(t, err)
	})

	t.Run("broken TOML", func(t *testing.T) {
		f := &config.File{Path: writeSettings(t, "[limits\n")}
		_, err := f.Load(nil)
		gt.Error(t, err)
	})
}

func TestFile_FlagsOverrideFile(t *testing.T) {
	var (
		f        config.File
		settings *config.Settings
	)
	path := writeSettings(t, settingsTOML)

	cmd := &cli.Command{
		Name:  "test",
		Flags: f.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			var err error
			settings, err = f.Load(c)
			return err
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), []string{"test", "--config", path, "--process-commit-limit", "7", "--create-all-pipelines=false"}))

	gt.Equal(t, settings.Limits.ProcessCommitLimit, 7)
	gt.False(t, settings.Limits.CreateAllPipelines)
	gt.Equal(t, settings.Limits.PipelineProcessLimit, 2)
}

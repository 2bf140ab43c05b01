package cli

import (
	"context"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/cli/config"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// fixture is a TOML description of projects and their integrations
type fixture struct {
	Users    []fixtureUser    `toml:"users" validate:"dive"`
	Projects []fixtureProject `toml:"projects" validate:"dive"`
}

type fixtureUser struct {
	ID       int64  `toml:"id" validate:"gt=0"`
	Username string `toml:"username" validate:"required"`
	Name     string `toml:"name"`
	Email    string `toml:"email" validate:"omitempty,email"`
}

type fixtureProject struct {
	ID                      int64  `toml:"id" validate:"gt=0"`
	Name                    string `toml:"name" validate:"required"`
	FullPath                string `toml:"full_path" validate:"required"`
	WebURL                  string `toml:"web_url" validate:"omitempty,url"`
	DefaultBranch           string `toml:"default_branch"`
	RepositoryPath          string `toml:"repository_path" validate:"required"`
	WikiRepositoryPath      string `toml:"wiki_repository_path"`
	WikiDefaultBranch       string `toml:"wiki_default_branch"`
	IssuesEnabled           bool   `toml:"issues_enabled"`
	RemoteMirrorsEnabled    bool   `toml:"remote_mirrors_enabled"`
	DefaultBranchProtection int    `toml:"default_branch_protection" validate:"gte=0,lte=3"`
	JiraConnect             bool   `toml:"jira_connect"`

	Hooks        []fixtureHook        `toml:"hooks" validate:"dive"`
	Issues       []fixtureIssue       `toml:"issues" validate:"dive"`
	Environments []fixtureEnvironment `toml:"environments" validate:"dive"`
	Mirrors      []fixtureMirror      `toml:"mirrors" validate:"dive"`
	Jira         *fixtureJira         `toml:"jira"`
	Slack        *fixtureSlack        `toml:"slack"`
}

type fixtureHook struct {
	URL            string `toml:"url" validate:"required,url"`
	Token          string `toml:"token"`
	PushEvents     bool   `toml:"push_events"`
	TagPushEvents  bool   `toml:"tag_push_events"`
	WikiPageEvents bool   `toml:"wiki_page_events"`
	BranchFilter   string `toml:"branch_filter"`
}

type fixtureIssue struct {
	IID   int64  `toml:"iid" validate:"gt=0"`
	Title string `toml:"title"`
}

type fixtureEnvironment struct {
	Name string `toml:"name" validate:"required"`
	Ref  string `toml:"ref" validate:"required"`
}

type fixtureMirror struct {
	URL     string `toml:"url" validate:"required"`
	Enabled bool   `toml:"enabled"`
}

type fixtureJira struct {
	URL               string `toml:"url" validate:"required,url"`
	Username          string `toml:"username"`
	Token             string `toml:"token"`
	CloseTransitionID string `toml:"close_transition_id"`
	CommitEvents      bool   `toml:"commit_events"`
}

type fixtureSlack struct {
	WebhookURL    string `toml:"webhook_url" validate:"required,url"`
	Channel       string `toml:"channel"`
	PushEvents    bool   `toml:"push_events"`
	TagPushEvents bool   `toml:"tag_push_events"`
	BranchFilter  string `toml:"branch_filter"`
}

// seedStore is the write side of the database used by seeding
type seedStore interface {
	PutUser(ctx context.Context, u *model.User) error
	PutProject(ctx context.Context, p *model.Project) error
	PutProjectHook(ctx context.Context, h *model.ProjectHook) error
	PutIssue(ctx context.Context, issue *model.Issue) error
	PutEnvironment(ctx context.Context, env *model.Environment) error
	PutRemoteMirror(ctx context.Context, m *model.RemoteMirror) error
	PutJiraIntegration(ctx context.Context, j *model.JiraIntegration) error
	PutSlackIntegration(ctx context.Context, s *model.SlackIntegration) error
	AddJiraConnectSubscription(ctx context.Context, projectID int64) error
}

func cmdSeed() *cli.Command {
	var (
		dbCfg config.Database
		path  string
	)

	return &cli.Command{
		Name:  "seed",
		Usage: "Load users, projects and integrations from a TOML fixture into the database",
		Flags: append(dbCfg.Flags(), &cli.StringFlag{
			Name:        "fixture",
			Aliases:     []string{"f"},
			Usage:       "TOML fixture file",
			Required:    true,
			Destination: &path,
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			raw, err := os.ReadFile(path)
			if err != nil {
				return goerr.Wrap(err, "failed to read fixture", goerr.V("path", path))
			}

			client, err := dbCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := client.Close(); err != nil {
					ctxlog.From(ctx).Warn("failed to close database", "error", err)
				}
			}()

			return seed(ctx, client, raw)
		},
	}
}

func seed(ctx context.Context, store seedStore, raw []byte) error {
	var fx fixture
	if err := toml.Unmarshal(raw, &fx); err != nil {
		return goerr.Wrap(err, "failed to parse fixture")
	}
	if err := validator.New().Struct(&fx); err != nil {
		return goerr.Wrap(err, "invalid fixture")
	}

	for _, u := range fx.Users {
		if err := store.PutUser(ctx, &model.User{ID: u.ID, Username: u.Username, Name: u.Name, Email: u.Email}); err != nil {
			return err
		}
	}
	for _, p := range fx.Projects {
		if err := seedProject(ctx, store, p); err != nil {
			return err
		}
	}

	ctxlog.From(ctx).Info("fixture loaded", "users", len(fx.Users), "projects", len(fx.Projects))
	return nil
}

func seedProject(ctx context.Context, store seedStore, p fixtureProject) error {
	project := &model.Project{
		ID:                      p.ID,
		Name:                    p.Name,
		FullPath:                p.FullPath,
		WebURL:                  p.WebURL,
		DefaultBranch:           p.DefaultBranch,
		RepositoryPath:          p.RepositoryPath,
		WikiRepositoryPath:      p.WikiRepositoryPath,
		WikiDefaultBranch:       p.WikiDefaultBranch,
		IssuesEnabled:           p.IssuesEnabled,
		RemoteMirrorsEnabled:    p.RemoteMirrorsEnabled,
		DefaultBranchProtection: model.BranchProtection(p.DefaultBranchProtection),
	}
	if err := store.PutProject(ctx, project); err != nil {
		return err
	}

	for _, h := range p.Hooks {
		if err := store.PutProjectHook(ctx, &model.ProjectHook{
			ProjectID:              p.ID,
			URL:                    h.URL,
			Token:                  h.Token,
			PushEvents:             h.PushEvents,
			TagPushEvents:          h.TagPushEvents,
			WikiPageEvents:         h.WikiPageEvents,
			PushEventsBranchFilter: h.BranchFilter,
		}); err != nil {
			return err
		}
	}
	for _, i := range p.Issues {
		if err := store.PutIssue(ctx, &model.Issue{ProjectID: p.ID, IID: i.IID, Title: i.Title}); err != nil {
			return err
		}
	}
	for _, e := range p.Environments {
		if err := store.PutEnvironment(ctx, &model.Environment{ProjectID: p.ID, Name: e.Name, Ref: e.Ref}); err != nil {
			return err
		}
	}
	for _, m := range p.Mirrors {
		if err := store.PutRemoteMirror(ctx, &model.RemoteMirror{ProjectID: p.ID, URL: m.URL, Enabled: m.Enabled}); err != nil {
			return err
		}
	}

	if j := p.Jira; j != nil {
		if err := store.PutJiraIntegration(ctx, &model.JiraIntegration{
			ProjectID:         p.ID,
			URL:               j.URL,
			Username:          j.Username,
			Token:             j.Token,
			CloseTransitionID: j.CloseTransitionID,
			CommitEvents:      j.CommitEvents,
		}); err != nil {
			return err
		}
	}
	if s := p.Slack; s != nil {
		if err := store.PutSlackIntegration(ctx, &model.SlackIntegration{
			ProjectID:     p.ID,
			WebhookURL:    s.WebhookURL,
			Channel:       s.Channel,
			PushEvents:    s.PushEvents,
			TagPushEvents: s.TagPushEvents,
			BranchFilter:  s.BranchFilter,
		}); err != nil {
			return err
		}
	}
	if p.JiraConnect {
		if err := store.AddJiraConnectSubscription(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

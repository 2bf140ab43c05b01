package github

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/go-github/v61/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// ErrUnmappedRepository is returned for pushes of repositories without a project mapping
var ErrUnmappedRepository = errors.New("repository is not mapped to a project")

// Repository maps a GitHub repository onto a local project
type Repository struct {
	FullName  string `toml:"full_name" validate:"required"`
	ProjectID int64  `toml:"project_id" validate:"gt=0"`
	// UserID is the local user recorded as the pusher
	UserID int64 `toml:"user_id" validate:"gt=0"`
	Wiki   bool  `toml:"wiki"`
}

// PushConverter converts GitHub push events to post-receive requests
type PushConverter struct {
	repos map[string]Repository
}

// NewPushConverter creates a converter for the mapped repositories. Names are compared case-insensitively.
func NewPushConverter(repos []Repository) *PushConverter {
	m := make(map[string]Repository, len(repos))
	for _, r := range repos {
		m[strings.ToLower(r.FullName)] = r
	}
	return &PushConverter{repos: m}
}

// Convert builds a one-change post-receive request from event
func (x *PushConverter) Convert(ctx context.Context, event *github.PushEvent) (*model.PostReceiveRequest, error) {
	fullName := event.GetRepo().GetFullName()
	repo, ok := x.repos[strings.ToLower(fullName)]
	if !ok {
		return nil, goerr.Wrap(ErrUnmappedRepository, "no project for repository", goerr.V("repository", fullName))
	}

	ref := event.GetRef()
	if ref == "" {
		return nil, goerr.New("push event without ref", goerr.V("repository", fullName))
	}

	before := blankIfEmpty(event.GetBefore())
	after := blankIfEmpty(event.GetAfter())
	if event.GetDeleted() {
		after = model.BlankSHA1
	}
	if event.GetCreated() {
		before = model.BlankSHA1
	}

	repoType := model.RepoTypeProject
	if repo.Wiki {
		repoType = model.RepoTypeWiki
	}
	glRepo := model.GLRepository{Type: repoType, ProjectID: repo.ProjectID}

	ctxlog.From(ctx).Debug("converted GitHub push",
		"repository", fullName,
		"gl_repository", glRepo.String(),
		"ref", ref,
		"forced", event.GetForced(),
	)

	return &model.PostReceiveRequest{
		GLRepository: glRepo.String(),
		UserID:       repo.UserID,
		Changes:      []string{before + " " + after + " " + ref},
		PushOptions:  pushOptions(event),
	}, nil
}

func blankIfEmpty(rev string) string {
	if rev == "" {
		return model.BlankSHA1
	}
	return rev
}

// pushOptions carries the delivery origin so pipelines can tell mirrored pushes apart
func pushOptions(event *github.PushEvent) []string {
	opts := []string{"ci.variable=GITHUB_REPOSITORY=" + event.GetRepo().GetFullName()}
	if id := event.GetRepo().GetID(); id != 0 {
		opts = append(opts, "ci.variable=GITHUB_REPOSITORY_ID="+strconv.FormatInt(id, 10))
	}
	return opts
}

package usecase_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/usecase"
)

func TestPostReceiveProject(t *testing.T) {
	e := newEnv(t)
	base := e.repo.commit("init", map[string]string{"a.txt": "0"})
	head := e.repo.commit("see #1", map[string]string{"a.txt": "1"})

	uc := e.useCase(
		usecase.WithSystemHooks([]model.SystemHook{{URL: "https://system.example.com", RepositoryUpdateEvents: true}}),
		usecase.WithHousekeeping(usecase.HousekeepingConfig{IncrementalRepackPeriod: 1, FullRepackPeriod: 100}),
	)

	result, err := uc.PostReceive(e.ctx, &model.PostReceiveRequest{
		GLRepository: "project-1",
		UserID:       testUserID,
		Changes: []string{
			base + " " + head + " refs/heads/master",
			"",
			base + " " + base + " refs/heads/noop",
		},
		PushOptions: []string{"ci.variable=ENV=staging"},
	})
	gt.NoError(t, err)
	gt.A(t, result.Changes).Length(1)
	gt.Equal(t, result.HooksExecuted, 1)
	gt.Equal(t, result.PipelinesQueued, 1)
	gt.Equal(t, e.pipelines.requests[0].Variables["ENV"], "staging")

	gt.A(t, e.queue.byClass(model.JobProcessCommit)).Length(1)

	system := e.queue.byClass(model.JobSystemHook)
	gt.A(t, system).Length(1)
	args := system[0].Args.(model.SystemHookArgs)
	gt.Equal(t, args.HookType, model.RepositoryUpdateHooks)
	var update model.RepositoryUpdateData
	gt.NoError(t, json.Unmarshal(args.Data, &update))
	gt.Equal(t, update.EventName, "repository_update")
	gt.Equal(t, update.Refs, []string{"refs/heads/master"})
	gt.Equal(t, update.Changes[0].After, head)

	gt.A(t, e.queue.byClass(model.JobHousekeeping)).Length(1)
}

func TestPostReceiveWiki(t *testing.T) {
	e := newEnv(t)
	sha := e.wiki.commit("page", map[string]string{"home.md": "# Home"})
	uc := e.useCase()

	result, err := uc.PostReceive(e.ctx, &model.PostReceiveRequest{
		GLRepository: "wiki-1",
		UserID:       testUserID,
		Changes:      []string{model.BlankSHA1 + " " + sha + " refs/heads/master"},
	})
	gt.NoError(t, err)
	gt.Equal(t, result.WikiEvents, 1)
	gt.A(t, result.Changes).Length(0)
	gt.A(t, e.pipelines.requests).Length(0)
}

func TestPostReceiveInvalidRequest(t *testing.T) {
	testCases := map[string]*model.PostReceiveRequest{
		"bad repository": {
			GLRepository: "group-1",
			UserID:       testUserID,
			Changes:      []string{"a b refs/heads/master"},
		},
		"malformed change": {
			GLRepository: "project-1",
			UserID:       testUserID,
			Changes:      []string{"only-two fields"},
		},
	}

	for name, req := range testCases {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.useCase().PostReceive(e.ctx, req)
			gt.True(t, errors.Is(err, model.ErrInvalidRequest))
		})
	}
}

func TestPostReceiveUnknownProject(t *testing.T) {
	e := newEnv(t)
	_, err := e.useCase().PostReceive(e.ctx, &model.PostReceiveRequest{
		GLRepository: "project-404",
		UserID:       testUserID,
		Changes:      []string{model.BlankSHA1 + " 1234 refs/heads/master"},
	})
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

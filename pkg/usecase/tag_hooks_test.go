package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/usecase"
)

func TestTagPush(t *testing.T) {
	e := newEnv(t)
	e.repo.commit("init", map[string]string{"a.txt": "0"})
	target := e.repo.commit("release prep", map[string]string{"a.txt": "1"})
	tagSHA := e.repo.tag("v1.0.0", target, "first release")

	gt.NoError(t, e.db.PutProjectHook(e.ctx, &model.ProjectHook{ProjectID: testProjectID, URL: "https://branches.example.com", PushEvents: true}))
	gt.NoError(t, e.db.PutProjectHook(e.ctx, &model.ProjectHook{ProjectID: testProjectID, URL: "https://tags.example.com", TagPushEvents: true}))

	uc := e.useCase()
	result := uc.ProcessRefChanges(e.ctx, e.pushContext(t, uc), model.RefChanges{change(0, model.BlankSHA1, tagSHA, "refs/tags/v1.0.0")})
	gt.A(t, result.Errors()).Length(0)

	cr := result.Changes[0]
	gt.False(t, cr.Ran(usecase.StepInvalidateCache))
	gt.False(t, cr.Ran(usecase.StepProcessCommits))
	gt.True(t, cr.Ran(usecase.StepCreatePipeline))

	jobs := e.queue.byClass(model.JobWebHook)
	gt.A(t, jobs).Length(1)
	gt.Equal(t, jobs[0].Args.(model.WebHookArgs).HookType, model.TagPushHooks)

	data := pushData(t, jobs[0])
	gt.Equal(t, data.ObjectKind, "tag_push")
	gt.Equal(t, data.After, tagSHA)
	gt.Equal(t, *data.CheckoutSHA, target)
	gt.String(t, *data.Message).Contains("first release")
	gt.A(t, data.Commits).Length(1)
	gt.Equal(t, data.Commits[0].ID, target)
	gt.Equal(t, data.TotalCommitsCount, 1)

	gt.Equal(t, e.pipelines.requests[0].CheckoutSHA, target)
	gt.A(t, e.queue.byClass(model.JobProjectCache)).Length(0)

	events, err := e.db.ListEvents(e.ctx, testProjectID)
	gt.NoError(t, err)
	gt.A(t, events).Length(1)
	payload, err := e.db.GetPushEventPayload(e.ctx, events[0].ID)
	gt.NoError(t, err)
	gt.Equal(t, payload.RefType, model.RefKindTag)
	gt.Equal(t, *payload.Ref, "v1.0.0")
}

func TestTagRemove(t *testing.T) {
	e := newEnv(t)
	head := e.repo.commit("init", map[string]string{"a.txt": "0"})
	gt.NoError(t, e.db.PutProjectHook(e.ctx, &model.ProjectHook{ProjectID: testProjectID, URL: "https://tags.example.com", TagPushEvents: true}))

	uc := e.useCase()
	result := uc.ProcessRefChanges(e.ctx, e.pushContext(t, uc), model.RefChanges{change(0, head, model.BlankSHA1, "refs/tags/v0.9.0")})
	gt.A(t, result.Errors()).Length(0)

	data := pushData(t, e.queue.byClass(model.JobWebHook)[0])
	gt.V(t, data.CheckoutSHA).Nil()
	gt.A(t, data.Commits).Length(0)
	gt.V(t, data.Message).Nil()
}

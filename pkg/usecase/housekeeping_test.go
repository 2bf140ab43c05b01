package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/usecase"
)

func TestExecuteHousekeeping(t *testing.T) {
	e := newEnv(t)
	uc := e.useCase(usecase.WithHousekeeping(usecase.HousekeepingConfig{IncrementalRepackPeriod: 2, FullRepackPeriod: 4}))
	repo := model.GLRepository{Type: model.RepoTypeProject, ProjectID: testProjectID}

	var tasks []string
	for range 4 {
		task, err := uc.ExecuteHousekeeping(e.ctx, repo)
		gt.NoError(t, err)
		tasks = append(tasks, task)
	}
	// the incremental lease from push 2 is still held at push 4
	gt.Equal(t, tasks, []string{"", usecase.HousekeepingIncrementalRepack, "", ""})

	jobs := e.queue.byClass(model.JobHousekeeping)
	gt.A(t, jobs).Length(1)
	args := jobs[0].Args.(model.HousekeepingArgs)
	gt.Equal(t, args.LeaseKey, "housekeeping:project-1")
	gt.Equal(t, args.Task, usecase.HousekeepingIncrementalRepack)

	t.Run("job releases lease and full repack resets counter", func(t *testing.T) {
		gt.NoError(t, uc.RunJob(e.ctx, jobFor(t, model.JobHousekeeping, args)))
		gt.Equal(t, e.lease.cancelled, []string{"housekeeping:project-1"})
		gt.Equal(t, e.counter.counts["pushes_since_gc:project-1"], int64(4))

		e.counter.counts["pushes_since_gc:project-1"] = 7
		task, err := uc.ExecuteHousekeeping(e.ctx, repo)
		gt.NoError(t, err)
		gt.Equal(t, task, usecase.HousekeepingFullRepack)

		full := e.queue.byClass(model.JobHousekeeping)[1].Args.(model.HousekeepingArgs)
		gt.NoError(t, uc.RunJob(e.ctx, jobFor(t, model.JobHousekeeping, full)))
		_, ok := e.counter.counts["pushes_since_gc:project-1"]
		gt.False(t, ok)
	})
}

func TestExecuteHousekeepingWiki(t *testing.T) {
	e := newEnv(t)
	uc := e.useCase(usecase.WithHousekeeping(usecase.HousekeepingConfig{IncrementalRepackPeriod: 1, FullRepackPeriod: 100}))

	task, err := uc.ExecuteHousekeeping(e.ctx, model.GLRepository{Type: model.RepoTypeWiki, ProjectID: testProjectID})
	gt.NoError(t, err)
	gt.Equal(t, task, usecase.HousekeepingIncrementalRepack)

	args := e.queue.byClass(model.JobHousekeeping)[0].Args.(model.HousekeepingArgs)
	gt.True(t, args.Wiki)
	gt.Equal(t, args.LeaseKey, "housekeeping:wiki-1")
}

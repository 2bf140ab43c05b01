package usecase

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// PushContext is the state shared by all ref changes of one push
type PushContext struct {
	Project     *model.Project
	User        *model.User
	Repo        interfaces.RepositoryMaintainer
	PushOptions map[string]string
	Variables   map[string]string

	// Pool spreads commit processing jobs of the push. Nil means no delay.
	Pool *model.ProcessCommitWorkerPool

	branchNames    map[string]struct{}
	mirrorsUpdated bool
}

// NewPushContext creates the shared state of one push with the configured delay allocator
func (uc *UseCase) NewPushContext(project *model.Project, user *model.User, repo interfaces.RepositoryMaintainer, pushOptions []string) *PushContext {
	opts, vars := model.ParsePushOptions(pushOptions)
	return &PushContext{
		Project:     project,
		User:        user,
		Repo:        repo,
		PushOptions: opts,
		Variables:   vars,
		Pool:        model.NewProcessCommitWorkerPool(uc.poolSize, uc.poolInterval),
	}
}

// refOptions are the per-change policies decided by the orchestrator
type refOptions struct {
	executeHooks    bool
	createPipelines bool
	createPushEvent bool
}

// RefHandler produces the side effects of one ref change
type RefHandler interface {
	Execute(ctx context.Context, change model.RefChange) model.ChangeResult
}

// newRefHandler maps a ref kind to a fresh handler. Nil for kinds without one.
func (uc *UseCase) newRefHandler(pc *PushContext, kind model.RefKind, opts refOptions) RefHandler {
	base := hooksBase{uc: uc, pc: pc, opts: opts}
	switch kind {
	case model.RefKindBranch:
		return &branchHooks{hooksBase: base}
	case model.RefKindTag:
		return &tagHooks{hooksBase: base}
	default:
		return nil
	}
}

// ProcessRefChanges runs branch changes then tag changes of one push. Other refs are ignored.
// A failing change never stops the following ones.
func (uc *UseCase) ProcessRefChanges(ctx context.Context, pc *PushContext, changes model.RefChanges) *model.PushResult {
	logger := ctxlog.From(ctx)
	result := &model.PushResult{}

	// position counts dispatched changes only; ignored refs take no budget
	position := 0
	for _, group := range []model.RefChanges{changes.BranchChanges(), changes.TagChanges()} {
		bulk := uc.createBulkPushEvents(ctx, pc, group)

		for _, change := range group {
			opts := refOptions{
				executeHooks:    uc.limits.ExecuteAllProjectHooks || position < uc.limits.PushEventHooksLimit,
				createPipelines: uc.limits.CreateAllPipelines || position < uc.limits.PipelineProcessLimit,
				createPushEvent: !bulk[change.Action()],
			}
			position++

			handler := uc.newRefHandler(pc, change.Kind(), opts)
			cr := uc.executeHandler(ctx, handler, change)

			if cr.Ran(StepExecuteHooks) {
				result.HooksExecuted++
			}
			if cr.Ran(StepCreatePipeline) {
				result.PipelinesQueued++
			}
			result.Changes = append(result.Changes, cr)
		}
	}

	logger.Info("ref changes processed",
		"project_id", pc.Project.ID,
		"changes", len(result.Changes),
		"hooks_executed", result.HooksExecuted,
		"pipelines_requested", result.PipelinesQueued,
		"errors", len(result.Errors()),
	)
	return result
}

func (uc *UseCase) executeHandler(ctx context.Context, handler RefHandler, change model.RefChange) (result model.ChangeResult) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.From(ctx).Error("panic in ref change handler",
				"ref", change.Ref,
				"recover", r,
				"stack", string(debug.Stack()),
			)
			err := goerr.New("panic in ref change handler", goerr.V("ref", change.Ref), goerr.V("recover", fmt.Sprint(r)))
			uc.tracker.Report(ctx, err, map[string]string{"ref": change.Ref})
			result = model.ChangeResult{
				Change: change,
				Steps:  []model.StepResult{{Name: "handler", Error: err}},
			}
		}
	}()

	return handler.Execute(ctx, change)
}

// createBulkPushEvents records one push event for each action group larger than the activities limit
// and returns the actions whose individual push events are suppressed.
func (uc *UseCase) createBulkPushEvents(ctx context.Context, pc *PushContext, changes model.RefChanges) map[model.RefAction]bool {
	if len(changes) == 0 {
		return nil
	}

	counts := map[model.RefAction]int{}
	for _, c := range changes {
		counts[c.Action()]++
	}

	suppressed := map[model.RefAction]bool{}
	kind := changes[0].Kind()
	for _, action := range []model.RefAction{model.RefActionCreated, model.RefActionRemoved, model.RefActionPushed} {
		n := counts[action]
		if n <= uc.limits.PushEventActivitiesLimit {
			continue
		}
		suppressed[action] = true

		payload := model.NewBulkPushEventPayload(kind, action, n)
		if _, err := uc.db.CreatePushEvent(ctx, pc.Project.ID, pc.User.ID, payload); err != nil {
			uc.tracker.Report(ctx, goerr.Wrap(err, "failed to create bulk push event"), map[string]string{
				"step":   StepCreatePushEvent,
				"action": string(action),
			})
		}
	}
	return suppressed
}

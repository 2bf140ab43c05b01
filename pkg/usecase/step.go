package usecase

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// Step names recorded in model.ChangeResult
const (
	StepSetDefaultBranch   = "set_default_branch"
	StepBranchCreate       = "branch_create"
	StepBranchUpdate       = "branch_update"
	StepBranchRemove       = "branch_remove"
	StepEnumerateCommits   = "enumerate_commits"
	StepExecuteHooks       = "execute_hooks"
	StepProcessCommits     = "process_commits"
	StepJiraConnectSync    = "jira_connect_sync"
	StepInvalidateCache    = "invalidate_cache"
	StepCreatePipeline     = "create_pipeline"
	StepCreatePushEvent    = "create_push_event"
	StepUpdateRemoteMirror = "update_remote_mirrors"
)

// logTracker is used when no error tracker is configured
type logTracker struct{}

func (logTracker) Report(ctx context.Context, err error, tags map[string]string) {
	ctxlog.From(ctx).Error("error reported", "error", err, "tags", tags)
}

// runStep runs one best-effort step. Errors and panics are recorded and reported, never propagated.
func (uc *UseCase) runStep(ctx context.Context, result *model.ChangeResult, name string, fn func(ctx context.Context) error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctxlog.From(ctx).Error("panic in step",
					"step", name,
					"recover", r,
					"stack", string(debug.Stack()),
				)
				err = goerr.New("panic in step", goerr.V("step", name), goerr.V("recover", fmt.Sprint(r)))
			}
		}()
		return fn(ctx)
	}()

	result.Steps = append(result.Steps, model.StepResult{Name: name, Error: err})
	if err != nil {
		uc.tracker.Report(ctx, err, map[string]string{
			"step": name,
			"ref":  result.Change.Ref,
		})
	}
}

func skipStep(result *model.ChangeResult, name string) {
	result.Steps = append(result.Steps, model.StepResult{Name: name, Skipped: true})
}

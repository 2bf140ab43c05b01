package usecase

import (
	"context"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// tagHooks handles one refs/tags/ change
type tagHooks struct {
	hooksBase

	tag     *model.Tag
	commits []*model.Commit
}

func (t *tagHooks) Execute(ctx context.Context, change model.RefChange) model.ChangeResult {
	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("ref", change.Ref, "action", string(change.Action())))
	result := model.ChangeResult{Change: change}

	if change.IsRemoved() {
		skipStep(&result, StepEnumerateCommits)
	} else {
		t.uc.runStep(ctx, &result, StepEnumerateCommits, func(ctx context.Context) error {
			return t.loadTag(ctx, change)
		})
	}

	if t.opts.executeHooks {
		t.uc.runStep(ctx, &result, StepExecuteHooks, func(ctx context.Context) error {
			return t.executeTagHooks(ctx, change)
		})
	} else {
		skipStep(&result, StepExecuteHooks)
	}

	if t.opts.createPipelines {
		t.uc.runStep(ctx, &result, StepCreatePipeline, func(ctx context.Context) error {
			return t.createPipeline(ctx, change, t.checkoutSHA())
		})
	} else {
		skipStep(&result, StepCreatePipeline)
	}

	if t.opts.createPushEvent {
		t.uc.runStep(ctx, &result, StepCreatePushEvent, func(ctx context.Context) error {
			return t.createPushEvent(ctx, change, t.commits, len(t.commits))
		})
	} else {
		skipStep(&result, StepCreatePushEvent)
	}

	t.remoteMirrorStep(ctx, &result)
	return result
}

// loadTag resolves the pushed tag to its message and target commit
func (t *tagHooks) loadTag(ctx context.Context, change model.RefChange) error {
	tag, err := t.pc.Repo.FindTag(ctx, change.ShortName())
	if err != nil {
		return err
	}
	t.tag = tag

	target := change.NewRev
	if tag != nil && tag.TargetID != "" {
		target = tag.TargetID
	}
	commit, err := t.pc.Repo.FindCommit(ctx, target)
	if err != nil {
		return err
	}
	t.commits = []*model.Commit{commit}
	return nil
}

func (t *tagHooks) checkoutSHA() string {
	if len(t.commits) == 0 {
		return ""
	}
	return t.commits[0].ID
}

func (t *tagHooks) executeTagHooks(ctx context.Context, change model.RefChange) error {
	var message *string
	if t.tag != nil && t.tag.Message != "" {
		msg := t.tag.Message
		message = &msg
	}
	data := t.buildPushData(ctx, change, "tag_push", t.commits, len(t.commits), message, t.checkoutSHA(), false)
	return t.executeHooks(ctx, model.TagPushHooks, change.ShortName(), data)
}

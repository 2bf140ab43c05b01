package usecase

import (
	"context"
	"slices"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const (
	jiraConnectCommitBatchSize = 20
	jiraConnectBatchInterval   = 10 * time.Second

	metricProcessCommitLimitOverflow = "process_commit_limit_overflow"
)

// branchHooks handles one refs/heads/ change
type branchHooks struct {
	hooksBase

	isNew   *bool
	commits []*model.Commit
	outcome model.ProcessingOutcome
}

func (b *branchHooks) isDefault(change model.RefChange) bool {
	return change.ShortName() == b.pc.Project.DefaultBranch
}

// isNewBranch is true when the old side is blank or the branch was not known before the push
func (b *branchHooks) isNewBranch(ctx context.Context, change model.RefChange) bool {
	if b.isNew != nil {
		return *b.isNew
	}
	isNew := change.IsCreated()
	if !isNew {
		names, err := b.pc.branchNameSet(ctx)
		if err != nil {
			ctxlog.From(ctx).Warn("failed to list branches", "error", err)
		} else if _, ok := names[change.ShortName()]; !ok {
			isNew = true
		}
	}
	b.isNew = &isNew
	return isNew
}

func (pc *PushContext) branchNameSet(ctx context.Context) (map[string]struct{}, error) {
	if pc.branchNames != nil {
		return pc.branchNames, nil
	}
	names, err := pc.Repo.BranchNames(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list branch names")
	}
	pc.branchNames = make(map[string]struct{}, len(names))
	for _, n := range names {
		pc.branchNames[n] = struct{}{}
	}
	return pc.branchNames, nil
}

func (b *branchHooks) Execute(ctx context.Context, change model.RefChange) model.ChangeResult {
	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("ref", change.Ref, "action", string(change.Action())))
	result := model.ChangeResult{Change: change}

	if change.IsCreated() && b.pc.Project.IsEmptyRepo() {
		b.uc.runStep(ctx, &result, StepSetDefaultBranch, func(ctx context.Context) error {
			return b.setDefaultBranch(ctx, change.ShortName())
		})
	}

	switch {
	case change.IsRemoved():
		b.uc.runStep(ctx, &result, StepBranchRemove, func(ctx context.Context) error {
			return b.branchRemoveHooks(ctx, change)
		})
	case b.isNewBranch(ctx, change):
		b.uc.runStep(ctx, &result, StepBranchCreate, func(ctx context.Context) error {
			return b.branchCreateHooks(ctx, change)
		})
	default:
		b.uc.runStep(ctx, &result, StepBranchUpdate, func(ctx context.Context) error {
			return b.branchUpdateHooks(ctx, change)
		})
	}

	b.uc.runStep(ctx, &result, StepEnumerateCommits, func(ctx context.Context) error {
		commits, outcome, err := b.enumerateCommits(ctx, change)
		if err != nil {
			return err
		}
		b.commits, b.outcome = commits, outcome
		return nil
	})

	if b.opts.executeHooks {
		b.uc.runStep(ctx, &result, StepExecuteHooks, func(ctx context.Context) error {
			return b.executeBranchHooks(ctx, change)
		})
	} else {
		skipStep(&result, StepExecuteHooks)
	}

	if change.IsRemoved() {
		skipStep(&result, StepProcessCommits)
	} else {
		b.uc.runStep(ctx, &result, StepProcessCommits, func(ctx context.Context) error {
			return b.processCommits(ctx, change)
		})
	}

	b.uc.runStep(ctx, &result, StepJiraConnectSync, func(ctx context.Context) error {
		return b.enqueueJiraConnectSync(ctx, change)
	})

	b.uc.runStep(ctx, &result, StepInvalidateCache, func(ctx context.Context) error {
		return b.invalidateCache(ctx, change)
	})

	if b.opts.createPipelines {
		b.uc.runStep(ctx, &result, StepCreatePipeline, func(ctx context.Context) error {
			return b.createPipeline(ctx, change, b.checkoutSHA(change))
		})
	} else {
		skipStep(&result, StepCreatePipeline)
	}

	if b.opts.createPushEvent {
		b.uc.runStep(ctx, &result, StepCreatePushEvent, func(ctx context.Context) error {
			return b.createPushEvent(ctx, change, b.commits, b.outcome.Processed)
		})
	} else {
		skipStep(&result, StepCreatePushEvent)
	}

	b.remoteMirrorStep(ctx, &result)
	return result
}

func (b *branchHooks) checkoutSHA(change model.RefChange) string {
	if change.IsRemoved() {
		return ""
	}
	return change.NewRev
}

// setDefaultBranch makes the first pushed branch of an empty project its default
func (b *branchHooks) setDefaultBranch(ctx context.Context, branch string) error {
	if err := b.pc.Repo.ChangeHead(ctx, branch); err != nil {
		return err
	}
	if err := b.uc.db.SetDefaultBranch(ctx, b.pc.Project.ID, branch); err != nil {
		return err
	}
	b.pc.Project.DefaultBranch = branch
	ctxlog.From(ctx).Info("default branch set", "project_id", b.pc.Project.ID, "branch", branch)
	return nil
}

func (b *branchHooks) branchCreateHooks(ctx context.Context, change model.RefChange) error {
	if !b.isDefault(change) {
		return nil
	}
	if err := b.pc.Repo.CopyGitattributes(ctx, change.Ref); err != nil {
		return err
	}
	return b.protectDefaultBranch(ctx, change.ShortName())
}

func (b *branchHooks) branchUpdateHooks(ctx context.Context, change model.RefChange) error {
	if !b.isDefault(change) {
		return nil
	}
	return b.pc.Repo.CopyGitattributes(ctx, change.Ref)
}

func (b *branchHooks) protectDefaultBranch(ctx context.Context, branch string) error {
	push, merge, ok := b.pc.Project.DefaultBranchProtection.AccessLevels()
	if !ok {
		return nil
	}

	existing, err := b.uc.db.ListProtectedBranches(ctx, b.pc.Project.ID)
	if err != nil {
		return err
	}
	for _, pb := range existing {
		if pb.Name == branch {
			return nil
		}
	}

	return b.uc.db.CreateProtectedBranch(ctx, &model.ProtectedBranch{
		ProjectID:        b.pc.Project.ID,
		Name:             branch,
		PushAccessLevel:  push,
		MergeAccessLevel: merge,
	})
}

func (b *branchHooks) branchRemoveHooks(ctx context.Context, change model.RefChange) error {
	branch := change.ShortName()
	stopped, err := b.uc.db.StopEnvironmentsForBranch(ctx, b.pc.Project.ID, branch)
	if err != nil {
		return err
	}
	if len(stopped) > 0 {
		ctxlog.From(ctx).Info("environments stopped", "branch", branch, "count", len(stopped))
	}

	if _, err := b.uc.queue.PerformAsync(ctx, model.JobUnlockArtifacts, model.UnlockArtifactsArgs{
		ProjectID: b.pc.Project.ID,
		UserID:    b.pc.User.ID,
		Ref:       change.Ref,
	}); err != nil {
		return goerr.Wrap(err, "failed to enqueue artifact unlock", goerr.V("branch", branch))
	}

	if len(ExtractJiraKeys(branch)) == 0 {
		return nil
	}
	subscribed, err := b.uc.db.HasJiraConnectSubscription(ctx, b.pc.Project.ID)
	if err != nil || !subscribed {
		return err
	}
	if _, err := b.uc.queue.PerformAsync(ctx, model.JobJiraConnectRemoveBranch, model.JiraConnectSyncArgs{
		ProjectID:   b.pc.Project.ID,
		BranchName:  branch,
		UpdateSeqID: b.uc.clock().UnixMilli(),
	}); err != nil {
		return goerr.Wrap(err, "failed to enqueue jira connect branch removal", goerr.V("branch", branch))
	}
	return nil
}

func (b *branchHooks) executeBranchHooks(ctx context.Context, change model.RefChange) error {
	protected, err := b.isProtectedBranch(ctx, change.ShortName())
	if err != nil {
		return err
	}
	data := b.buildPushData(ctx, change, "push", b.commits, b.outcome.Processed, nil, b.checkoutSHA(change), protected)
	return b.executeHooks(ctx, model.PushHooks, change.ShortName(), data)
}

// processCommits schedules message processing for commits that may reference issues
func (b *branchHooks) processCommits(ctx context.Context, change model.RefChange) error {
	commits := b.commits
	if len(commits) > b.outcome.Processed {
		commits = commits[:b.outcome.Processed]
	}

	isDefault := b.isDefault(change)
	enqueued := 0
	for _, c := range commits {
		if !MatchesCrossReference(c.Message) {
			continue
		}
		if _, err := b.uc.queue.PerformIn(ctx, b.pc.Pool.GetAndIncrementDelay(), model.JobProcessCommit, model.ProcessCommitArgs{
			ProjectID: b.pc.Project.ID,
			UserID:    b.pc.User.ID,
			Commit:    *c,
			Default:   isDefault,
		}); err != nil {
			return goerr.Wrap(err, "failed to enqueue commit processing", goerr.V("sha", c.ID))
		}
		enqueued++
	}

	if b.outcome.Overflowed() {
		ctxlog.From(ctx).Warn("commit processing limit exceeded",
			"processed", b.outcome.Processed,
			"skipped", b.outcome.SkippedDueToLimit,
		)
		if b.uc.counter != nil {
			if err := b.uc.counter.TrackEvent(ctx, metricProcessCommitLimitOverflow, b.pc.Project.ID); err != nil {
				return err
			}
		}
	}

	ctxlog.From(ctx).Debug("commits scheduled", "count", enqueued)
	return nil
}

// enqueueJiraConnectSync pushes branch and commit keys to a subscribed Jira Connect app
func (b *branchHooks) enqueueJiraConnectSync(ctx context.Context, change model.RefChange) error {
	if change.IsRemoved() {
		return nil
	}

	branch := change.ShortName()
	branchHasKeys := len(ExtractJiraKeys(branch)) > 0

	var shas []string
	for _, c := range b.commits[:min(len(b.commits), b.outcome.Processed)] {
		if len(ExtractJiraKeys(c.Message)) > 0 {
			shas = append(shas, c.ID)
		}
	}
	if !branchHasKeys && len(shas) == 0 {
		return nil
	}

	subscribed, err := b.uc.db.HasJiraConnectSubscription(ctx, b.pc.Project.ID)
	if err != nil || !subscribed {
		return err
	}

	seq := b.uc.clock().UnixMilli()
	if branchHasKeys {
		if _, err := b.uc.queue.PerformAsync(ctx, model.JobJiraConnectSyncBranch, model.JiraConnectSyncArgs{
			ProjectID:   b.pc.Project.ID,
			BranchName:  branch,
			UpdateSeqID: seq,
		}); err != nil {
			return goerr.Wrap(err, "failed to enqueue jira connect branch sync", goerr.V("branch", branch))
		}
	}

	for i, batch := range slices.Collect(slices.Chunk(shas, jiraConnectCommitBatchSize)) {
		if _, err := b.uc.queue.PerformIn(ctx, time.Duration(i)*jiraConnectBatchInterval, model.JobJiraConnectSyncBranch, model.JiraConnectSyncArgs{
			ProjectID:   b.pc.Project.ID,
			CommitSHAs:  batch,
			UpdateSeqID: seq,
		}); err != nil {
			return goerr.Wrap(err, "failed to enqueue jira connect commit sync", goerr.V("batch", i))
		}
	}
	return nil
}

// invalidateCache schedules a refresh of the cached special files
func (b *branchHooks) invalidateCache(ctx context.Context, change model.RefChange) error {
	if change.IsRemoved() {
		return nil
	}
	isDefault := b.isDefault(change)

	var paths []string
	if change.IsCreated() && isDefault {
		files, err := b.pc.Repo.ListFiles(ctx, change.NewRev)
		if err != nil {
			return err
		}
		paths = files
	} else {
		from := change.OldRev
		if b.isNewBranch(ctx, change) {
			from = b.pc.Project.DefaultBranch
		}
		changes, err := b.pc.Repo.RawChanges(ctx, from, change.NewRev)
		if err != nil {
			return err
		}
		for _, c := range changes {
			paths = append(paths, c.OldPath, c.NewPath)
		}
	}

	types := DetectFileTypes(paths)
	if !isDefault && len(types) == 0 {
		return nil
	}

	if _, err := b.uc.queue.PerformAsync(ctx, model.JobProjectCache, model.ProjectCacheArgs{
		ProjectID:         b.pc.Project.ID,
		FileTypes:         sortedKeys(types),
		RefreshStatistics: isDefault,
	}); err != nil {
		return goerr.Wrap(err, "failed to enqueue project cache refresh")
	}
	return nil
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// RunJob executes one dequeued job. A returned error makes the worker retry the job
// unless it wraps model.ErrUnknownJob.
func (uc *UseCase) RunJob(ctx context.Context, job *model.Job) error {
	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("job_id", job.ID, "job_class", string(job.Class)))

	switch job.Class {
	case model.JobProcessCommit:
		return runWith(ctx, job, uc.ProcessCommit)
	case model.JobWebHook:
		return runWith(ctx, job, uc.deliverWebHook)
	case model.JobSystemHook:
		return runWith(ctx, job, uc.deliverSystemHook)
	case model.JobIntegration:
		return runWith(ctx, job, uc.notifyIntegration)
	case model.JobProjectCache:
		return runWith(ctx, job, uc.refreshProjectCache)
	case model.JobJiraConnectSyncBranch:
		return runWith(ctx, job, func(ctx context.Context, args model.JiraConnectSyncArgs) error {
			return uc.syncJiraConnect(ctx, args, false)
		})
	case model.JobJiraConnectRemoveBranch:
		return runWith(ctx, job, func(ctx context.Context, args model.JiraConnectSyncArgs) error {
			return uc.syncJiraConnect(ctx, args, true)
		})
	case model.JobRemoteMirrorUpdate:
		return runWith(ctx, job, uc.updateRemoteMirror)
	case model.JobHousekeeping:
		return runWith(ctx, job, uc.runHousekeeping)
	case model.JobUnlockArtifacts:
		return runWith(ctx, job, uc.unlockArtifacts)
	default:
		return goerr.Wrap(model.ErrUnknownJob, "no handler for job", goerr.V("class", job.Class))
	}
}

func runWith[T any](ctx context.Context, job *model.Job, fn func(context.Context, T) error) error {
	var args T
	if err := json.Unmarshal(job.Args, &args); err != nil {
		return goerr.Wrap(model.ErrUnknownJob, "malformed job arguments", goerr.V("class", job.Class), goerr.V("error", err.Error()))
	}
	return fn(ctx, args)
}

func (uc *UseCase) deliverWebHook(ctx context.Context, args model.WebHookArgs) error {
	hook, err := uc.db.GetProjectHook(ctx, args.HookID)
	if errors.Is(err, model.ErrNotFound) {
		ctxlog.From(ctx).Info("project hook removed before delivery", "hook_id", args.HookID)
		return nil
	}
	if err != nil {
		return err
	}
	if uc.hooks == nil {
		return nil
	}
	return uc.hooks.Send(ctx, hook.URL, hook.Token, args.HookType, args.Data)
}

func (uc *UseCase) deliverSystemHook(ctx context.Context, args model.SystemHookArgs) error {
	if uc.hooks == nil {
		return nil
	}
	for _, h := range uc.systemHooks {
		if h.URL == args.URL {
			return uc.hooks.Send(ctx, h.URL, h.Token, args.HookType, args.Data)
		}
	}
	ctxlog.From(ctx).Info("system hook no longer configured", "url", args.URL)
	return nil
}

func (uc *UseCase) notifyIntegration(ctx context.Context, args model.IntegrationArgs) error {
	if uc.chat == nil {
		return nil
	}
	integration, err := uc.db.GetSlackIntegration(ctx, args.ProjectID)
	if err != nil {
		return err
	}
	if integration == nil || !integration.Subscribes(args.HookType) {
		return nil
	}
	return uc.chat.NotifyPush(ctx, integration, &args.Data)
}

// refreshProjectCache re-detects special files on the default branch and updates statistics
func (uc *UseCase) refreshProjectCache(ctx context.Context, args model.ProjectCacheArgs) error {
	if uc.fileCache == nil {
		return nil
	}
	project, err := uc.db.GetProject(ctx, args.ProjectID)
	if err != nil {
		return err
	}
	if project.IsEmptyRepo() {
		return nil
	}
	repo, err := uc.repos.Open(ctx, project.RepositoryPath)
	if err != nil {
		return err
	}

	if len(args.FileTypes) > 0 || args.RefreshStatistics {
		files, err := repo.ListFiles(ctx, project.DefaultBranch)
		if err != nil {
			return err
		}
		if err := uc.fileCache.SetFileTypes(ctx, project.ID, DetectFileTypes(files)); err != nil {
			return err
		}
	}

	if args.RefreshStatistics {
		count, err := repo.CommitCount(ctx, project.DefaultBranch)
		if err != nil {
			return err
		}
		if err := uc.fileCache.SetStatistics(ctx, project.ID, count); err != nil {
			return err
		}
	}
	return nil
}

func (uc *UseCase) syncJiraConnect(ctx context.Context, args model.JiraConnectSyncArgs, remove bool) error {
	if uc.jira == nil {
		return nil
	}
	integration, err := uc.db.GetJiraIntegration(ctx, args.ProjectID)
	if err != nil {
		return err
	}
	if integration == nil {
		ctxlog.From(ctx).Info("jira integration missing, sync skipped", "project_id", args.ProjectID)
		return nil
	}
	return uc.jira.SyncDevInfo(ctx, integration, args, remove)
}

func (uc *UseCase) updateRemoteMirror(ctx context.Context, args model.RemoteMirrorArgs) error {
	mirror, err := uc.db.GetRemoteMirror(ctx, args.MirrorID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !mirror.Enabled {
		return nil
	}

	project, err := uc.db.GetProject(ctx, mirror.ProjectID)
	if err != nil {
		return err
	}
	repo, err := uc.repos.Open(ctx, project.RepositoryPath)
	if err != nil {
		return err
	}

	if err := uc.db.UpdateMirrorStatus(ctx, mirror.ID, model.MirrorStarted, ""); err != nil {
		return err
	}
	if err := repo.PushMirror(ctx, mirror.URL); err != nil {
		if serr := uc.db.UpdateMirrorStatus(ctx, mirror.ID, model.MirrorFailed, err.Error()); serr != nil {
			ctxlog.From(ctx).Error("failed to record mirror failure", "mirror_id", mirror.ID, "error", serr)
		}
		return err
	}
	return uc.db.UpdateMirrorStatus(ctx, mirror.ID, model.MirrorFinished, "")
}

func (uc *UseCase) unlockArtifacts(ctx context.Context, args model.UnlockArtifactsArgs) error {
	tag := strings.HasPrefix(args.Ref, model.TagRefPrefix)
	n, err := uc.db.UnlockPipelines(ctx, args.ProjectID, model.ShortRefName(args.Ref), tag)
	if err != nil {
		return err
	}
	ctxlog.From(ctx).Info("pipeline artifacts unlocked", "project_id", args.ProjectID, "ref", args.Ref, "count", n)
	return nil
}

package usecase

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const stuckMirrorTimeout = 3 * time.Hour

// hooksBase carries what branch and tag handlers share
type hooksBase struct {
	uc   *UseCase
	pc   *PushContext
	opts refOptions
}

func (b *hooksBase) commitURL(sha string) string {
	return strings.TrimRight(b.pc.Project.WebURL, "/") + "/-/commit/" + sha
}

func repositoryData(project *model.Project) model.PushDataRepo {
	httpURL := strings.TrimRight(project.WebURL, "/") + ".git"
	sshURL := ""
	if u, err := url.Parse(project.WebURL); err == nil && u.Host != "" {
		sshURL = "git@" + u.Hostname() + ":" + project.FullPath + ".git"
	}
	return model.PushDataRepo{
		Name:       project.Name,
		URL:        sshURL,
		Homepage:   project.WebURL,
		GitHTTPURL: httpURL,
		GitSSHURL:  sshURL,
	}
}

func projectData(project *model.Project) model.PushDataProject {
	return model.PushDataProject{
		ID:                project.ID,
		Name:              project.Name,
		WebURL:            project.WebURL,
		PathWithNamespace: project.FullPath,
		DefaultBranch:     project.DefaultBranch,
	}
}

// buildPushData renders the hook payload. commits are newest first and the last
// HookCommitsLimit of them are included oldest first.
func (b *hooksBase) buildPushData(ctx context.Context, change model.RefChange, objectKind string, commits []*model.Commit, totalCount int, message *string, checkoutSHA string, protected bool) *model.PushData {
	project, user := b.pc.Project, b.pc.User

	data := &model.PushData{
		ObjectKind:        objectKind,
		EventName:         objectKind,
		Before:            change.OldRev,
		After:             change.NewRev,
		Ref:               change.Ref,
		RefProtected:      protected,
		Message:           message,
		UserID:            user.ID,
		UserName:          user.Name,
		UserUsername:      user.Username,
		UserEmail:         user.Email,
		ProjectID:         project.ID,
		Project:           projectData(project),
		Commits:           []model.PushDataCommit{},
		TotalCommitsCount: totalCount,
		PushOptions:       b.pc.PushOptions,
		Repository:        repositoryData(project),
	}
	if checkoutSHA != "" {
		data.CheckoutSHA = &checkoutSHA
	}

	limit := b.uc.limits.HookCommitsLimit
	hookCommits := commits
	if limit >= 0 && len(hookCommits) > limit {
		hookCommits = hookCommits[:limit]
	}
	for i := len(hookCommits) - 1; i >= 0; i-- {
		data.Commits = append(data.Commits, b.commitData(ctx, hookCommits[i]))
	}
	return data
}

func (b *hooksBase) commitData(ctx context.Context, c *model.Commit) model.PushDataCommit {
	d := model.PushDataCommit{
		ID:        c.ID,
		Message:   c.Message,
		Title:     c.Title(),
		Timestamp: c.AuthoredAt.Format(time.RFC3339),
		URL:       b.commitURL(c.ID),
		Author:    model.PushDataAuthor{Name: c.AuthorName, Email: c.AuthorEmail},
		Added:     []string{},
		Modified:  []string{},
		Removed:   []string{},
	}

	paths, err := b.pc.Repo.CommitPaths(ctx, c.ID)
	if err != nil {
		ctxlog.From(ctx).Warn("failed to read commit paths", "sha", c.ID, "error", err)
		return d
	}
	for _, p := range paths {
		switch p.Operation {
		case model.ChangeAdded:
			d.Added = append(d.Added, p.NewPath)
		case model.ChangeDeleted:
			d.Removed = append(d.Removed, p.OldPath)
		case model.ChangeRenamed:
			d.Removed = append(d.Removed, p.OldPath)
			d.Added = append(d.Added, p.NewPath)
		default:
			d.Modified = append(d.Modified, p.NewPath)
		}
	}
	return d
}

// matchRefPattern matches a branch against an exact name or a wildcard pattern
func matchRefPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		return false
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// matchBranchFilter treats an empty filter as matching every branch.
// Filters may list several comma separated patterns.
func matchBranchFilter(filter, branch string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	for _, pattern := range strings.Split(filter, ",") {
		if matchRefPattern(strings.TrimSpace(pattern), branch) {
			return true
		}
	}
	return false
}

func (b *hooksBase) isProtectedBranch(ctx context.Context, branch string) (bool, error) {
	branches, err := b.uc.db.ListProtectedBranches(ctx, b.pc.Project.ID)
	if err != nil {
		return false, err
	}
	for _, pb := range branches {
		if matchRefPattern(pb.Name, branch) {
			return true, nil
		}
	}
	return false, nil
}

// executeHooks enqueues project hook, integration and system hook deliveries
func (b *hooksBase) executeHooks(ctx context.Context, hookType model.HookType, branch string, data *model.PushData) error {
	return b.uc.dispatchHooks(ctx, b.pc.Project.ID, hookType, branch, data, data)
}

// dispatchHooks enqueues a delivery job per subscribed hook. chatData is sent to chat integrations when set.
func (uc *UseCase) dispatchHooks(ctx context.Context, projectID int64, hookType model.HookType, branch string, payload any, chatData *model.PushData) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal hook payload", goerr.V("hook_type", hookType))
	}

	hooks, err := uc.db.ListProjectHooks(ctx, projectID)
	if err != nil {
		return err
	}
	for _, h := range hooks {
		if !h.Subscribes(hookType) {
			continue
		}
		if hookType == model.PushHooks && !matchBranchFilter(h.PushEventsBranchFilter, branch) {
			continue
		}
		if _, err := uc.queue.PerformAsync(ctx, model.JobWebHook, model.WebHookArgs{
			HookID:   h.ID,
			HookType: hookType,
			Data:     body,
		}); err != nil {
			return goerr.Wrap(err, "failed to enqueue web hook", goerr.V("hook_id", h.ID))
		}
	}

	if chatData != nil {
		slack, err := uc.db.GetSlackIntegration(ctx, projectID)
		if err != nil {
			return err
		}
		if slack != nil && slack.Subscribes(hookType) && (hookType != model.PushHooks || matchBranchFilter(slack.BranchFilter, branch)) {
			if _, err := uc.queue.PerformAsync(ctx, model.JobIntegration, model.IntegrationArgs{
				ProjectID: projectID,
				HookType:  hookType,
				Data:      *chatData,
			}); err != nil {
				return goerr.Wrap(err, "failed to enqueue integration", goerr.V("project_id", projectID))
			}
		}
	}

	return uc.dispatchSystemHooks(ctx, hookType, body)
}

func (uc *UseCase) dispatchSystemHooks(ctx context.Context, hookType model.HookType, body []byte) error {
	for _, h := range uc.systemHooks {
		if !h.Subscribes(hookType) {
			continue
		}
		if _, err := uc.queue.PerformAsync(ctx, model.JobSystemHook, model.SystemHookArgs{
			URL:      h.URL,
			HookType: hookType,
			Data:     body,
		}); err != nil {
			return goerr.Wrap(err, "failed to enqueue system hook", goerr.V("url", h.URL))
		}
	}
	return nil
}

// createPipeline requests a pipeline. A result without a persisted pipeline is logged, not failed.
func (b *hooksBase) createPipeline(ctx context.Context, change model.RefChange, checkoutSHA string) error {
	params := model.PipelineParams{
		Before:      change.OldRev,
		After:       change.NewRev,
		Ref:         change.Ref,
		CheckoutSHA: checkoutSHA,
		Variables:   b.pc.Variables,
		PushOptions: b.pc.PushOptions,
	}

	result, err := b.uc.pipelines.CreatePipeline(ctx, b.pc.Project, b.pc.User, b.pc.Repo, params)
	if err != nil {
		return goerr.Wrap(err, "failed to create pipeline", goerr.V("ref", change.Ref))
	}

	logger := ctxlog.From(ctx)
	if !result.Persisted() {
		logger.Info("pipeline not persisted",
			"message", result.Message,
			"params", params.Sanitized(),
		)
		return nil
	}
	if result.Pipeline.Status == model.PipelineFailed {
		logger.Warn("pipeline created in failed state",
			"pipeline_id", result.Pipeline.ID,
			"reason", result.Pipeline.FailureReason,
			"message", result.Message,
			"params", params.Sanitized(),
		)
	}
	return nil
}

func (b *hooksBase) createPushEvent(ctx context.Context, change model.RefChange, commits []*model.Commit, totalCount int) error {
	title := ""
	if len(commits) > 0 {
		title = commits[0].Title()
	}
	payload := model.NewPushEventPayload(change, title, totalCount)
	if _, err := b.uc.db.CreatePushEvent(ctx, b.pc.Project.ID, b.pc.User.ID, payload); err != nil {
		return err
	}
	return nil
}

// updateRemoteMirrors runs at most once per push
func (b *hooksBase) updateRemoteMirrors(ctx context.Context) error {
	b.pc.mirrorsUpdated = true
	project := b.pc.Project

	stuck, err := b.uc.db.MarkStuckMirrorsFailed(ctx, project.ID, b.uc.clock().Add(-stuckMirrorTimeout))
	if err != nil {
		return err
	}
	if stuck > 0 {
		ctxlog.From(ctx).Warn("marked stuck remote mirrors as failed", "project_id", project.ID, "count", stuck)
	}

	mirrors, err := b.uc.db.ListRemoteMirrors(ctx, project.ID)
	if err != nil {
		return err
	}
	for _, m := range mirrors {
		if !m.Enabled {
			continue
		}
		if err := b.uc.db.UpdateMirrorStatus(ctx, m.ID, model.MirrorScheduled, ""); err != nil {
			return err
		}
		if _, err := b.uc.queue.PerformAsync(ctx, model.JobRemoteMirrorUpdate, model.RemoteMirrorArgs{MirrorID: m.ID}); err != nil {
			return goerr.Wrap(err, "failed to enqueue remote mirror update", goerr.V("mirror_id", m.ID))
		}
	}
	return nil
}

func (b *hooksBase) remoteMirrorStep(ctx context.Context, result *model.ChangeResult) {
	if !b.pc.Project.RemoteMirrorsEnabled || b.pc.mirrorsUpdated {
		skipStep(result, StepUpdateRemoteMirror)
		return
	}
	b.uc.runStep(ctx, result, StepUpdateRemoteMirror, b.updateRemoteMirrors)
}

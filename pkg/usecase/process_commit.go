package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const noteableIssue = "Issue"

// ProcessCommit closes and cross-references the issues mentioned in one commit message.
// Jira errors are returned so the job is retried.
func (uc *UseCase) ProcessCommit(ctx context.Context, args model.ProcessCommitArgs) error {
	project, err := uc.db.GetProject(ctx, args.ProjectID)
	if err != nil {
		return err
	}
	pusher, err := uc.db.GetUser(ctx, args.UserID)
	if err != nil {
		return err
	}
	commit := &args.Commit

	author, err := uc.db.FindUserByEmail(ctx, commit.AuthorEmail)
	if err != nil {
		return err
	}
	if author == nil {
		author = pusher
	}

	logger := ctxlog.From(ctx).With("project_id", project.ID, "sha", commit.ID)
	refs := ExtractIssueReferences(commit.Message, project.FullPath)
	if len(refs) == 0 {
		logger.Debug("no issue references in commit")
		return nil
	}

	if project.IssuesEnabled {
		if err := uc.processInternalReferences(ctx, project, author, commit, refs, args.Default); err != nil {
			return err
		}
	}
	return uc.processJiraReferences(ctx, project, author, commit, refs, args.Default)
}

func (uc *UseCase) processInternalReferences(ctx context.Context, project *model.Project, author *model.User, commit *model.Commit, refs []model.IssueReference, isDefault bool) error {
	for _, ref := range refs {
		if ref.IsExternal() {
			continue
		}
		issue, err := uc.db.FindIssueByIID(ctx, project.ID, ref.IID)
		if err != nil {
			return err
		}
		if issue == nil {
			continue
		}

		if err := uc.db.SetFirstMentionedInCommitAt(ctx, issue.ID, commit.CommittedAt); err != nil {
			return err
		}

		if ref.Closing && isDefault {
			if issue.State == model.IssueClosed {
				continue
			}
			if err := uc.db.CloseIssue(ctx, issue.ID); err != nil {
				return err
			}
			if err := uc.db.CreateNote(ctx, &model.Note{
				ProjectID:    project.ID,
				NoteableType: noteableIssue,
				NoteableID:   issue.ID,
				AuthorID:     author.ID,
				Body:         "closed via commit " + commit.ID,
				System:       true,
				CommitID:     commit.ID,
			}); err != nil {
				return err
			}
			ctxlog.From(ctx).Info("issue closed by commit", "issue_iid", issue.IID, "sha", commit.ID)
			continue
		}

		exists, err := uc.db.CrossReferenceExists(ctx, issue.ID, commit.ID, author.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := uc.db.CreateNote(ctx, &model.Note{
			ProjectID:    project.ID,
			NoteableType: noteableIssue,
			NoteableID:   issue.ID,
			AuthorID:     author.ID,
			Body:         "mentioned in commit " + commit.ID,
			System:       true,
			CommitID:     commit.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (uc *UseCase) processJiraReferences(ctx context.Context, project *model.Project, author *model.User, commit *model.Commit, refs []model.IssueReference, isDefault bool) error {
	hasExternal := false
	for _, ref := range refs {
		if ref.IsExternal() {
			hasExternal = true
			break
		}
	}
	if !hasExternal || uc.jira == nil {
		return nil
	}

	integration, err := uc.db.GetJiraIntegration(ctx, project.ID)
	if err != nil {
		return err
	}
	if integration == nil || !integration.CommitEvents {
		return nil
	}

	commitURL := strings.TrimRight(project.WebURL, "/") + "/-/commit/" + commit.ID
	for _, ref := range refs {
		if !ref.IsExternal() {
			continue
		}

		if ref.Closing && isDefault {
			body := fmt.Sprintf("Issue solved with [%s|%s].", commit.ID, commitURL)
			if err := uc.jira.AddComment(ctx, integration, ref.ExternalKey, body); err != nil {
				return goerr.Wrap(err, "failed to comment on jira issue", goerr.V("key", ref.ExternalKey))
			}
			if err := uc.jira.TransitionIssue(ctx, integration, ref.ExternalKey); err != nil {
				return goerr.Wrap(err, "failed to transition jira issue", goerr.V("key", ref.ExternalKey))
			}
			continue
		}

		body := fmt.Sprintf("%s mentioned this issue in [a commit of %s|%s]", author.Name, project.FullPath, commitURL)
		if err := uc.jira.AddComment(ctx, integration, ref.ExternalKey, body); err != nil {
			return goerr.Wrap(err, "failed to comment on jira issue", goerr.V("key", ref.ExternalKey))
		}
	}
	return nil
}

package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/refhook/pkg/domain/model"
)

type ProjectStore interface {
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	SetDefaultBranch(ctx context.Context, projectID int64, branch string) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type EventStore interface {
	CreatePushEvent(ctx context.Context, projectID, authorID int64, payload *model.PushEventPayload) (*model.Event, error)
	// CreateWikiEvent returns the existing event with created=false when one with the same target, action and fingerprint exists
	CreateWikiEvent(ctx context.Context, meta *model.WikiPageMeta, authorID int64, action model.EventAction, fingerprint string) (*model.Event, bool, error)
	WikiEventExists(ctx context.Context, metaID int64, action model.EventAction, fingerprint string) (bool, error)
	ListEvents(ctx context.Context, projectID int64) ([]*model.Event, error)
	GetPushEventPayload(ctx context.Context, eventID string) (*model.PushEventPayload, error)
}

type IssueStore interface {
	FindIssueByIID(ctx context.Context, projectID, iid int64) (*model.Issue, error)
	CloseIssue(ctx context.Context, issueID int64) error
	SetFirstMentionedInCommitAt(ctx context.Context, issueID int64, at time.Time) error
	CreateNote(ctx context.Context, note *model.Note) error
	CrossReferenceExists(ctx context.Context, issueID int64, commitID string, authorID int64) (bool, error)
	ListNotes(ctx context.Context, issueID int64) ([]*model.Note, error)
}

type WikiStore interface {
	// FindOrCreateWikiPageMeta returns created=false when a meta with the slug already exists
	FindOrCreateWikiPageMeta(ctx context.Context, projectID int64, slug, title string) (meta *model.WikiPageMeta, created bool, err error)
	CountWikiPageMeta(ctx context.Context, projectID int64) (int, error)
}

type HookStore interface {
	ListProjectHooks(ctx context.Context, projectID int64) ([]*model.ProjectHook, error)
	GetProjectHook(ctx context.Context, id int64) (*model.ProjectHook, error)
	GetJiraIntegration(ctx context.Context, projectID int64) (*model.JiraIntegration, error)
	GetSlackIntegration(ctx context.Context, projectID int64) (*model.SlackIntegration, error)
	HasJiraConnectSubscription(ctx context.Context, projectID int64) (bool, error)
}

type BranchStore interface {
	ListProtectedBranches(ctx context.Context, projectID int64) ([]*model.ProtectedBranch, error)
	CreateProtectedBranch(ctx context.Context, branch *model.ProtectedBranch) error
	// StopEnvironmentsForBranch returns the environments that were stopped
	StopEnvironmentsForBranch(ctx context.Context, projectID int64, branch string) ([]*model.Environment, error)
}

type MirrorStore interface {
	ListRemoteMirrors(ctx context.Context, projectID int64) ([]*model.RemoteMirror, error)
	GetRemoteMirror(ctx context.Context, id int64) (*model.RemoteMirror, error)
	// MarkStuckMirrorsFailed fails mirrors that stayed started since before the deadline
	MarkStuckMirrorsFailed(ctx context.Context, projectID int64, startedBefore time.Time) (int, error)
	UpdateMirrorStatus(ctx context.Context, id int64, status model.MirrorStatus, lastError string) error
}

type PipelineStore interface {
	// UnlockPipelines returns the number of pipelines whose artifacts were unlocked
	UnlockPipelines(ctx context.Context, projectID int64, ref string, tag bool) (int, error)
}

// Database is the relational store of the application
type Database interface {
	ProjectStore
	EventStore
	IssueStore
	WikiStore
	HookStore
	BranchStore
	MirrorStore
	PipelineStore
	Close() error
}

package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// JobQueue enqueues asynchronous work with at-least-once delivery
type JobQueue interface {
	PerformAsync(ctx context.Context, class model.JobClass, args any) (string, error)
	PerformIn(ctx context.Context, delay time.Duration, class model.JobClass, args any) (string, error)
}

// JobConsumer is the worker side of JobQueue. A dequeued job stays in the consumer's
// processing list until it is acknowledged or retried.
type JobConsumer interface {
	// Recover moves jobs left in the consumer's processing list back to the ready queue
	Recover(ctx context.Context, consumer string) (int, error)
	// Dequeue blocks up to timeout for a job; returns nil job on timeout
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*model.Job, error)
	// Ack removes a finished job from the processing list
	Ack(ctx context.Context, consumer string, job *model.Job) error
	// PromoteScheduled moves due scheduled jobs to the ready queue
	PromoteScheduled(ctx context.Context, now time.Time) (int, error)
	// Retry re-schedules a failed job after delay and removes it from the processing list
	Retry(ctx context.Context, consumer string, job *model.Job, delay time.Duration) error
}

// Lease is a best-effort exclusive lease
type Lease interface {
	// TryObtain returns an empty uuid when the lease is held by someone else
	TryObtain(ctx context.Context, key string, ttl time.Duration) (uuid string, err error)
	Cancel(ctx context.Context, key, uuid string) error
}

// Counter keeps per-key push counters and usage events
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
	TrackEvent(ctx context.Context, name string, projectID int64) error
}

// FileTypeCache stores the detected special files of a project's default branch
type FileTypeCache interface {
	SetFileTypes(ctx context.Context, projectID int64, types map[string]string) error
	GetFileTypes(ctx context.Context, projectID int64) (map[string]string, error)
	SetStatistics(ctx context.Context, projectID int64, commitCount int) error
}

// PipelineCreator creates CI pipelines for pushes
type PipelineCreator interface {
	CreatePipeline(ctx context.Context, project *model.Project, user *model.User, repo Repository, params model.PipelineParams) (*model.PipelineResult, error)
}

// ErrorTracker reports non-fatal errors
type ErrorTracker interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// HookSender delivers a hook payload over HTTP
type HookSender interface {
	Send(ctx context.Context, url, token string, hookType model.HookType, body []byte) error
}

// JiraClient talks to a Jira server on behalf of a project integration
type JiraClient interface {
	AddComment(ctx context.Context, integration *model.JiraIntegration, issueKey, body string) error
	TransitionIssue(ctx context.Context, integration *model.JiraIntegration, issueKey string) error
	SyncDevInfo(ctx context.Context, integration *model.JiraIntegration, args model.JiraConnectSyncArgs, remove bool) error
}

// ChatNotifier posts push summaries to a chat integration
type ChatNotifier interface {
	NotifyPush(ctx context.Context, integration *model.SlackIntegration, data *model.PushData) error
}

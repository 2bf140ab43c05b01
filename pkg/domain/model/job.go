package model

import (
	"encoding/json"
	"time"
)

// JobClass names the handler of a queued job
type JobClass string

const (
	JobProcessCommit           JobClass = "process_commit"
	JobWebHook                 JobClass = "web_hook"
	JobSystemHook              JobClass = "system_hook"
	JobIntegration             JobClass = "integration"
	JobProjectCache            JobClass = "project_cache"
	JobJiraConnectSyncBranch   JobClass = "jira_connect_sync_branch"
	JobJiraConnectRemoveBranch JobClass = "jira_connect_remove_branch"
	JobRemoteMirrorUpdate      JobClass = "remote_mirror_update"
	JobHousekeeping            JobClass = "housekeeping"
	JobUnlockArtifacts         JobClass = "unlock_artifacts"
)

// Job is one unit of asynchronous work. Delivery is at-least-once.
type Job struct {
	ID         string          `json:"id"`
	Class      JobClass        `json:"class"`
	Args       json.RawMessage `json:"args"`
	Retry      int             `json:"retry"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// Raw is the encoded job as held in the processing list; set by the consumer
	Raw []byte `json:"-"`
}

type ProcessCommitArgs struct {
	ProjectID int64  `json:"project_id"`
	UserID    int64  `json:"user_id"`
	Commit    Commit `json:"commit"`
	Default   bool   `json:"default"`
}

type WebHookArgs struct {
	HookID   int64           `json:"hook_id"`
	HookType HookType        `json:"hook_type"`
	Data     json.RawMessage `json:"data"`
}

type SystemHookArgs struct {
	URL      string          `json:"url"`
	HookType HookType        `json:"hook_type"`
	Data     json.RawMessage `json:"data"`
}

type IntegrationArgs struct {
	ProjectID int64    `json:"project_id"`
	HookType  HookType `json:"hook_type"`
	Data      PushData `json:"data"`
}

type ProjectCacheArgs struct {
	ProjectID         int64    `json:"project_id"`
	FileTypes         []string `json:"file_types"`
	RefreshStatistics bool     `json:"refresh_statistics"`
}

type JiraConnectSyncArgs struct {
	ProjectID   int64    `json:"project_id"`
	BranchName  string   `json:"branch_name,omitempty"`
	CommitSHAs  []string `json:"commit_shas,omitempty"`
	UpdateSeqID int64    `json:"update_sequence_id"`
}

type RemoteMirrorArgs struct {
	MirrorID int64 `json:"mirror_id"`
}

type HousekeepingArgs struct {
	ProjectID int64  `json:"project_id"`
	Wiki      bool   `json:"wiki"`
	Task      string `json:"task"`
	LeaseKey  string `json:"lease_key"`
	LeaseUUID string `json:"lease_uuid"`
}

type UnlockArtifactsArgs struct {
	ProjectID int64  `json:"project_id"`
	UserID    int64  `json:"user_id"`
	Ref       string `json:"ref"`
}

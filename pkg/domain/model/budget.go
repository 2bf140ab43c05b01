package model

import "time"

const (
	DefaultPipelineProcessLimit     = 4
	DefaultProcessCommitLimit       = 100
	DefaultPushEventHooksLimit      = 3
	DefaultPushEventActivitiesLimit = 3
	DefaultWikiMaxChanges           = 100
	DefaultHookCommitsLimit         = 20

	DefaultCommitWorkerPoolSize      = 1000
	DefaultCommitWorkerDelayInterval = 10 * time.Second
)

// Limits bounds the side effects of one push
type Limits struct {
	PipelineProcessLimit     int `toml:"pipeline_process_limit" validate:"gte=0"`
	ProcessCommitLimit       int `toml:"process_commit_limit" validate:"gte=0"`
	PushEventHooksLimit      int `toml:"push_event_hooks_limit" validate:"gte=0"`
	PushEventActivitiesLimit int `toml:"push_event_activities_limit" validate:"gte=0"`
	WikiMaxChanges           int `toml:"wiki_max_changes" validate:"gte=0"`
	HookCommitsLimit         int `toml:"hook_commits_limit" validate:"gte=0"`

	// ExecuteAllProjectHooks runs project hooks for every change regardless of PushEventHooksLimit
	ExecuteAllProjectHooks bool `toml:"execute_all_project_hooks"`
	// CreateAllPipelines requests pipelines for every change regardless of PipelineProcessLimit
	CreateAllPipelines bool `toml:"create_all_pipelines"`
}

// DefaultLimits returns the stock limits
func DefaultLimits() Limits {
	return Limits{
		PipelineProcessLimit:     DefaultPipelineProcessLimit,
		ProcessCommitLimit:       DefaultProcessCommitLimit,
		PushEventHooksLimit:      DefaultPushEventHooksLimit,
		PushEventActivitiesLimit: DefaultPushEventActivitiesLimit,
		WikiMaxChanges:           DefaultWikiMaxChanges,
		HookCommitsLimit:         DefaultHookCommitsLimit,
	}
}

// ProcessingOutcome is what a bounded enumeration actually covered
type ProcessingOutcome struct {
	Processed         int `json:"processed"`
	SkippedDueToLimit int `json:"skipped_due_to_limit"`
}

// Overflowed reports whether the limit cut the enumeration short
func (o ProcessingOutcome) Overflowed() bool {
	return o.SkippedDueToLimit > 0
}

// ProcessCommitWorkerPool hands out increasing enqueue delays to spread
// commit processing jobs of one push. It is not safe for concurrent use.
type ProcessCommitWorkerPool struct {
	poolSize int
	interval time.Duration

	counter int
	delay   time.Duration
}

// NewProcessCommitWorkerPool creates a delay allocator advancing by interval every poolSize jobs
func NewProcessCommitWorkerPool(poolSize int, interval time.Duration) *ProcessCommitWorkerPool {
	if poolSize <= 0 {
		poolSize = DefaultCommitWorkerPoolSize
	}
	return &ProcessCommitWorkerPool{
		poolSize: poolSize,
		interval: interval,
	}
}

// GetAndIncrementDelay returns the delay for the next job. A nil pool always yields zero.
func (p *ProcessCommitWorkerPool) GetAndIncrementDelay() time.Duration {
	if p == nil {
		return 0
	}

	current := p.delay
	p.counter++
	if p.counter >= p.poolSize {
		p.delay += p.interval
		p.counter = 0
	}
	return current
}

package usecase

import (
	"time"

	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// HousekeepingConfig controls how often repositories are repacked
type HousekeepingConfig struct {
	IncrementalRepackPeriod int `toml:"incremental_repack_period" validate:"gte=0"`
	FullRepackPeriod        int `toml:"full_repack_period" validate:"gte=0"`
}

func DefaultHousekeepingConfig() HousekeepingConfig {
	return HousekeepingConfig{
		IncrementalRepackPeriod: 10,
		FullRepackPeriod:        200,
	}
}

// UseCase implements push processing and the asynchronous job handlers
type UseCase struct {
	db        interfaces.Database
	repos     interfaces.RepositoryOpener
	queue     interfaces.JobQueue
	pipelines interfaces.PipelineCreator

	lease     interfaces.Lease
	counter   interfaces.Counter
	fileCache interfaces.FileTypeCache
	tracker   interfaces.ErrorTracker
	hooks     interfaces.HookSender
	jira      interfaces.JiraClient
	chat      interfaces.ChatNotifier

	systemHooks  []model.SystemHook
	limits       model.Limits
	housekeeping HousekeepingConfig
	poolSize     int
	poolInterval time.Duration
	clock        func() time.Time
}

var (
	_ interfaces.PostReceiveUseCase = (*UseCase)(nil)
	_ interfaces.JobRunner          = (*UseCase)(nil)
)

type Option func(*UseCase)

func WithLimits(limits model.Limits) Option {
	return func(uc *UseCase) { uc.limits = limits }
}

func WithSystemHooks(hooks []model.SystemHook) Option {
	return func(uc *UseCase) { uc.systemHooks = hooks }
}

func WithLease(lease interfaces.Lease) Option {
	return func(uc *UseCase) { uc.lease = lease }
}

func WithCounter(counter interfaces.Counter) Option {
	return func(uc *UseCase) { uc.counter = counter }
}

func WithFileTypeCache(cache interfaces.FileTypeCache) Option {
	return func(uc *UseCase) { uc.fileCache = cache }
}

func WithErrorTracker(tracker interfaces.ErrorTracker) Option {
	return func(uc *UseCase) { uc.tracker = tracker }
}

func WithHookSender(sender interfaces.HookSender) Option {
	return func(uc *UseCase) { uc.hooks = sender }
}

func WithJiraClient(client interfaces.JiraClient) Option {
	return func(uc *UseCase) { uc.jira = client }
}

func WithChatNotifier(notifier interfaces.ChatNotifier) Option {
	return func(uc *UseCase) { uc.chat = notifier }
}

func WithHousekeeping(cfg HousekeepingConfig) Option {
	return func(uc *UseCase) { uc.housekeeping = cfg }
}

// WithCommitWorkerPool sets the delay allocator used for commit processing jobs of one push
func WithCommitWorkerPool(size int, interval time.Duration) Option {
	return func(uc *UseCase) {
		uc.poolSize = size
		uc.poolInterval = interval
	}
}

func WithClock(clock func() time.Time) Option {
	return func(uc *UseCase) { uc.clock = clock }
}

// New creates the push processing use case
func New(db interfaces.Database, repos interfaces.RepositoryOpener, queue interfaces.JobQueue, pipelines interfaces.PipelineCreator, opts ...Option) *UseCase {
	uc := &UseCase{
		db:           db,
		repos:        repos,
		queue:        queue,
		pipelines:    pipelines,
		tracker:      logTracker{},
		limits:       model.DefaultLimits(),
		housekeeping: DefaultHousekeepingConfig(),
		poolSize:     model.DefaultCommitWorkerPoolSize,
		poolInterval: model.DefaultCommitWorkerDelayInterval,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

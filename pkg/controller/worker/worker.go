package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency     = 4
	DefaultMaxRetries      = 5
	DefaultRetryBaseDelay  = 15 * time.Second
	DefaultPollTimeout     = time.Second
	DefaultPromoteInterval = time.Second

	maxRetryDelay = time.Hour
)

// Worker consumes queued jobs and runs them with bounded concurrency
type Worker struct {
	id       string
	consumer interfaces.JobConsumer
	runner   interfaces.JobRunner
	tracker  interfaces.ErrorTracker

	concurrency     int
	limiter         *rate.Limiter
	maxRetries      int
	retryBaseDelay  time.Duration
	pollTimeout     time.Duration
	promoteInterval time.Duration
	clock           func() time.Time
}

type Option func(*Worker)

// WithID names the processing list of this worker. It must be stable across restarts
// so that jobs left unfinished by a crash are picked up again.
func WithID(id string) Option {
	return func(w *Worker) {
		if id != "" {
			w.id = id
		}
	}
}

func WithConcurrency(n int) Option {
	return func(w *Worker) { w.concurrency = n }
}

// WithRate limits how many jobs start per second. Zero means unlimited.
func WithRate(perSecond float64, burst int) Option {
	return func(w *Worker) {
		if perSecond <= 0 {
			w.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithMaxRetries(n int) Option {
	return func(w *Worker) { w.maxRetries = n }
}

func WithRetryBaseDelay(d time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = d }
}

func WithPollTimeout(d time.Duration) Option {
	return func(w *Worker) { w.pollTimeout = d }
}

func WithPromoteInterval(d time.Duration) Option {
	return func(w *Worker) { w.promoteInterval = d }
}

func WithErrorTracker(tracker interfaces.ErrorTracker) Option {
	return func(w *Worker) { w.tracker = tracker }
}

func WithClock(clock func() time.Time) Option {
	return func(w *Worker) { w.clock = clock }
}

// New creates a Worker
func New(consumer interfaces.JobConsumer, runner interfaces.JobRunner, opts ...Option) *Worker {
	w := &Worker{
		id:              defaultID(),
		consumer:        consumer,
		runner:          runner,
		tracker:         logTracker{},
		concurrency:     DefaultConcurrency,
		limiter:         rate.NewLimiter(rate.Inf, 0),
		maxRetries:      DefaultMaxRetries,
		retryBaseDelay:  DefaultRetryBaseDelay,
		pollTimeout:     DefaultPollTimeout,
		promoteInterval: DefaultPromoteInterval,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes jobs until ctx is cancelled. In-flight jobs are allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx).With("worker_id", w.id)
	ctx = ctxlog.With(ctx, logger)

	recovered, err := w.consumer.Recover(ctx, w.id)
	if err != nil {
		return goerr.Wrap(err, "failed to recover unfinished jobs")
	}
	logger.Info("worker started",
		"concurrency", w.concurrency,
		"max_retries", w.maxRetries,
		"recovered", recovered,
	)

	var loops errgroup.Group
	loops.Go(func() error {
		w.promoteLoop(ctx)
		return nil
	})

	var jobs errgroup.Group
	jobs.SetLimit(w.concurrency)

	err = w.consume(ctx, &jobs)

	_ = jobs.Wait()
	_ = loops.Wait()
	logger.Info("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, jobs *errgroup.Group) error {
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}

		job, err := w.consumer.Dequeue(ctx, w.id, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return goerr.Wrap(err, "failed to consume job queue")
		}
		if job == nil {
			continue
		}

		jobCtx := context.WithoutCancel(ctx)
		jobs.Go(func() error {
			w.Handle(jobCtx, job)
			return nil
		})
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.promoteInterval)
	defer ticker.Stop()

	for {
		if n, err := w.consumer.PromoteScheduled(ctx, w.clock()); err != nil {
			if ctx.Err() != nil {
				return
			}
			ctxlog.From(ctx).Warn("failed to promote scheduled jobs", "error", err)
		} else if n > 0 {
			ctxlog.From(ctx).Debug("promoted scheduled jobs", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Handle runs one job and decides between done, retry and drop
func (w *Worker) Handle(ctx context.Context, job *model.Job) {
	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("job_id", job.ID, "job_class", string(job.Class), "retry", job.Retry))
	logger := ctxlog.From(ctx)

	tags := map[string]string{"job_class": string(job.Class), "job_id": job.ID}

	start := w.clock()
	err := w.run(ctx, job)
	switch {
	case err == nil:
		logger.Debug("job done", "duration_ms", w.clock().Sub(start).Milliseconds())
	case errors.Is(err, model.ErrUnknownJob):
		w.tracker.Report(ctx, err, tags)
	case job.Retry >= w.maxRetries:
		w.tracker.Report(ctx, goerr.Wrap(err, "job dropped after retries", goerr.V("retry", job.Retry)), tags)
	default:
		delay := w.RetryDelay(job.Retry)
		logger.Warn("job failed, retrying", "error", err, "delay", delay)
		if rerr := w.consumer.Retry(ctx, w.id, job, delay); rerr != nil {
			w.tracker.Report(ctx, rerr, tags)
		}
		return
	}

	// an unacknowledged job stays in the processing list and runs again after restart
	if aerr := w.consumer.Ack(ctx, w.id, job); aerr != nil {
		w.tracker.Report(ctx, aerr, tags)
	}
}

func (w *Worker) run(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.From(ctx).Error("panic in job", "recover", r, "stack", string(debug.Stack()))
			err = goerr.New("job panicked", goerr.V("recover", fmt.Sprint(r)))
		}
	}()
	return w.runner.RunJob(ctx, job)
}

// RetryDelay doubles the base delay per attempt, capped at one hour
func (w *Worker) RetryDelay(retry int) time.Duration {
	delay := w.retryBaseDelay
	for range retry {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func defaultID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}

type logTracker struct{}

func (logTracker) Report(ctx context.Context, err error, tags map[string]string) {
	ctxlog.From(ctx).Error("job error", "error", err, "tags", tags)
}

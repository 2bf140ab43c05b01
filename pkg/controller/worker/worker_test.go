package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	goredis "github.com/redis/go-redis/v9"

	"github.com/m-mizutani/refhook/pkg/controller/worker"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/infra/redis"
)

type retryCall struct {
	job   model.Job
	delay time.Duration
}

// fakeConsumer only records acks and retries; Handle never dequeues
type fakeConsumer struct {
	acks    []string
	retries []retryCall
}

func (f *fakeConsumer) Recover(ctx context.Context, consumer string) (int, error) {
	return 0, nil
}

func (f *fakeConsumer) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*model.Job, error) {
	return nil, nil
}

func (f *fakeConsumer) Ack(ctx context.Context, consumer string, job *model.Job) error {
	f.acks = append(f.acks, job.ID)
	return nil
}

func (f *fakeConsumer) PromoteScheduled(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (f *fakeConsumer) Retry(ctx context.Context, consumer string, job *model.Job, delay time.Duration) error {
	f.retries = append(f.retries, retryCall{job: *job, delay: delay})
	return nil
}

type runnerFunc func(ctx context.Context, job *model.Job) error

func (f runnerFunc) RunJob(ctx context.Context, job *model.Job) error { return f(ctx, job) }

type fakeTracker struct {
	mu   sync.Mutex
	errs []error
}

func (f *fakeTracker) Report(ctx context.Context, err error, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeTracker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func TestWorker_Handle(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name        string
		retry       int
		runErr      error
		panics      bool
		wantRetries int
		wantReports int
		wantAck     bool
	}{
		{
			name:    "success",
			wantAck: true,
		},
		{
			name:        "failure is retried",
			retry:       1,
			runErr:      errBoom,
			wantRetries: 1,
		},
		{
			name:        "exhausted retries are dropped and reported",
			retry:       worker.DefaultMaxRetries,
			runErr:      errBoom,
			wantReports: 1,
			wantAck:     true,
		},
		{
			name:        "unknown job is dropped without retry",
			runErr:      goerr.Wrap(model.ErrUnknownJob, "no handler"),
			wantReports: 1,
			wantAck:     true,
		},
		{
			name:        "panic counts as failure",
			panics:      true,
			wantRetries: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &fakeConsumer{}
			tracker := &fakeTracker{}
			runner := runnerFunc(func(ctx context.Context, job *model.Job) error {
				if tt.panics {
					panic("job exploded")
				}
				return tt.runErr
			})

			w := worker.New(consumer, runner,
				worker.WithErrorTracker(tracker),
				worker.WithRetryBaseDelay(time.Second),
			)
			w.Handle(context.Background(), &model.Job{ID: "job-1", Class: model.JobWebHook, Retry: tt.retry})

			gt.A(t, consumer.retries).Length(tt.wantRetries)
			gt.Equal(t, tracker.count(), tt.wantReports)
			gt.Equal(t, len(consumer.acks) == 1, tt.wantAck)
			if tt.wantRetries > 0 {
				gt.Equal(t, consumer.retries[0].delay, w.RetryDelay(tt.retry))
			}
		})
	}
}

func TestWorker_RetryDelay(t *testing.T) {
	w := worker.New(&fakeConsumer{}, nil, worker.WithRetryBaseDelay(15*time.Second))

	gt.Equal(t, w.RetryDelay(0), 15*time.Second)
	gt.Equal(t, w.RetryDelay(1), 30*time.Second)
	gt.Equal(t, w.RetryDelay(3), 120*time.Second)
	gt.Equal(t, w.RetryDelay(20), time.Hour)
}

func TestWorker_Run(t *testing.T) {
	mini := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := redis.NewWithClient(rdb, "refhook-test:"+t.Name()+":")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := queue.PerformAsync(ctx, model.JobWebHook, model.WebHookArgs{HookID: 1})
	gt.NoError(t, err)
	_, err = queue.PerformAsync(ctx, model.JobProjectCache, model.ProjectCacheArgs{ProjectID: 1})
	gt.NoError(t, err)

	var (
		mu    sync.Mutex
		calls = map[model.JobClass]int{}
		done  = make(chan struct{})
	)
	runner := runnerFunc(func(ctx context.Context, job *model.Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls[job.Class]++
		if job.Class == model.JobWebHook && job.Retry == 0 {
			return errors.New("temporary failure")
		}
		if calls[model.JobWebHook] == 2 && calls[model.JobProjectCache] == 1 {
			close(done)
		}
		return nil
	})

	w := worker.New(queue, runner,
		worker.WithID("worker-a"),
		worker.WithConcurrency(2),
		worker.WithRate(100, 10),
		worker.WithRetryBaseDelay(10*time.Millisecond),
		worker.WithPollTimeout(50*time.Millisecond),
		worker.WithPromoteInterval(10*time.Millisecond),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not processed")
	}
	cancel()

	select {
	case err := <-errCh:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	ready, scheduled, err := queue.QueueLength(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, ready, int64(0))
	gt.Equal(t, scheduled, int64(0))
	inFlight, err := queue.ProcessingLength(context.Background(), "worker-a")
	gt.NoError(t, err)
	gt.Equal(t, inFlight, int64(0))
}

func TestWorker_RunResumesUnfinishedJobs(t *testing.T) {
	mini := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := redis.NewWithClient(rdb, "refhook-test:"+t.Name()+":")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := queue.PerformAsync(ctx, model.JobHousekeeping, model.HousekeepingArgs{})
	gt.NoError(t, err)
	// a previous run took the job and died before finishing it
	_, err = queue.Dequeue(ctx, "worker-a", time.Second)
	gt.NoError(t, err)

	done := make(chan string, 1)
	runner := runnerFunc(func(ctx context.Context, job *model.Job) error {
		done <- job.ID
		return nil
	})

	w := worker.New(queue, runner,
		worker.WithID("worker-a"),
		worker.WithPollTimeout(50*time.Millisecond),
		worker.WithPromoteInterval(10*time.Millisecond),
	)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case got := <-done:
		gt.Equal(t, got, id)
	case <-time.After(5 * time.Second):
		t.Fatal("unfinished job was not resumed")
	}
	cancel()
	gt.NoError(t, <-errCh)

	inFlight, err := queue.ProcessingLength(context.Background(), "worker-a")
	gt.NoError(t, err)
	gt.Equal(t, inFlight, int64(0))
}

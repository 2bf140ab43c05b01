package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	goredis "github.com/redis/go-redis/v9"
)

const promoteBatchSize = 100

var (
	_ interfaces.JobQueue    = (*Client)(nil)
	_ interfaces.JobConsumer = (*Client)(nil)
)

// promoteScript moves due jobs from the scheduled set to the ready list atomically
var promoteScript = goredis.NewScript(`
local jobs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(jobs) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LPUSH', KEYS[2], job)
end
return #jobs
`)

// recoverScript moves every job of a processing list back to the ready list
var recoverScript = goredis.NewScript(`
local n = 0
while redis.call('RPOPLPUSH', KEYS[1], KEYS[2]) do
	n = n + 1
end
return n
`)

func (c *Client) readyKey() string     { return c.key("queue", "ready") }
func (c *Client) scheduledKey() string { return c.key("queue", "scheduled") }

func (c *Client) processingKey(consumer string) string {
	return c.key("queue", "processing", consumer)
}

func (c *Client) newJob(class model.JobClass, args any) (*model.Job, []byte, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal job args", goerr.V("class", class))
	}
	job := &model.Job{
		ID:         uuid.NewString(),
		Class:      class,
		Args:       raw,
		EnqueuedAt: c.clock().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal job", goerr.V("class", class))
	}
	return job, data, nil
}

// PerformAsync enqueues a job for immediate execution
func (c *Client) PerformAsync(ctx context.Context, class model.JobClass, args any) (string, error) {
	job, data, err := c.newJob(class, args)
	if err != nil {
		return "", err
	}
	if err := c.rdb.LPush(ctx, c.readyKey(), data).Err(); err != nil {
		return "", goerr.Wrap(err, "failed to enqueue job", goerr.V("class", class))
	}
	return job.ID, nil
}

// PerformIn schedules a job to become ready after delay. A non-positive delay enqueues immediately.
func (c *Client) PerformIn(ctx context.Context, delay time.Duration, class model.JobClass, args any) (string, error) {
	if delay <= 0 {
		return c.PerformAsync(ctx, class, args)
	}

	job, data, err := c.newJob(class, args)
	if err != nil {
		return "", err
	}
	if err := c.schedule(ctx, data, c.clock().Add(delay)); err != nil {
		return "", goerr.Wrap(err, "failed to schedule job", goerr.V("class", class), goerr.V("delay", delay))
	}
	return job.ID, nil
}

func (c *Client) schedule(ctx context.Context, data []byte, at time.Time) error {
	return c.rdb.ZAdd(ctx, c.scheduledKey(), goredis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	}).Err()
}

// Recover returns jobs a previous run of consumer dequeued but never finished to the ready list
func (c *Client) Recover(ctx context.Context, consumer string) (int, error) {
	n, err := recoverScript.Run(ctx, c.rdb, []string{c.processingKey(consumer), c.readyKey()}).Int()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to recover processing jobs", goerr.V("consumer", consumer))
	}
	return n, nil
}

// Dequeue blocks up to timeout and returns nil when no job became ready.
// The job is moved to the consumer's processing list until Ack or Retry.
func (c *Client) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*model.Job, error) {
	data, err := c.rdb.BLMove(ctx, c.readyKey(), c.processingKey(consumer), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to dequeue job")
	}

	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		// undecodable entries would be recovered forever
		if rerr := c.rdb.LRem(ctx, c.processingKey(consumer), 1, data).Err(); rerr != nil {
			return nil, goerr.Wrap(rerr, "failed to discard broken job", goerr.V("data", data))
		}
		return nil, goerr.Wrap(err, "failed to unmarshal job", goerr.V("data", data))
	}
	job.Raw = []byte(data)
	return &job, nil
}

// Ack removes a finished job from the consumer's processing list
func (c *Client) Ack(ctx context.Context, consumer string, job *model.Job) error {
	if err := c.rdb.LRem(ctx, c.processingKey(consumer), 1, job.Raw).Err(); err != nil {
		return goerr.Wrap(err, "failed to acknowledge job", goerr.V("job_id", job.ID))
	}
	return nil
}

// PromoteScheduled moves jobs due at now to the ready list and returns how many moved
func (c *Client) PromoteScheduled(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, c.rdb,
		[]string{c.scheduledKey(), c.readyKey()},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatchSize,
	).Int()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to promote scheduled jobs")
	}
	return n, nil
}

// Retry increments the retry count and schedules the job after delay.
// Scheduling and removal from the processing list happen in one transaction.
func (c *Client) Retry(ctx context.Context, consumer string, job *model.Job, delay time.Duration) error {
	retried := *job
	retried.Retry++
	data, err := json.Marshal(&retried)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal job", goerr.V("job_id", job.ID))
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, c.scheduledKey(), goredis.Z{
			Score:  float64(c.clock().Add(delay).UnixMilli()),
			Member: data,
		})
		pipe.LRem(ctx, c.processingKey(consumer), 1, job.Raw)
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to schedule retry", goerr.V("job_id", job.ID), goerr.V("retry", retried.Retry))
	}
	return nil
}

// ProcessingLength returns the number of jobs consumer holds unfinished
func (c *Client) ProcessingLength(ctx context.Context, consumer string) (int64, error) {
	n, err := c.rdb.LLen(ctx, c.processingKey(consumer)).Result()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count processing jobs", goerr.V("consumer", consumer))
	}
	return n, nil
}

// QueueLength returns the number of ready and scheduled jobs
func (c *Client) QueueLength(ctx context.Context) (ready, scheduled int64, err error) {
	if ready, err = c.rdb.LLen(ctx, c.readyKey()).Result(); err != nil {
		return 0, 0, goerr.Wrap(err, "failed to count ready jobs")
	}
	if scheduled, err = c.rdb.ZCard(ctx, c.scheduledKey()).Result(); err != nil {
		return 0, 0, goerr.Wrap(err, "failed to count scheduled jobs")
	}
	return ready, scheduled, nil
}

package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	goredis "github.com/redis/go-redis/v9"
)

var (
	_ interfaces.Counter       = (*Client)(nil)
	_ interfaces.FileTypeCache = (*Client)(nil)
)

func (c *Client) Increment(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.key("counter", key)).Result()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to increment counter", goerr.V("key", key))
	}
	return n, nil
}

func (c *Client) Reset(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key("counter", key)).Err(); err != nil {
		return goerr.Wrap(err, "failed to reset counter", goerr.V("key", key))
	}
	return nil
}

// TrackEvent counts a usage event per project
func (c *Client) TrackEvent(ctx context.Context, name string, projectID int64) error {
	field := strconv.FormatInt(projectID, 10)
	if err := c.rdb.HIncrBy(ctx, c.key("usage", name), field, 1).Err(); err != nil {
		return goerr.Wrap(err, "failed to track event", goerr.V("event", name), goerr.V("project_id", projectID))
	}
	return nil
}

// EventCount returns how many times a usage event was tracked for a project
func (c *Client) EventCount(ctx context.Context, name string, projectID int64) (int64, error) {
	n, err := c.rdb.HGet(ctx, c.key("usage", name), strconv.FormatInt(projectID, 10)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read event count", goerr.V("event", name))
	}
	return n, nil
}

func (c *Client) fileTypesKey(projectID int64) string {
	return c.key("project", strconv.FormatInt(projectID, 10), "file_types")
}

func (c *Client) statisticsKey(projectID int64) string {
	return c.key("project", strconv.FormatInt(projectID, 10), "commit_count")
}

// SetFileTypes replaces the detected file type to path mapping
func (c *Client) SetFileTypes(ctx context.Context, projectID int64, types map[string]string) error {
	key := c.fileTypesKey(projectID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(types) > 0 {
			values := make([]any, 0, len(types)*2)
			for fileType, path := range types {
				values = append(values, fileType, path)
			}
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to set file types", goerr.V("project_id", projectID))
	}
	return nil
}

func (c *Client) GetFileTypes(ctx context.Context, projectID int64) (map[string]string, error) {
	types, err := c.rdb.HGetAll(ctx, c.fileTypesKey(projectID)).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get file types", goerr.V("project_id", projectID))
	}
	return types, nil
}

func (c *Client) SetStatistics(ctx context.Context, projectID int64, commitCount int) error {
	if err := c.rdb.Set(ctx, c.statisticsKey(projectID), commitCount, 0).Err(); err != nil {
		return goerr.Wrap(err, "failed to set statistics", goerr.V("project_id", projectID))
	}
	return nil
}

// Statistics returns the cached commit count, or zero when never computed
func (c *Client) Statistics(ctx context.Context, projectID int64) (int, error) {
	n, err := c.rdb.Get(ctx, c.statisticsKey(projectID)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get statistics", goerr.V("project_id", projectID))
	}
	return n, nil
}

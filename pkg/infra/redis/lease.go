package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	goredis "github.com/redis/go-redis/v9"
)

var _ interfaces.Lease = (*Client)(nil)

var cancelLeaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func (c *Client) leaseKey(key string) string { return c.key("lease", key) }

// TryObtain returns an empty uuid when another holder owns the lease
func (c *Client) TryObtain(ctx context.Context, key string, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, c.leaseKey(key), id, ttl).Result()
	if err != nil {
		return "", goerr.Wrap(err, "failed to obtain lease", goerr.V("key", key))
	}
	if !ok {
		return "", nil
	}
	return id, nil
}

// Cancel releases the lease only if id still holds it
func (c *Client) Cancel(ctx context.Context, key, id string) error {
	if err := cancelLeaseScript.Run(ctx, c.rdb, []string{c.leaseKey(key)}, id).Err(); err != nil {
		return goerr.Wrap(err, "failed to cancel lease", goerr.V("key", key))
	}
	return nil
}

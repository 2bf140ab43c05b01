package redis

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "refhook:"

// Config defines Redis connection settings
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Client provides the job queue, lease, counters and caches on Redis
type Client struct {
	rdb    *goredis.Client
	prefix string
	clock  func() time.Time
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg Config) (*Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", addr))
	}

	return NewWithClient(rdb, cfg.Prefix), nil
}

// NewWithClient wraps an existing go-redis client
func NewWithClient(rdb *goredis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix, clock: time.Now}
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return goerr.Wrap(err, "failed to close redis client")
	}
	return nil
}

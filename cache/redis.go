package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	fieldValue    = "v"
	fieldAbsolute = "a"
	fieldSliding  = "s"
)

type redisStore struct {
	client *redis.Client
	owned  bool
	cfg    config
}

var _ SetStore = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis.
// The caller owns the redis.Client lifecycle; Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) SetStore {
	cfg := applyOptions(opts)
	return &redisStore{
		client: client,
		cfg:    cfg,
	}
}

// OpenRedis connects to the Redis server described by connection, which is
// either a redis:// URL or a bare host:port address. The returned store owns
// the client and closes it on Close.
func OpenRedis(connection string, opts ...Option) (SetStore, error) {
	var options *redis.Options
	if strings.Contains(connection, "://") {
		parsed, err := redis.ParseURL(connection)
		if err != nil {
			return nil, errors.Wrap(err, "cache: invalid redis url")
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: connection}
	}
	cfg := applyOptions(opts)
	return &redisStore{
		client: redis.NewClient(options),
		owned:  true,
		cfg:    cfg,
	}, nil
}

func (c *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *redisStore) prefixKey(key string) string {
	if c.cfg.prefix == "" {
		return key
	}
	return c.cfg.prefix + ":" + key
}

func parseMillis(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (c *redisStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	k := c.prefixKey(key)
	vals, err := c.client.HMGet(qctx, k, fieldValue, fieldAbsolute, fieldSliding).Result()
	if err != nil {
		return false, nil, err
	}
	data, ok := vals[0].(string)
	if !ok {
		return false, nil, nil
	}
	if sliding := time.Duration(parseMillis(vals[2])) * time.Millisecond; sliding > 0 {
		var absolute time.Time
		if ms := parseMillis(vals[1]); ms > 0 {
			absolute = time.UnixMilli(ms)
		}
		now := c.cfg.now()
		if ttl := slide(now, sliding, absolute).Sub(now); ttl > 0 {
			if err := c.client.PExpire(qctx, k, ttl).Err(); err != nil {
				return false, nil, err
			}
		}
	}
	return true, []byte(data), nil
}

func (c *redisStore) Set(ctx context.Context, key string, payload []byte, exp Expiration) error {
	now := c.cfg.now()
	absolute, expires, err := exp.Deadlines(now)
	if err != nil {
		return err
	}
	var absoluteMillis int64
	if !absolute.IsZero() {
		absoluteMillis = absolute.UnixMilli()
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	k := c.prefixKey(key)
	pipe := c.client.TxPipeline()
	pipe.Del(qctx, k)
	pipe.HSet(qctx, k, fieldValue, payload, fieldAbsolute, absoluteMillis, fieldSliding, exp.Sliding.Milliseconds())
	if !expires.IsZero() {
		pipe.PExpire(qctx, k, expires.Sub(now))
	}
	_, err = pipe.Exec(qctx)
	return err
}

func (c *redisStore) Remove(ctx context.Context, key string) (bool, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	result, err := c.client.Del(qctx, c.prefixKey(key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func (c *redisStore) AddMember(ctx context.Context, key string, member string) error {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.client.SAdd(qctx, c.prefixKey(key), member).Err()
}

func (c *redisStore) Members(ctx context.Context, key string) ([]string, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.client.SMembers(qctx, c.prefixKey(key)).Result()
}

// Close closes the client only when the store created it.
func (c *redisStore) Close() error {
	if c.owned {
		return c.client.Close()
	}
	return nil
}

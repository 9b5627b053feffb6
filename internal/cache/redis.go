package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"uwhoisd/internal/log"
)

// RedisOpts formalizes configuration options for the redis backend.
type RedisOpts struct {
	// Address is the host:port of the redis server.
	Address string
	// Password authenticates with the server, if set.
	Password string
	// Database selects the logical database.
	Database int
	// KeyPrefix namespaces cache keys so several deployments can share one server.
	KeyPrefix string
	// Timeout bounds each redis operation. Defaults to 100ms.
	Timeout time.Duration
}

// Redis stores responses in a redis server, shared by every proxy instance pointing at it. Redis
// expires entries itself, MaxAge after they were written. Redis failures degrade to cache misses.
type Redis struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  log.Logger
}

// NewRedis creates a redis-backed cache. The connection is established lazily.
func NewRedis(opts RedisOpts, maxAge time.Duration, logger log.Logger) (*Redis, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("cache: missing redis address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.Database,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})

	return newRedisWithClient(client, opts, maxAge, logger), nil
}

func newRedisWithClient(client redis.Cmdable, opts RedisOpts, maxAge time.Duration, logger log.Logger) *Redis {
	if opts.Timeout <= 0 {
		opts.Timeout = 100 * time.Millisecond
	}

	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	return &Redis{
		client:  client,
		prefix:  opts.KeyPrefix,
		ttl:     maxAge,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Get looks up the response stored for key.
func (r *Redis) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}

	if err != nil {
		r.warn("cache: redis get failed; treating as miss: key=%s err=%v", key, err)
		return "", false
	}

	return value, true
}

// Set stores value for key with the configured expiry.
func (r *Redis) Set(key string, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		r.warn("cache: redis set failed: key=%s err=%v", key, err)
	}
}

func (r *Redis) warn(format string, v ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(format, v...)
	}
}

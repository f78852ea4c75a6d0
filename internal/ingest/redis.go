package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPopTimeout bounds each BRPOP call so Read stays responsive
// to context cancellation even when the list is empty.
const DefaultRedisPopTimeout = 5 * time.Second

// RedisSource reads events off a Redis list via a blocking right-pop, a
// supplemental ingest mode generalizing the teacher's own
// readLogsFromRedis (which used LRANGE against a fixed key on a polling
// loop); BRPOP turns that into a proper blocking read.
type RedisSource struct {
	Addr     string
	Password string
	DB       int
	ListKey  string
	Timeout  time.Duration

	client *redis.Client
}

// NewRedisSource builds a source with a default 5s pop timeout when zero
// is passed.
func NewRedisSource(addr, password string, db int, listKey string, timeout time.Duration) *RedisSource {
	if timeout <= 0 {
		timeout = DefaultRedisPopTimeout
	}
	return &RedisSource{Addr: addr, Password: password, DB: db, ListKey: listKey, Timeout: timeout}
}

func (r *RedisSource) Connect(ctx context.Context) error {
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})
	return r.client.Ping(ctx).Err()
}

func (r *RedisSource) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Read blocks for up to Timeout waiting for an element to appear on
// ListKey. A timeout with nothing popped is not an error: the caller is
// expected to call Read again.
func (r *RedisSource) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := r.client.BRPop(ctx, r.Timeout, r.ListKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis brpop %s: %w", r.ListKey, err)
		}
		// result is [key, value]; BRPop guarantees len == 2 on success.
		return []byte(result[1]), nil
	}
}

// internal/kv/redis.go
//
// Redis implementation of the Store interface (go-redis v9).
//
// Behavior:
//   - Each call runs under its own timeout so a stalled connection never hangs a request.
//   - Client-side retries are disabled; callers decide what to retry.
//   - Network and timeout failures surface as *UnavailableError (errors.Is ErrUnavailable).
//   - Redis reply errors (e.g. WRONGTYPE) are returned as ordinary errors.

package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single store round trip when none is configured.
const DefaultTimeout = 2 * time.Second

// Redis wraps a go-redis client.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedis parses a redis:// or rediss:// URL and returns a connected adapter.
// The initial ping failing is reported as an UnavailableError.
func NewRedis(ctx context.Context, url string, timeout time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.MaxRetries = -1

	r := &Redis{client: redis.NewClient(opts), timeout: timeout}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.client.Ping(pctx).Err(); err != nil {
		_ = r.client.Close()
		return nil, &UnavailableError{Op: "ping", Err: err}
	}
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("connected to redis")
	return r, nil
}

// op derives the per-call context.
func (r *Redis) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// classify maps a go-redis error into the adapter's error contract.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		if strings.HasPrefix(reply.Error(), "WRONGTYPE") {
			return fmt.Errorf("redis %s %s: %w", op, key, ErrWrongType)
		}
		return fmt.Errorf("redis %s %s: %w", op, key, err)
	}
	return &UnavailableError{Op: op, Key: key, Err: err}
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	res, err := r.client.Set(ctx, key, value, ttl).Result()
	if err != nil {
		return false, classify("set", key, err)
	}
	return res == "OK", nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("get", key, err)
	}
	return v, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	return classify("del", key, r.client.Del(ctx, key).Err())
}

func (r *Redis) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify("hgetall", key, err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func (r *Redis) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	ctx, cancel := r.op(ctx)
	defer cancel()
	return classify("hset", key, r.client.HSet(ctx, key, args...).Err())
}

func (r *Redis) HashDelete(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := r.op(ctx)
	defer cancel()
	return classify("hdel", key, r.client.HDel(ctx, key, fields...).Err())
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := r.op(ctx)
	defer cancel()
	return classify("expire", key, r.client.Expire(ctx, key, ttl).Err())
}

func (r *Redis) TTL(ctx context.Context, key string) (int64, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, classify("ttl", key, err)
	}
	// go-redis passes the -1/-2 replies through unscaled.
	switch d {
	case -1:
		return TTLPersistent, nil
	case -2:
		return TTLMissing, nil
	}
	return int64(d / time.Second), nil
}

func (r *Redis) PTTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := r.op(ctx)
	defer cancel()
	d, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, classify("pttl", key, err)
	}
	switch d {
	case -1:
		return time.Duration(TTLPersistent), nil
	case -2:
		return time.Duration(TTLMissing), nil
	}
	return d, nil
}

func (r *Redis) Ping(ctx context.Context) bool {
	ctx, cancel := r.op(ctx)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed")
		return false
	}
	return true
}

func (r *Redis) Close() error { return r.client.Close() }

// Open returns the Store selected by url: "memory://" for the in-process
// store, anything else is handed to NewRedis.
func Open(ctx context.Context, url string, timeout time.Duration) (Store, error) {
	if strings.HasPrefix(url, "memory://") {
		log.Warn().Msg("using in-memory store; state is local to this process")
		return NewMemory(), nil
	}
	r, err := NewRedis(ctx, url, timeout)
	if err != nil {
		return nil, err
	}
	return r, nil
}

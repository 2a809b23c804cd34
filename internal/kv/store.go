// internal/kv/store.go
//
// Key-value store contract used by the session and rate-limit layers.
// Every operation is single-key; no multi-key transaction is assumed.
// Implementations:
//   - Redis (redis.go): shared store used in deployments.
//   - memory (memory.go): process-local store for development and tests.

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TTL sentinels, matching the Redis TTL command.
const (
	TTLPersistent int64 = -1 // key exists without an expiry
	TTLMissing    int64 = -2 // key does not exist
)

// ErrUnavailable is matched by every connectivity or timeout failure.
var ErrUnavailable = errors.New("store unavailable")

// ErrWrongType is returned when a string operation hits a hash or vice versa.
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

// UnavailableError records which operation and key failed to reach the store.
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrUnavailable, e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is matches ErrUnavailable.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Store is the adapter every component receives at construction time.
type Store interface {
	// Set writes a string value. A zero ttl stores the key without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes the key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// HashGetAll returns every field of a hash; an empty map when absent.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashSet merges fields into a hash, creating it when absent.
	HashSet(ctx context.Context, key string, fields map[string]string) error

	// HashDelete removes fields from a hash.
	HashDelete(ctx context.Context, key string, fields ...string) error

	// Expire sets the key's time to live. Missing keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining seconds, TTLPersistent, or TTLMissing.
	TTL(ctx context.Context, key string) (int64, error)

	// PTTL is TTL with millisecond precision. Keys without an expiry report
	// time.Duration(TTLPersistent) and absent keys time.Duration(TTLMissing).
	PTTL(ctx context.Context, key string) (time.Duration, error)

	// Ping reports liveness. It never fails; an unreachable store is false.
	Ping(ctx context.Context) bool

	Close() error
}

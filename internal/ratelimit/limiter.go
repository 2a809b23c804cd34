// internal/ratelimit/limiter.go
//
// Rolling-window cap on game creation per user.
//
// The counter lives at game_count:<user> with a TTL equal to what is left of
// the window. The window is anchored to the first increment: later
// increments keep the remaining TTL instead of restarting the clock, and the
// store's expiry resets the count once the window elapses.
//
// Read-then-write is not atomic; two concurrent increments may both pass.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
)

const (
	DefaultWindow = 24 * time.Hour
	DefaultMax    = 5

	keyPrefix = "game_count:"
)

// Limiter enforces Max increments per Window for each user.
type Limiter struct {
	store  kv.Store
	window time.Duration
	max    int
}

// New constructs a Limiter. Non-positive values fall back to the defaults.
func New(store kv.Store, window time.Duration, limit int) *Limiter {
	if window < time.Second {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultMax
	}
	return &Limiter{store: store, window: window, max: limit}
}

// Key returns the counter key for user.
func Key(user string) string { return keyPrefix + user }

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Max returns the configured cap.
func (l *Limiter) Max() int { return l.max }

// Count returns the user's count in the current window; 0 when absent.
func (l *Limiter) Count(ctx context.Context, user string) (int, error) {
	key := Key(user)
	v, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read rate counter: %w", err)
	}
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse rate counter %s=%q: %w", key, v, err)
	}
	return n, nil
}

// remaining converts the counter PTTL into the window left. Missing and
// persistent counters mean a fresh window; a live counter keeps whatever is
// left of its own, however small.
func (l *Limiter) remaining(ttl time.Duration) time.Duration {
	switch {
	case ttl == time.Duration(kv.TTLMissing), ttl == time.Duration(kv.TTLPersistent):
		return l.window
	case ttl < time.Millisecond:
		return time.Millisecond
	}
	return ttl
}

// Increment records one game creation and returns the new count.
// At the cap it fails with *game.RateLimitError carrying the time until reset.
func (l *Limiter) Increment(ctx context.Context, user string) (int, error) {
	key := Key(user)
	count, err := l.Count(ctx, user)
	if err != nil {
		return 0, err
	}
	ttl, err := l.store.PTTL(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read rate counter ttl: %w", err)
	}
	if ttl == time.Duration(kv.TTLMissing) {
		// Expired between the two reads.
		count = 0
	}
	left := l.remaining(ttl)

	if count >= l.max {
		log.Warn().Str("user", user).Str("key", key).Int("count", count).
			Dur("retry_after", left).Msg("rate limit exceeded")
		return count, &game.RateLimitError{Limit: l.max, Window: l.window, RetryAfter: left}
	}

	next := count + 1
	if _, err := l.store.Set(ctx, key, strconv.Itoa(next), left); err != nil {
		return 0, fmt.Errorf("write rate counter: %w", err)
	}
	log.Info().Str("user", user).Str("key", key).Int("count", next).
		Dur("resets_in", left).Msg("incremented game count")
	return next, nil
}

// Check reports whether the user is under the cap without mutating anything.
func (l *Limiter) Check(ctx context.Context, user string) (bool, error) {
	n, err := l.Count(ctx, user)
	if err != nil {
		return false, err
	}
	return n < l.max, nil
}

// Clear drops the user's counter. Administrative reset.
func (l *Limiter) Clear(ctx context.Context, user string) error {
	key := Key(user)
	if err := l.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear rate counter: %w", err)
	}
	log.Info().Str("user", user).Str("key", key).Msg("cleared game count")
	return nil
}

// internal/session/scope.go
//
// Scoping strategies decide where a session's pointer and record live.
//
//   - PerSession (default): <kind>:ongoing_game:<user> → session id, and the
//     record at <kind>:game_state:<id>. A coarse count of live sessions per
//     user (game_count:live:<user>) caps how many a user may hold.
//   - PerUser: one record at game:<kind>:state:<user>; the pointer is implied
//     by the record's existence and the id lives in its "id" field.
//
// A deployment picks one strategy for all operations.

package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
)

// DefaultMaxLive is the coarse cap on live sessions per user.
const DefaultMaxLive = 90

// Scope maps (kind, user) to a session pointer and a record key.
type Scope interface {
	Name() string

	// StateKey returns the record key for the session.
	StateKey(kind game.Kind, user, sessionID string) string

	// Resolve returns the session id the pointer refers to, or
	// game.ErrGameNotFound when there is no pointer.
	Resolve(ctx context.Context, kind game.Kind, user string) (string, error)

	// Bind points (kind, user) at sessionID. Called after the record is written.
	Bind(ctx context.Context, kind game.Kind, user, sessionID string) error

	// Unbind removes the pointer. Called after the record is deleted.
	Unbind(ctx context.Context, kind game.Kind, user string) error

	// Admit reserves a live slot for user or fails with game.ErrGameLimitExceeded.
	Admit(ctx context.Context, user string, ttl time.Duration) error

	// Release returns a live slot.
	Release(ctx context.Context, user string) error
}

// ---------------------------- per-session ----------------------------------

type perSession struct {
	store   kv.Store
	maxLive int
}

// PerSession returns the pointer-plus-record strategy.
func PerSession(store kv.Store, maxLive int) Scope {
	if maxLive <= 0 {
		maxLive = DefaultMaxLive
	}
	return &perSession{store: store, maxLive: maxLive}
}

func (p *perSession) Name() string { return "session" }

func pointerKey(kind game.Kind, user string) string {
	return fmt.Sprintf("%s:ongoing_game:%s", kind, user)
}

// LiveCountKey returns the key of the coarse live-session counter.
func LiveCountKey(user string) string { return "game_count:live:" + user }

func (p *perSession) StateKey(kind game.Kind, user, sessionID string) string {
	return fmt.Sprintf("%s:game_state:%s", kind, sessionID)
}

func (p *perSession) Resolve(ctx context.Context, kind game.Kind, user string) (string, error) {
	id, ok, err := p.store.Get(ctx, pointerKey(kind, user))
	if err != nil {
		return "", fmt.Errorf("read session pointer: %w", err)
	}
	if !ok || id == "" {
		return "", game.ErrGameNotFound
	}
	return id, nil
}

func (p *perSession) Bind(ctx context.Context, kind game.Kind, user, sessionID string) error {
	key := pointerKey(kind, user)
	// The pointer has no TTL; it lives until end (or until a stale check drops it).
	if _, err := p.store.Set(ctx, key, sessionID, 0); err != nil {
		return fmt.Errorf("write session pointer: %w", err)
	}
	log.Info().Str("user", user).Str("key", key).Str("session", sessionID).Msg("set ongoing game")
	return nil
}

func (p *perSession) Unbind(ctx context.Context, kind game.Kind, user string) error {
	if err := p.store.Delete(ctx, pointerKey(kind, user)); err != nil {
		return fmt.Errorf("delete session pointer: %w", err)
	}
	return nil
}

func (p *perSession) liveCount(ctx context.Context, key string) (int, error) {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read live game count: %w", err)
	}
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse live game count %s=%q: %w", key, v, err)
	}
	return n, nil
}

func (p *perSession) Admit(ctx context.Context, user string, ttl time.Duration) error {
	key := LiveCountKey(user)
	n, err := p.liveCount(ctx, key)
	if err != nil {
		return err
	}
	if n >= p.maxLive {
		log.Warn().Str("user", user).Str("key", key).Int("live", n).Msg("live game limit exceeded")
		return game.ErrGameLimitExceeded
	}
	if _, err := p.store.Set(ctx, key, strconv.Itoa(n+1), ttl); err != nil {
		return fmt.Errorf("write live game count: %w", err)
	}
	return nil
}

func (p *perSession) Release(ctx context.Context, user string) error {
	key := LiveCountKey(user)
	n, err := p.liveCount(ctx, key)
	if err != nil {
		return err
	}
	if n <= 1 {
		return p.store.Delete(ctx, key)
	}
	ttl, err := p.store.PTTL(ctx, key)
	if err != nil {
		return fmt.Errorf("read live game count ttl: %w", err)
	}
	switch {
	case ttl == time.Duration(kv.TTLMissing):
		return nil
	case ttl == time.Duration(kv.TTLPersistent):
		ttl = 0
	case ttl < time.Millisecond:
		ttl = time.Millisecond
	}
	if _, err := p.store.Set(ctx, key, strconv.Itoa(n-1), ttl); err != nil {
		return fmt.Errorf("write live game count: %w", err)
	}
	return nil
}

// ------------------------------ per-user -----------------------------------

type perUser struct {
	store kv.Store
}

// PerUser returns the single-record-per-user strategy.
func PerUser(store kv.Store) Scope { return &perUser{store: store} }

func (p *perUser) Name() string { return "user" }

func (p *perUser) StateKey(kind game.Kind, user, sessionID string) string {
	return fmt.Sprintf("game:%s:state:%s", kind, user)
}

func (p *perUser) Resolve(ctx context.Context, kind game.Kind, user string) (string, error) {
	fields, err := p.store.HashGetAll(ctx, p.StateKey(kind, user, ""))
	if err != nil {
		return "", fmt.Errorf("read game state: %w", err)
	}
	// A record without an id cannot be addressed as a session.
	if len(fields) == 0 || fields[game.FieldID] == "" {
		return "", game.ErrGameNotFound
	}
	return fields[game.FieldID], nil
}

// The record doubles as the pointer, so binding is a no-op.
func (p *perUser) Bind(context.Context, game.Kind, string, string) error { return nil }
func (p *perUser) Unbind(context.Context, game.Kind, string) error         { return nil }

func (p *perUser) Admit(context.Context, string, time.Duration) error { return nil }
func (p *perUser) Release(context.Context, string) error              { return nil }

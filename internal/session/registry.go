// internal/session/registry.go
//
// Session registry: at most one live session per (user, kind).
// Responsibilities:
//   - Create: reject when a live session exists (returning its id), enforce the
//     coarse live cap and the rolling-window limiter, then write the initial
//     record followed by the pointer.
//   - Lookup / Record / State / Save: resolve the pointer and touch the record.
//   - End: delete the record, then the pointer, then release the live slot.
//
// Notes:
//   - A pointer whose record has expired is stale and reads as not found.
//   - Create is a read-check-write sequence across several keys and is not
//     atomic; two concurrent creates for one user may both succeed.
//   - Archive calls are best effort and never fail the operation.

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/gamestate"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
	"github.com/llmbattles/battleground/apps/go-server/internal/ratelimit"
)

// Entry describes a session for the archive.
type Entry struct {
	ID    string
	Kind  game.Kind
	Host  string
	State string
	At    time.Time
}

// Archive receives session lifecycle events.
type Archive interface {
	Started(ctx context.Context, e Entry) error
	Ended(ctx context.Context, e Entry) error
}

// Options are the registry's collaborators.
type Options struct {
	Store      kv.Store
	Limiter    *ratelimit.Limiter
	Scope      Scope            // defaults to PerSession(Store, DefaultMaxLive)
	Expiration time.Duration    // record TTL; defaults to gamestate.DefaultExpiration
	Archive    Archive          // optional
	Now        func() time.Time // defaults to time.Now
	NewID      func() string    // defaults to uuid.NewString
}

// Registry manages sessions of one game kind.
type Registry[T any] struct {
	def     game.Definition[T]
	scope   Scope
	states  *gamestate.Store
	limiter *ratelimit.Limiter
	archive Archive
	now     func() time.Time
	newID   func() string
}

// New constructs a Registry for def.
func New[T any](def game.Definition[T], opts Options) *Registry[T] {
	if opts.Scope == nil {
		opts.Scope = PerSession(opts.Store, DefaultMaxLive)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(opts.Store, ratelimit.DefaultWindow, ratelimit.DefaultMax)
	}
	return &Registry[T]{
		def:     def,
		scope:   opts.Scope,
		states:  gamestate.New(opts.Store, opts.Expiration),
		limiter: opts.Limiter,
		archive: opts.Archive,
		now:     opts.Now,
		newID:   opts.NewID,
	}
}

// Kind returns the game kind this registry serves.
func (r *Registry[T]) Kind() game.Kind { return r.def.Kind }

// Scope returns the scoping strategy in use.
func (r *Registry[T]) Scope() Scope { return r.scope }

// resolve finds the user's session. live is false when the pointer exists
// but its record has expired.
func (r *Registry[T]) resolve(ctx context.Context, user string) (id, key string, live bool, err error) {
	id, err = r.scope.Resolve(ctx, r.def.Kind, user)
	if err != nil {
		return "", "", false, err
	}
	key = r.scope.StateKey(r.def.Kind, user, id)
	live, err = r.states.Exists(ctx, key)
	if err != nil {
		return "", "", false, err
	}
	return id, key, live, nil
}

// dropStale removes a pointer left behind by an expired record.
func (r *Registry[T]) dropStale(ctx context.Context, user, id string) error {
	log.Info().Str("user", user).Str("kind", string(r.def.Kind)).Str("session", id).
		Msg("dropping stale session pointer")
	if err := r.scope.Unbind(ctx, r.def.Kind, user); err != nil {
		return err
	}
	return r.scope.Release(ctx, user)
}

// release returns a live slot reserved by a create that did not finish.
// Best effort: the slot also lapses with its TTL.
func (r *Registry[T]) release(ctx context.Context, user, reason string) {
	if err := r.scope.Release(ctx, user); err != nil {
		log.Warn().Err(err).Str("user", user).Str("reason", reason).Msg("release live slot")
	}
}

// Create starts a new session and returns its id.
//
// A live session fails with *game.InProgressError and its id is also returned.
func (r *Registry[T]) Create(ctx context.Context, user string) (string, error) {
	kind := string(r.def.Kind)
	id, key, live, err := r.resolve(ctx, user)
	switch {
	case err == nil && live:
		log.Warn().Str("user", user).Str("kind", kind).Str("key", key).Str("session", id).
			Msg("user already has an active game")
		return id, &game.InProgressError{SessionID: id}
	case err == nil:
		if err := r.dropStale(ctx, user, id); err != nil {
			return "", err
		}
	case !errors.Is(err, game.ErrGameNotFound):
		return "", err
	}

	if err := r.scope.Admit(ctx, user, r.states.Expiration()); err != nil {
		return "", err
	}
	if _, err := r.limiter.Increment(ctx, user); err != nil {
		r.release(ctx, user, "rate limit")
		return "", err
	}

	now := r.now()
	id = r.newID()
	rec := game.Record{}
	if r.def.Initial != nil {
		rec = r.def.Initial(user, now)
	}
	rec[game.FieldID] = id
	rec[game.FieldHost] = user
	rec[game.FieldState] = string(game.StateInitializing)

	key = r.scope.StateKey(r.def.Kind, user, id)
	if err := r.states.Initialize(ctx, key, rec); err != nil {
		r.release(ctx, user, "initialize failure")
		return "", err
	}
	if err := r.scope.Bind(ctx, r.def.Kind, user, id); err != nil {
		if derr := r.states.Delete(ctx, key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("delete unbound game state")
		}
		r.release(ctx, user, "bind failure")
		return "", err
	}
	log.Info().Str("user", user).Str("kind", kind).Str("key", key).Str("session", id).Msg("created game")

	if r.archive != nil {
		e := Entry{ID: id, Kind: r.def.Kind, Host: user, State: string(game.StateInitializing), At: now}
		if err := r.archive.Started(ctx, e); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("archive game start")
		}
	}
	return id, nil
}

// Lookup returns the id of the user's live session.
func (r *Registry[T]) Lookup(ctx context.Context, user string) (string, error) {
	id, key, live, err := r.resolve(ctx, user)
	if err != nil {
		if errors.Is(err, game.ErrGameNotFound) {
			log.Debug().Str("user", user).Str("kind", string(r.def.Kind)).Msg("no active game")
		}
		return "", err
	}
	if !live {
		log.Warn().Str("user", user).Str("key", key).Str("session", id).Msg("session pointer without state")
		return "", game.ErrGameNotFound
	}
	return id, nil
}

// Record returns the raw state record, refreshing its expiration.
func (r *Registry[T]) Record(ctx context.Context, user string) (game.Record, error) {
	id, err := r.Lookup(ctx, user)
	if err != nil {
		return nil, err
	}
	rec, err := r.states.Read(ctx, r.scope.StateKey(r.def.Kind, user, id))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// State returns the decoded state, refreshing its expiration.
func (r *Registry[T]) State(ctx context.Context, user string) (T, error) {
	var zero T
	rec, err := r.Record(ctx, user)
	if err != nil {
		return zero, err
	}
	if r.def.Decode == nil {
		return zero, fmt.Errorf("%s: no decoder registered", r.def.Kind)
	}
	return r.def.Decode(rec)
}

// Save replaces the live session's record. The id and host fields are pinned
// to the session and cannot be rewritten; a record without a state keeps the
// current one.
func (r *Registry[T]) Save(ctx context.Context, user string, rec game.Record) error {
	id, err := r.Lookup(ctx, user)
	if err != nil {
		return err
	}
	key := r.scope.StateKey(r.def.Kind, user, id)
	next := rec.Clone()
	next[game.FieldID] = id
	next[game.FieldHost] = user
	if next[game.FieldState] == "" {
		cur, err := r.states.Peek(ctx, key)
		if err != nil {
			return err
		}
		next[game.FieldState] = cur[game.FieldState]
		if next[game.FieldState] == "" {
			next[game.FieldState] = string(game.StateInitializing)
		}
	}
	if err := r.states.Write(ctx, key, next); err != nil {
		return err
	}
	log.Info().Str("user", user).Str("key", key).Str("state", next[game.FieldState]).Msg("updated game state")
	return nil
}

// End deletes the user's live session.
func (r *Registry[T]) End(ctx context.Context, user string) error {
	kind := string(r.def.Kind)
	id, key, live, err := r.resolve(ctx, user)
	if err != nil {
		if errors.Is(err, game.ErrGameNotFound) {
			log.Warn().Str("user", user).Str("kind", kind).Msg("attempted to end game but no active game found")
		}
		return err
	}
	if !live {
		if err := r.dropStale(ctx, user, id); err != nil {
			return err
		}
		log.Warn().Str("user", user).Str("kind", kind).Str("key", key).Msg("attempted to end expired game")
		return game.ErrGameNotFound
	}

	final, err := r.states.Peek(ctx, key)
	if err != nil && !errors.Is(err, game.ErrGameNotFound) {
		return err
	}
	// Record first: a racing lookup may then see a pointer without a record,
	// which reads as not found, but never a record without a pointer.
	if err := r.states.Delete(ctx, key); err != nil {
		return err
	}
	if err := r.scope.Unbind(ctx, r.def.Kind, user); err != nil {
		return err
	}
	if err := r.scope.Release(ctx, user); err != nil {
		return err
	}
	log.Info().Str("user", user).Str("kind", kind).Str("key", key).Str("session", id).Msg("ended game")

	if r.archive != nil {
		e := Entry{ID: id, Kind: r.def.Kind, Host: user, State: final[game.FieldState], At: r.now()}
		if err := r.archive.Ended(ctx, e); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("archive game end")
		}
	}
	return nil
}

// ClearLimit resets the user's rolling-window counter.
func (r *Registry[T]) ClearLimit(ctx context.Context, user string) error {
	return r.limiter.Clear(ctx, user)
}

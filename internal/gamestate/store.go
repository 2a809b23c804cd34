// internal/gamestate/store.go
//
// Persistence for one session's state record (a hash in the key-value store).
// Responsibilities:
//   - Initialize a record with an explicit expiration.
//   - Read/write with refresh-on-access: every observation restarts the TTL.
//   - Replace the full field set on write (stale fields are removed).
//
// Keys are supplied by the caller; this package never derives them.

package gamestate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
)

// DefaultExpiration is the record TTL when none is configured.
const DefaultExpiration = 24 * time.Hour

// Store reads and writes state records with a fixed expiration window.
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

// New constructs a Store whose records live for ttl after last access.
func New(store kv.Store, ttl time.Duration) *Store {
	if ttl < time.Second {
		ttl = DefaultExpiration
	}
	return &Store{kv: store, ttl: ttl}
}

// Expiration returns the refresh window.
func (s *Store) Expiration() time.Duration { return s.ttl }

// Initialize writes a fresh record and sets its expiration.
func (s *Store) Initialize(ctx context.Context, key string, rec game.Record) error {
	if err := s.kv.HashSet(ctx, key, rec); err != nil {
		return fmt.Errorf("initialize game state: %w", err)
	}
	if err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		return fmt.Errorf("expire game state: %w", err)
	}
	log.Info().Str("key", key).Dur("ttl", s.ttl).Msg("initialized game state")
	return nil
}

// Peek returns the record without touching its expiration.
func (s *Store) Peek(ctx context.Context, key string) (game.Record, error) {
	fields, err := s.kv.HashGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read game state: %w", err)
	}
	if len(fields) == 0 {
		return nil, game.ErrGameNotFound
	}
	return game.Record(fields), nil
}

// Read returns the record and extends its life to the full window.
func (s *Store) Read(ctx context.Context, key string) (game.Record, error) {
	rec, err := s.Peek(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, key); err != nil {
		return nil, err
	}
	return rec, nil
}

// Write replaces the record's fields. The record must already exist.
func (s *Store) Write(ctx context.Context, key string, rec game.Record) error {
	cur, err := s.Peek(ctx, key)
	if err != nil {
		return err
	}
	if err := s.kv.HashSet(ctx, key, rec); err != nil {
		return fmt.Errorf("write game state: %w", err)
	}
	var stale []string
	for f := range cur {
		if _, ok := rec[f]; !ok {
			stale = append(stale, f)
		}
	}
	if len(stale) > 0 {
		if err := s.kv.HashDelete(ctx, key, stale...); err != nil {
			return fmt.Errorf("prune game state: %w", err)
		}
	}
	if err := s.refresh(ctx, key); err != nil {
		return err
	}
	log.Debug().Str("key", key).Int("fields", len(rec)).Msg("wrote game state")
	return nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete game state: %w", err)
	}
	return nil
}

// Exists reports whether the record is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ttl, err := s.kv.TTL(ctx, key)
	if err != nil {
		return false, fmt.Errorf("probe game state: %w", err)
	}
	return ttl != kv.TTLMissing, nil
}

func (s *Store) refresh(ctx context.Context, key string) error {
	if err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		return fmt.Errorf("refresh game state expiration: %w", err)
	}
	log.Debug().Str("key", key).Dur("ttl", s.ttl).Msg("reset game expiration")
	return nil
}

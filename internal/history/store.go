package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/session"
)

// Game is one archived session.
type Game struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

// Store archives session lifecycle events. It implements session.Archive.
type Store struct{ db *sql.DB }

var _ session.Archive = (*Store)(nil)

// Open opens the archive at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Started records a new session. Replays of the same id are ignored.
func (s *Store) Started(ctx context.Context, e session.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO games (id, kind, host, state, started_at) VALUES (?,?,?,?,?)`,
		e.ID, string(e.Kind), e.Host, e.State, e.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert game %s: %w", e.ID, err)
	}
	return nil
}

// Ended stamps the session's end time and final state.
func (s *Store) Ended(ctx context.Context, e session.Entry) error {
	state := e.State
	if state == "" {
		state = string(game.StateCompleted)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE games SET state=?, ended_at=? WHERE id=? AND host=?`,
		state, e.At.UTC().Format(time.RFC3339), e.ID, e.Host)
	if err != nil {
		return fmt.Errorf("finish game %s: %w", e.ID, err)
	}
	return nil
}

// Recent lists the host's most recent sessions of kind, newest first.
// Default limit is 50 if not specified.
func (s *Store) Recent(ctx context.Context, host string, kind game.Kind, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, kind, state, started_at, COALESCE(ended_at, '')
        FROM games
        WHERE host=? AND kind=?
        ORDER BY started_at DESC, rowid DESC
        LIMIT ?`, host, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Game, 0, limit)
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Kind, &g.State, &g.StartedAt, &g.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

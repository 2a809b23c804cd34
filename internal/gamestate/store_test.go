package gamestate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(ttl time.Duration) (*Store, kv.Store, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	mem := kv.NewMemory(kv.WithClock(clk.Now))
	return New(mem, ttl), mem, clk
}

func TestInitializeAndRead(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(100 * time.Second)

	rec := game.Record{"id": "s1", "host": "a@x.com", "state": "initializing"}
	if err := s.Initialize(ctx, "k", rec); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if ttl, _ := mem.TTL(ctx, "k"); ttl != 100 {
		t.Fatalf("expected ttl 100, got %d", ttl)
	}

	got, err := s.Read(ctx, "k")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got["id"] != "s1" || got["state"] != "initializing" {
		t.Fatalf("unexpected record: %#v", got)
	}
}

func TestReadRefreshesExpiration(t *testing.T) {
	ctx := context.Background()
	s, mem, clk := setup(100 * time.Second)
	_ = s.Initialize(ctx, "k", game.Record{"id": "s1"})

	clk.Advance(40 * time.Second)
	if ttl, _ := mem.TTL(ctx, "k"); ttl != 60 {
		t.Fatalf("expected ttl 60, got %d", ttl)
	}
	if _, err := s.Read(ctx, "k"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ttl, _ := mem.TTL(ctx, "k"); ttl != 100 {
		t.Fatalf("expected read to restore ttl 100, got %d", ttl)
	}

	clk.Advance(40 * time.Second)
	if _, err := s.Peek(ctx, "k"); err != nil {
		t.Fatalf("peek: %v", err)
	}
	if ttl, _ := mem.TTL(ctx, "k"); ttl != 60 {
		t.Fatalf("peek must not refresh, ttl=%d", ttl)
	}
}

func TestWriteReplacesFields(t *testing.T) {
	ctx := context.Background()
	s, mem, clk := setup(100 * time.Second)
	_ = s.Initialize(ctx, "k", game.Record{"id": "s1", "state": "initializing", "turn": "3"})

	clk.Advance(50 * time.Second)
	next := game.Record{"id": "s1", "state": "in_progress", "score": "12"}
	if err := s.Write(ctx, "k", next); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, _ := s.Peek(ctx, "k")
	if len(got) != 3 || got["state"] != "in_progress" || got["score"] != "12" {
		t.Fatalf("unexpected record: %#v", got)
	}
	if _, ok := got["turn"]; ok {
		t.Fatalf("stale field survived write: %#v", got)
	}
	if ttl, _ := mem.TTL(ctx, "k"); ttl != 100 {
		t.Fatalf("expected write to refresh ttl, got %d", ttl)
	}
}

func TestWriteKeepsUnknownStateVerbatim(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(time.Minute)
	_ = s.Initialize(ctx, "k", game.Record{"id": "s1", "state": "initializing"})

	if err := s.Write(ctx, "k", game.Record{"id": "s1", "state": "paused-by-dealer"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, _ := s.Read(ctx, "k")
	if got["state"] != "paused-by-dealer" {
		t.Fatalf("state rewritten: %q", got["state"])
	}
}

func TestMissingRecord(t *testing.T) {
	ctx := context.Background()
	s, _, clk := setup(10 * time.Second)

	if _, err := s.Read(ctx, "nope"); !errors.Is(err, game.ErrGameNotFound) {
		t.Fatalf("read: expected ErrGameNotFound, got %v", err)
	}
	if err := s.Write(ctx, "nope", game.Record{"a": "1"}); !errors.Is(err, game.ErrGameNotFound) {
		t.Fatalf("write: expected ErrGameNotFound, got %v", err)
	}

	_ = s.Initialize(ctx, "k", game.Record{"id": "s1"})
	clk.Advance(10 * time.Second)
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Fatal("expected record to expire")
	}
	if _, err := s.Read(ctx, "k"); !errors.Is(err, game.ErrGameNotFound) {
		t.Fatalf("expected expired record to read as not found, got %v", err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(time.Minute)
	_ = s.Initialize(ctx, "k", game.Record{"id": "s1"})

	if ok, err := s.Exists(ctx, "k"); err != nil || !ok {
		t.Fatalf("exists: ok=%v err=%v", ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Fatal("expected record to be gone")
	}
}

func TestDefaultExpiration(t *testing.T) {
	if got := New(kv.NewMemory(), 0).Expiration(); got != DefaultExpiration {
		t.Fatalf("expected default expiration, got %s", got)
	}
}

package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr(), time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisStringRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	if ok, err := r.Set(ctx, "k", "v", time.Minute); err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	v, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
	if ttl, err := r.TTL(ctx, "k"); err != nil || ttl != 60 {
		t.Fatalf("expected ttl 60, got %d (%v)", ttl, err)
	}
	if d, err := r.PTTL(ctx, "k"); err != nil || d != time.Minute {
		t.Fatalf("expected pttl 1m, got %s (%v)", d, err)
	}

	mr.FastForward(61 * time.Second)
	if _, ok, err := r.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected key to expire: ok=%v err=%v", ok, err)
	}
	if ttl, _ := r.TTL(ctx, "k"); ttl != TTLMissing {
		t.Fatalf("expected TTLMissing, got %d", ttl)
	}
	if d, _ := r.PTTL(ctx, "k"); d != time.Duration(TTLMissing) {
		t.Fatalf("expected missing sentinel, got %s", d)
	}
}

func TestRedisPersistentKey(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	if _, err := r.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl, _ := r.TTL(ctx, "k"); ttl != TTLPersistent {
		t.Fatalf("expected TTLPersistent, got %d", ttl)
	}
	if d, _ := r.PTTL(ctx, "k"); d != time.Duration(TTLPersistent) {
		t.Fatalf("expected persistent sentinel, got %s", d)
	}
	if err := r.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestRedisHash(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	got, err := r.HashGetAll(ctx, "h")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty map for missing hash, got %#v (%v)", got, err)
	}

	if err := r.HashSet(ctx, "h", map[string]string{"id": "s1", "state": "initializing"}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := r.Expire(ctx, "h", 30*time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if err := r.HashDelete(ctx, "h", "state"); err != nil {
		t.Fatalf("hdel: %v", err)
	}
	got, _ = r.HashGetAll(ctx, "h")
	if len(got) != 1 || got["id"] != "s1" {
		t.Fatalf("unexpected hash: %#v", got)
	}
	if ttl := mr.TTL("h"); ttl != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %s", ttl)
	}
}

func TestRedisWrongType(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	_, _ = r.Set(ctx, "s", "v", 0)
	_, err := r.HashGetAll(ctx, "s")
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("reply errors must not read as unavailable")
	}
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	mr.Close()

	if r.Ping(ctx) {
		t.Fatal("expected ping to report false")
	}
	_, _, err := r.Get(ctx, "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Op != "get" || ue.Key != "k" {
		t.Fatalf("expected op/key on error, got %#v", ue)
	}
	if _, err := r.TTL(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from ttl, got %v", err)
	}
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), "redis://"+addr, 200*time.Millisecond)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), "memory://", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(*memory); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestOpenBadURL(t *testing.T) {
	if _, err := Open(context.Background(), "ftp://nope", 0); err == nil {
		t.Fatal("expected parse error")
	}
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/YaganovValera/feed-bridge/common/backoff"
	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestNew_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := New(context.Background(), Config{Addr: mr.Addr()}, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rdb.Close()
	if err := rdb.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("miniredis value = %q", got)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.Nop()); err == nil {
		t.Fatal("expected error without addr")
	}
}

func TestNew_Unreachable(t *testing.T) {
	cfg := Config{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		Backoff:     backoff.Config{InitialInterval: time.Millisecond, MaxElapsedTime: 100 * time.Millisecond},
	}
	if _, err := New(context.Background(), cfg, logger.Nop()); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

package safe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestGroup_PanicCancelsSiblings(t *testing.T) {
	g := New(context.Background(), logger.Nop())
	stopped := make(chan struct{})
	g.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	g.Go("crasher", func(context.Context) error { panic("boom") })

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling was not cancelled")
	}
	err := g.Wait()
	if err == nil || !strings.Contains(err.Error(), "crasher: panic: boom") {
		t.Fatalf("Wait = %v", err)
	}
}

func TestGroup_FirstErrorWins(t *testing.T) {
	g := New(context.Background(), logger.Nop())
	want := errors.New("first")
	g.Go("a", func(context.Context) error { return want })
	if err := g.Wait(); !errors.Is(err, want) {
		t.Fatalf("Wait = %v; want %v", err, want)
	}
}

func TestGroup_StopIsNotAnError(t *testing.T) {
	g := New(context.Background(), logger.Nop())
	g.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Stop()
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait after Stop = %v", err)
	}
}

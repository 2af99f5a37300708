package logger_test

import (
	"context"
	"testing"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := logger.New(logger.Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestNew_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := logger.New(logger.Config{Level: lvl, DevMode: true}); err != nil {
			t.Errorf("level %q: unexpected error %v", lvl, err)
		}
	}
}

func TestWithContext_Fields(t *testing.T) {
	l, err := logger.New(logger.Config{Level: "info", DevMode: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := logger.ContextWithTraceID(context.Background(), "trace-1")
	ctx = logger.ContextWithRequestID(ctx, "req-1")
	ctx = logger.ContextWithSymbol(ctx, "THYAO")
	ctx = logger.ContextWithSessionID(ctx, "s-1")
	if enh := l.WithContext(ctx); enh == l {
		t.Error("expected a derived logger when context carries fields")
	}
	if same := l.WithContext(context.Background()); same != l {
		t.Error("expected the same logger for an empty context")
	}
	l.Named("test").Info("message")
	l.Sync()
}

func TestNop(t *testing.T) {
	l := logger.Nop()
	l.Warn("dropped")
	l.Sugar().Infow("dropped", "k", "v")
}

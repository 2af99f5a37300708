// common/logger/logger.go

package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// -----------------------------------------------------------------------------
// context keys
// -----------------------------------------------------------------------------

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	requestIDKey contextKey = "request_id"
	symbolKey    contextKey = "symbol"
	sessionIDKey contextKey = "session_id"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config describes how the zap logger is built.
// Level is one of "debug" | "info" | "warn" | "error" (default "info").
// DevMode switches to a human-readable console encoder.
type Config struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c Config) validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", c.Level, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Logger wrapper
// -----------------------------------------------------------------------------

// Logger is a thin wrapper over *zap.Logger.
type Logger struct {
	raw *zap.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zapCfg := buildZapConfig(cfg.DevMode)
	if err := setZapLevel(&zapCfg, cfg.Level); err != nil {
		return nil, err
	}

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: build zap: %w", err)
	}
	return &Logger{raw: zl}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger { return &Logger{raw: zap.NewNop()} }

// Sync flushes buffered entries, errors are ignored.
func (l *Logger) Sync() { _ = l.raw.Sync() }

// Named returns a sub-logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{raw: l.raw.Named(name)}
}

// With returns a child logger carrying fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{raw: l.raw.With(fields...)}
}

// WithContext adds the ids and symbol stored in ctx as fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]zap.Field, 0, 4)
	for _, k := range []contextKey{traceIDKey, requestIDKey, symbolKey, sessionIDKey} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, zap.String(string(k), v))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{raw: l.raw.With(fields...)}
}

// Sugar returns the printf-style logger.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.raw.Sugar() }

// Raw exposes the underlying zap logger for libraries that want one.
func (l *Logger) Raw() *zap.Logger { return l.raw }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.raw.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.raw.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.raw.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.raw.Error(msg, fields...) }

// -----------------------------------------------------------------------------
// Context helpers
// -----------------------------------------------------------------------------

// ContextWithTraceID stores a trace id for WithContext.
func ContextWithTraceID(ctx context.Context, tid string) context.Context {
	return context.WithValue(ctx, traceIDKey, tid)
}

// ContextWithRequestID stores an HTTP request id for WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithSymbol stores the instrument symbol a goroutine works for.
func ContextWithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, symbolKey, symbol)
}

// ContextWithSessionID stores the upstream session id.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

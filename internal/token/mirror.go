package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

const (
	DefaultMirrorKey = "feedbridge:token"
	// fallbackTTL applies to tokens whose expiry cannot be parsed.
	fallbackTTL = 12 * time.Hour
)

// RedisMirror persists every stored token to Redis so that a restarted
// process starts with the last known token.
type RedisMirror struct {
	rdb   goredis.Cmdable
	key   string
	store *Store
	now   func() time.Time
	log   *logger.Logger
}

func NewRedisMirror(rdb goredis.Cmdable, key string, store *Store, log *logger.Logger) *RedisMirror {
	if key == "" {
		key = DefaultMirrorKey
	}
	return &RedisMirror{rdb: rdb, key: key, store: store, now: time.Now, log: log.Named("token-mirror")}
}

// Restore loads the mirrored token into the store. It reports whether a
// token was found.
func (m *RedisMirror) Restore(ctx context.Context) (bool, error) {
	raw, err := m.rdb.Get(ctx, m.key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("token: restore %s: %w", m.key, err)
	}
	m.store.Set(raw)
	metrics.TokenSets.WithLabelValues("mirror").Inc()
	_, exp, _ := m.store.Current()
	m.log.Info("token restored from redis", zap.Int64("exp", exp))
	return true, nil
}

// Save writes the current token with a TTL that ends at its expiry.
// Expired tokens are not written.
func (m *RedisMirror) Save(ctx context.Context) error {
	raw, exp, known := m.store.Current()
	if raw == "" {
		return nil
	}
	ttl := fallbackTTL
	if known {
		ttl = time.Unix(exp, 0).Sub(m.now())
		if ttl <= 0 {
			return nil
		}
	}
	if err := m.rdb.Set(ctx, m.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("token: save %s: %w", m.key, err)
	}
	return nil
}

// Run saves the token after every Set until ctx is done.
func (m *RedisMirror) Run(ctx context.Context) error {
	changed := m.store.Changed()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
		changed = m.store.Changed()
		if err := m.Save(ctx); err != nil {
			m.log.Warn("mirror save failed", zap.Error(err))
		}
	}
}

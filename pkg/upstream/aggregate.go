package upstream

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/backoff"
	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

// AggregateConfig tunes the multi-symbol market session.
type AggregateConfig struct {
	StallTimeout time.Duration  `mapstructure:"stall_timeout"`
	Backoff      backoff.Config `mapstructure:"backoff"`
}

// DefaultAggregateConfig restarts after 1s, 1.7s, 2.89s ... up to 15s and
// treats 65s without frames as a dead connection.
func DefaultAggregateConfig() AggregateConfig {
	return AggregateConfig{
		StallTimeout: 65 * time.Second,
		Backoff: backoff.Config{
			InitialInterval: time.Second,
			Multiplier:      1.7,
			MaxInterval:     15 * time.Second,
		},
	}
}

// AggregateEmitFunc receives a PUBLISH together with its symbol.
type AggregateEmitFunc func(symbol string, pub mqttwire.Publish)

// Aggregate keeps one market session subscribed to many symbols alive,
// reconnecting on every failure. Transient errors are never returned.
type Aggregate struct {
	session *Session
	cfg     AggregateConfig
	log     *logger.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAggregate fails only when symbols is empty or the market endpoint has
// no template.
func NewAggregate(cfg Config, acfg AggregateConfig, symbols []string, tokens TokenSource, templates *Templates, log *logger.Logger) (*Aggregate, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if acfg.StallTimeout <= 0 {
		acfg.StallTimeout = DefaultAggregateConfig().StallTimeout
	}
	if err := acfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	s, err := NewSession(cfg, KindMarket, symbols, tokens, templates, log)
	if err != nil {
		return nil, err
	}
	s.StallTimeout = acfg.StallTimeout
	return &Aggregate{
		session: s,
		cfg:     acfg,
		log:     log.Named("aggregate"),
		sleep:   backoff.Wait,
	}, nil
}

// Topics returns the subscribed topics.
func (a *Aggregate) Topics() []string { return a.session.Topics() }

// Run streams until ctx is cancelled and then returns nil.
func (a *Aggregate) Run(ctx context.Context, emit AggregateEmitFunc) error {
	bo, err := backoff.NewExponential(a.cfg.Backoff)
	if err != nil {
		return err
	}
	a.log.Info("aggregate session starting", zap.Int("topics", len(a.session.Topics())))
	for {
		err := a.session.Run(ctx, func(pub mqttwire.Publish) {
			sym := MarketSymbol(pub.Topic)
			if sym == "" {
				return
			}
			bo.Reset()
			emit(sym, pub)
		})
		if ctx.Err() != nil {
			a.log.Info("aggregate session stopped")
			return nil
		}

		cause := "closed"
		switch {
		case errors.Is(err, ErrStalled):
			cause = "stalled"
		case errors.Is(err, ErrTokenUnavailable):
			cause = "no_token"
		}
		reconnects.WithLabelValues(cause).Inc()

		delay := bo.NextBackOff()
		a.log.Warn("aggregate session ended, reconnecting",
			zap.Error(err), zap.Duration("delay", delay))
		if err := a.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

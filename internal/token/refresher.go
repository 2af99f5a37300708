package token

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

const (
	// MinRefreshInterval is the lower bound applied to RefresherConfig.Interval.
	MinRefreshInterval     = 120 * time.Second
	defaultRefreshInterval = 260 * time.Second
	defaultHarvestTimeout  = 40 * time.Second
)

// RefresherConfig controls how often the store is checked and how long a
// single harvest may take.
type RefresherConfig struct {
	Interval       time.Duration `mapstructure:"refresh_interval"`
	HarvestTimeout time.Duration `mapstructure:"harvest_timeout"`
}

func (c *RefresherConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultRefreshInterval
	}
	if c.Interval < MinRefreshInterval {
		c.Interval = MinRefreshInterval
	}
	if c.HarvestTimeout <= 0 {
		c.HarvestTimeout = defaultHarvestTimeout
	}
}

// Refresher keeps the store supplied with a usable token by calling the
// harvester whenever Get reports nothing usable.
type Refresher struct {
	store *Store
	h     Harvester
	cfg   RefresherConfig
	log   *logger.Logger
}

func NewRefresher(store *Store, h Harvester, cfg RefresherConfig, log *logger.Logger) *Refresher {
	cfg.applyDefaults()
	return &Refresher{store: store, h: h, cfg: cfg, log: log.Named("token-refresher")}
}

// Interval returns the effective check interval.
func (r *Refresher) Interval() time.Duration { return r.cfg.Interval }

// Run checks immediately and then once per interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.log.Info("token refresher started", zap.Duration("interval", r.cfg.Interval))
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()
	for {
		r.Check(ctx)
		select {
		case <-ctx.Done():
			r.log.Info("token refresher stopped")
			return nil
		case <-t.C:
		}
	}
}

// Check runs one refresh step. It reports whether a new token was stored.
func (r *Refresher) Check(ctx context.Context) bool {
	if _, ok := r.store.Get(); ok {
		metrics.TokenRefreshes.WithLabelValues("skipped").Inc()
		return false
	}
	r.log.Info("no usable token, harvesting")

	hctx, cancel := context.WithTimeout(ctx, r.cfg.HarvestTimeout)
	defer cancel()
	raw, err := r.h.Harvest(hctx)
	switch {
	case errors.Is(err, ErrNotFound) || (err == nil && raw == ""):
		metrics.TokenRefreshes.WithLabelValues("not_found").Inc()
		r.log.Warn("harvester returned no token")
		return false
	case err != nil:
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		r.log.Warn("harvest failed", zap.Error(err))
		return false
	}

	r.store.Set(raw)
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	metrics.TokenSets.WithLabelValues("refresher").Inc()
	_, exp, _ := r.store.Current()
	r.log.Info("token refreshed", zap.Int64("exp", exp))
	return true
}

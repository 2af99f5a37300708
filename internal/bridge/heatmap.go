package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/common/safe"
	"github.com/YaganovValera/feed-bridge/internal/decode"
	"github.com/YaganovValera/feed-bridge/internal/hub"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
	"github.com/YaganovValera/feed-bridge/pkg/upstream"
)

// HeatmapConfig configures the shared market session.
type HeatmapConfig struct {
	Symbols  []string      `mapstructure:"symbols"`
	Interval time.Duration `mapstructure:"broadcast_interval"`
	// KeepAlive keeps the session running after the last subscriber left.
	KeepAlive bool `mapstructure:"keep_alive"`
	Buffer    int  `mapstructure:"buffer"`

	upstream.AggregateConfig `mapstructure:",squash"`
}

func DefaultHeatmapConfig() HeatmapConfig {
	return HeatmapConfig{
		Interval:        time.Second,
		Buffer:          4,
		AggregateConfig: upstream.DefaultAggregateConfig(),
	}
}

// Snapshot maps symbols to their latest merged quote. One snapshot is shared
// by every subscriber and must not be modified.
type Snapshot map[string]hub.QuoteEntry

// Heatmap shares one aggregate market session among any number of
// subscribers. The session and the broadcast loop start with the first
// subscriber.
type Heatmap struct {
	cfg     HeatmapConfig
	deps    Deps
	symbols []string
	log     *logger.Logger

	// newAggregate is replaced in tests.
	newAggregate func() (runner, error)

	// lifecycle is held across a start or a full stop so an old group has
	// exited before a new one is launched. Lock order: lifecycle, then mu.
	lifecycle sync.Mutex

	mu      sync.Mutex
	subs    map[string]chan Snapshot
	group   *safe.Group
	stopped chan struct{}
}

type runner interface {
	Run(ctx context.Context, emit upstream.AggregateEmitFunc) error
}

// NewHeatmap fails with upstream.ErrNoSymbols when no symbol is configured
// and with upstream.ErrNoTemplate when the market endpoint has no template.
func NewHeatmap(cfg HeatmapConfig, deps Deps) (*Heatmap, error) {
	deps.fill()
	def := DefaultHeatmapConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}

	seen := make(map[string]struct{}, len(cfg.Symbols))
	var symbols []string
	for _, s := range cfg.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		return nil, upstream.ErrNoSymbols
	}
	if _, ok := deps.Templates.Connect(upstream.KindMarket); !ok {
		return nil, upstream.ErrNoTemplate
	}

	h := &Heatmap{
		cfg:     cfg,
		deps:    deps,
		symbols: symbols,
		log:     deps.Log.Named("heatmap"),
		subs:    make(map[string]chan Snapshot),
	}
	h.newAggregate = func() (runner, error) {
		return upstream.NewAggregate(deps.Upstream, cfg.AggregateConfig, symbols, deps.Tokens, deps.Templates, deps.Log)
	}
	return h, nil
}

// Symbols returns the normalized symbol list.
func (h *Heatmap) Symbols() []string { return append([]string(nil), h.symbols...) }

// Subscribe registers a consumer. Snapshots are delivered every broadcast
// interval; a consumer that does not keep up misses snapshots instead of
// blocking the others. The returned func unregisters it and closes the
// channel.
func (h *Heatmap) Subscribe(ctx context.Context) (string, <-chan Snapshot, func(), error) {
	id := uuid.NewString()
	ch := make(chan Snapshot, h.cfg.Buffer)

	h.lifecycle.Lock()
	h.mu.Lock()
	if h.group == nil {
		if err := h.startLocked(ctx); err != nil {
			h.mu.Unlock()
			h.lifecycle.Unlock()
			return "", nil, nil, err
		}
	}
	h.subs[id] = ch
	n := len(h.subs)
	h.mu.Unlock()
	h.lifecycle.Unlock()

	metrics.HeatmapSubscribers.Inc()
	h.log.Info("subscriber added", zap.String("id", id), zap.Int("subscribers", n))

	if snap := h.snapshot(); len(snap) > 0 {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			select {
			case ch <- snap:
			default:
			}
		}
		h.mu.Unlock()
	}

	var once sync.Once
	return id, ch, func() { once.Do(func() { h.unsubscribe(id) }) }, nil
}

func (h *Heatmap) unsubscribe(id string) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	ch, ok := h.subs[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, id)
	close(ch)
	n := len(h.subs)
	var g *safe.Group
	var stopped chan struct{}
	if n == 0 && !h.cfg.KeepAlive && h.group != nil {
		g, stopped = h.group, h.stopped
		h.group, h.stopped = nil, nil
	}
	h.mu.Unlock()

	metrics.HeatmapSubscribers.Dec()
	h.log.Info("subscriber removed", zap.String("id", id), zap.Int("subscribers", n))
	if g != nil {
		g.Stop()
		<-stopped
	}
}

// Subscribers returns the number of registered consumers.
func (h *Heatmap) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Running reports whether the session and broadcast loop are active.
func (h *Heatmap) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.group != nil
}

// startLocked runs the aggregate session and the broadcaster. They outlive
// the subscriber that triggered them, so only the values of ctx are kept.
func (h *Heatmap) startLocked(ctx context.Context) error {
	agg, err := h.newAggregate()
	if err != nil {
		h.log.Error("aggregate session unavailable", zap.Error(err))
		return err
	}
	g := safe.New(context.WithoutCancel(ctx), h.log)
	stopped := make(chan struct{})
	g.Go("aggregate", func(ctx context.Context) error {
		return agg.Run(ctx, h.ingest(ctx))
	})
	g.Go("broadcast", h.broadcast)
	go func() {
		if err := g.Wait(); err != nil {
			h.log.Error("heatmap stopped", zap.Error(err))
		}
		close(stopped)
	}()
	h.group, h.stopped = g, stopped
	h.log.Info("heatmap started", zap.Int("symbols", len(h.symbols)), zap.Duration("interval", h.cfg.Interval))
	return nil
}

// Close stops the session regardless of subscribers and closes every
// subscriber channel.
func (h *Heatmap) Close() {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.mu.Lock()
	g, stopped := h.group, h.stopped
	h.group, h.stopped = nil, nil
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
		metrics.HeatmapSubscribers.Dec()
	}
	h.mu.Unlock()
	if g != nil {
		g.Stop()
		<-stopped
	}
}

func (h *Heatmap) ingest(ctx context.Context) upstream.AggregateEmitFunc {
	return func(symbol string, pub mqttwire.Publish) {
		q, err := decode.DecodeQuote(pub.Payload, h.deps.Schemas.Quote)
		if err != nil {
			metrics.DecodeErrors.WithLabelValues(upstream.KindMarket.String()).Inc()
			h.log.Debug("quote dropped", zap.String("topic", pub.Topic), zap.Error(err))
			return
		}
		q.Symbol = symbol
		merged := h.deps.Quotes.Merge(symbol, q)
		if err := h.deps.Sink.PublishQuote(ctx, merged); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Debug("sink publish failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (h *Heatmap) broadcast(ctx context.Context) error {
	t := time.NewTicker(h.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		snap := h.snapshot()
		if len(snap) == 0 {
			continue
		}
		h.mu.Lock()
		for id, ch := range h.subs {
			select {
			case ch <- snap:
				metrics.HeatmapBroadcasts.WithLabelValues("sent").Inc()
			default:
				metrics.HeatmapBroadcasts.WithLabelValues("dropped").Inc()
				h.log.Debug("subscriber lagging, snapshot dropped", zap.String("id", id))
			}
		}
		h.mu.Unlock()
	}
}

// snapshot returns the heatmap symbols present in the quote hub.
func (h *Heatmap) snapshot() Snapshot {
	all := h.deps.Quotes.Snapshot()
	out := make(Snapshot, len(h.symbols))
	for _, s := range h.symbols {
		if e, ok := all[s]; ok {
			out[s] = e
		}
	}
	return out
}

// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/feed-bridge/common"
	"github.com/YaganovValera/feed-bridge/common/httpserver"
	producer "github.com/YaganovValera/feed-bridge/common/kafka/producer"
	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/common/redis"
	"github.com/YaganovValera/feed-bridge/common/telemetry"
	"github.com/YaganovValera/feed-bridge/internal/admin"
	"github.com/YaganovValera/feed-bridge/internal/bridge"
	"github.com/YaganovValera/feed-bridge/internal/config"
	"github.com/YaganovValera/feed-bridge/internal/hub"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
	"github.com/YaganovValera/feed-bridge/internal/sink"
	"github.com/YaganovValera/feed-bridge/internal/token"
	"github.com/YaganovValera/feed-bridge/pkg/upstream"
)

// Run wires the service and blocks until ctx is cancelled or a component
// fails.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	common.InitServiceName(cfg.ServiceName)
	metrics.Register(nil)
	upstream.RegisterMetrics(nil)

	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(context.WithoutCancel(ctx), "telemetry", shutdownTracer, log)

	templates, err := upstream.NewTemplates(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("connect templates: %w", err)
	}
	for _, k := range upstream.Kinds() {
		if _, ok := templates.Connect(k); !ok {
			log.Warn("no CONNECT template, sessions of this kind are disabled", zap.String("kind", k.String()))
		}
	}

	// 1) Token store with its optional sources.
	store := token.NewStore(cfg.Token.RenewMargin)
	if cfg.Token.Initial != "" {
		store.Set(cfg.Token.Initial)
		metrics.TokenSets.WithLabelValues("config").Inc()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, cfg.Redis.Config, log)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer shutdownSafe(ctx, "redis", func(context.Context) error { return rdb.Close() }, log)

		mirror := token.NewRedisMirror(rdb, cfg.Token.MirrorKey, store, log)
		if _, ok := store.Get(); !ok {
			if _, err := mirror.Restore(ctx); err != nil {
				log.Warn("token restore failed", zap.Error(err))
			}
		}
		g.Go(func() error { return mirror.Run(ctx) })
	}

	if cfg.Token.File != "" {
		refresher := token.NewRefresher(store, token.FileHarvester{Path: cfg.Token.File}, cfg.Token.RefresherConfig, log)
		g.Go(func() error { return refresher.Run(ctx) })
	}

	// 2) Optional Kafka sink.
	var (
		pub     sink.Publisher = sink.Nop{}
		kafkaOK func(context.Context) error
	)
	if cfg.Kafka.Enabled {
		prod, err := producer.New(ctx, cfg.Kafka.Config, log)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer shutdownSafe(ctx, "kafka-producer", func(context.Context) error { return prod.Close() }, log)
		pub = sink.NewKafka(prod, cfg.Sink, log)
		kafkaOK = prod.Ping
	}

	deps := bridge.Deps{
		Upstream:  cfg.Upstream,
		Templates: templates,
		Tokens:    store,
		Depth:     hub.NewDepth(),
		Trades:    hub.NewTrade(),
		Quotes:    hub.NewQuote(),
		Sink:      pub,
		Schemas:   cfg.Schema,
		Log:       log,
	}

	// 3) Watched symbols and the heatmap.
	feeds := bridge.NewFeeds(cfg.Feeds, deps)
	for _, sym := range cfg.Feeds.Symbols {
		events, err := feeds.Watch(ctx, sym)
		if err != nil {
			return fmt.Errorf("watch %s: %w", sym, err)
		}
		g.Go(func() error {
			logEvents(log, events)
			return nil
		})
	}

	if len(cfg.Heatmap.Symbols) > 0 {
		heatmap, err := bridge.NewHeatmap(cfg.Heatmap, deps)
		if err != nil {
			return fmt.Errorf("heatmap init: %w", err)
		}
		defer heatmap.Close()
		_, snaps, unsubscribe, err := heatmap.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("heatmap subscribe: %w", err)
		}
		g.Go(func() error {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case snap, ok := <-snaps:
					if !ok {
						return nil
					}
					log.Debug("heatmap snapshot", zap.Int("symbols", len(snap)))
				}
			}
		})
	}

	// 4) HTTP: ops endpoints plus admin.
	readiness := func() error {
		if !store.Info().Usable {
			return upstream.ErrTokenUnavailable
		}
		if kafkaOK != nil {
			return kafkaOK(ctx)
		}
		return nil
	}
	adminHandler := admin.New(cfg.Admin, store, templates, log)
	httpSrv, err := httpserver.New(cfg.HTTP, readiness, log, adminHandler.Routes()...)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}
	g.Go(func() error { return httpSrv.Start(ctx) })

	log.Info("feed-bridge started",
		zap.Strings("watch", cfg.Feeds.Symbols),
		zap.Int("heatmap_symbols", len(cfg.Heatmap.Symbols)),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("feed-bridge stopped")
	return nil
}

// logEvents drains a watch channel, logging status changes.
func logEvents(log *logger.Logger, events <-chan bridge.Event) {
	for ev := range events {
		if ev.Status == "" {
			continue
		}
		fields := []zap.Field{
			zap.String("symbol", ev.Symbol),
			zap.String("kind", ev.Kind.String()),
			zap.String("status", string(ev.Status)),
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		if ev.Status == bridge.StatusConnected {
			log.Info("feed status", fields...)
		} else {
			log.Warn("feed status", fields...)
		}
	}
}

func shutdownSafe(ctx context.Context, name string, fn func(context.Context) error, log *logger.Logger) {
	if err := fn(ctx); err != nil {
		log.Error("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}

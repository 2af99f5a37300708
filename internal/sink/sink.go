// Package sink forwards decoded market data to Kafka.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	commonkafka "github.com/YaganovValera/feed-bridge/common/kafka"
	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/internal/decode"
	"github.com/YaganovValera/feed-bridge/internal/hub"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

var tracer = otel.Tracer("feed-bridge/sink")

// Publisher receives every decoded record. Implementations must be safe
// for concurrent use.
type Publisher interface {
	PublishTrade(ctx context.Context, t decode.Trade) error
	PublishQuote(ctx context.Context, q hub.QuoteEntry) error
	PublishDepth(ctx context.Context, symbol string, e hub.DepthEntry) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) PublishTrade(context.Context, decode.Trade) error           { return nil }
func (Nop) PublishQuote(context.Context, hub.QuoteEntry) error         { return nil }
func (Nop) PublishDepth(context.Context, string, hub.DepthEntry) error { return nil }

// Config names the topics. Records are written to {prefix}.{kind}.
type Config struct {
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// Kafka publishes JSON records keyed by symbol.
type Kafka struct {
	producer commonkafka.Producer
	prefix   string
	log      *logger.Logger
}

func NewKafka(producer commonkafka.Producer, cfg Config, log *logger.Logger) *Kafka {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, ".")
	if prefix == "" {
		prefix = "marketdata"
	}
	return &Kafka{producer: producer, prefix: prefix, log: log.Named("kafka-sink")}
}

// Topic returns the topic records of kind go to.
func (k *Kafka) Topic(kind string) string { return k.prefix + "." + kind }

type depthRecord struct {
	Symbol       string            `json:"symbol"`
	ObservedAtMs int64             `json:"observed_at_ms"`
	Rows         []decode.DepthRow `json:"rows"`
}

func (k *Kafka) PublishTrade(ctx context.Context, t decode.Trade) error {
	return k.publish(ctx, "trade", t.Symbol, t)
}

func (k *Kafka) PublishQuote(ctx context.Context, q hub.QuoteEntry) error {
	return k.publish(ctx, "quote", q.Symbol, q)
}

func (k *Kafka) PublishDepth(ctx context.Context, symbol string, e hub.DepthEntry) error {
	return k.publish(ctx, "depth", symbol, depthRecord{Symbol: symbol, ObservedAtMs: e.ObservedAtMs, Rows: e.Rows})
}

func (k *Kafka) publish(ctx context.Context, kind, symbol string, v any) error {
	ctx, span := tracer.Start(ctx, "sink.publish", trace.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("symbol", symbol),
	))
	defer span.End()

	value, err := json.Marshal(v)
	if err != nil {
		metrics.SinkErrors.WithLabelValues(kind).Inc()
		return fmt.Errorf("kafka-sink: marshal %s: %w", kind, err)
	}
	msg := commonkafka.Message{
		Topic: k.Topic(kind),
		Key:   []byte(symbol),
		Value: value,
		Headers: map[string]string{
			"kind":         kind,
			"content-type": "application/json",
			"produced-at":  time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if err := k.producer.Publish(ctx, msg); err != nil {
		metrics.SinkErrors.WithLabelValues(kind).Inc()
		span.RecordError(err)
		k.log.WithContext(ctx).Warn("publish failed", zap.String("kind", kind), zap.String("symbol", symbol), zap.Error(err))
		return fmt.Errorf("kafka-sink: publish %s: %w", kind, err)
	}
	return nil
}

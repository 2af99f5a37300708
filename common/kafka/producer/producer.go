// common/kafka/producer/producer.go
package producer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/backoff"
	commonkafka "github.com/YaganovValera/feed-bridge/common/kafka"
	"github.com/YaganovValera/feed-bridge/common/logger"
)

var serviceLabel = "unknown"

// SetServiceLabel is called once from common.InitServiceName.
func SetServiceLabel(name string) { serviceLabel = name }

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var producerMetrics = struct {
	Connects       *prometheus.CounterVec
	Published      *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
	Pings          *prometheus.CounterVec
}{
	Connects: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "common", Subsystem: "kafka_producer", Name: "connects_total",
		Help: "Kafka producer connect attempts by outcome",
	}, []string{"service", "status"}),
	Published: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "common", Subsystem: "kafka_producer", Name: "published_total",
		Help: "Published records by topic and outcome",
	}, []string{"service", "topic", "status"}),
	PublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "common", Subsystem: "kafka_producer", Name: "publish_latency_seconds",
		Help:    "Publish latency including retries (seconds)",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "topic"}),
	Pings: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "common", Subsystem: "kafka_producer", Name: "pings_total",
		Help: "Metadata refreshes by outcome",
	}, []string{"service", "status"}),
}

var tracer = otel.Tracer("kafka-producer")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config groups the tunables of the sync producer.
type Config struct {
	Brokers []string `mapstructure:"brokers"`

	// RequiredAcks is "all" (default), "leader" or "none".
	RequiredAcks string `mapstructure:"required_acks"`

	Timeout time.Duration `mapstructure:"timeout"`

	// Compression is "none" (default), "gzip", "snappy", "lz4" or "zstd".
	Compression string `mapstructure:"compression"`

	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`

	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	return nil
}

var acksByName = map[string]sarama.RequiredAcks{
	"all":    sarama.WaitForAll,
	"leader": sarama.WaitForLocal,
	"none":   sarama.NoResponse,
}

var codecByName = map[string]sarama.CompressionCodec{
	"none":   sarama.CompressionNone,
	"gzip":   sarama.CompressionGZIP,
	"snappy": sarama.CompressionSnappy,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
}

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	acks, ok := acksByName[strings.ToLower(c.RequiredAcks)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}
	codec, ok := codecByName[strings.ToLower(c.Compression)]
	if !ok {
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = acks
	sc.Producer.Compression = codec
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	if acks == sarama.WaitForAll {
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	}
	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		sc.Producer.Flush.Messages = c.FlushMessages
	}
	return sc, nil
}

// -----------------------------------------------------------------------------
// Producer
// -----------------------------------------------------------------------------

type kafkaProducer struct {
	prod       sarama.SyncProducer
	client     sarama.Client
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New connects a SyncProducer, retrying with back-off.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	defer span.End()

	var (
		client   sarama.Client
		syncProd sarama.SyncProducer
	)
	connect := func(context.Context) error {
		c, err := sarama.NewClient(cfg.Brokers, sc)
		if err != nil {
			producerMetrics.Connects.WithLabelValues(serviceLabel, "error").Inc()
			return err
		}
		p, err := sarama.NewSyncProducerFromClient(c)
		if err != nil {
			_ = c.Close()
			producerMetrics.Connects.WithLabelValues(serviceLabel, "error").Inc()
			return err
		}
		client, syncProd = c, p
		producerMetrics.Connects.WithLabelValues(serviceLabel, "ok").Inc()
		return nil
	}
	if err := backoff.Execute(ctx, cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}

	log.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers))
	return &kafkaProducer{
		prod:       otelsarama.WrapSyncProducer(sc, syncProd),
		client:     client,
		log:        log,
		backoffCfg: cfg.Backoff,
	}, nil
}

func toSaramaMessage(msg commonkafka.Message) *sarama.ProducerMessage {
	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if msg.Key != nil {
		pm.Key = sarama.ByteEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		pm.Headers = append(pm.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return pm
}

// Publish sends msg, retrying with back-off.
func (k *kafkaProducer) Publish(ctx context.Context, msg commonkafka.Message) error {
	ctx, span := tracer.Start(ctx, "Publish", trace.WithAttributes(attribute.String("topic", msg.Topic)))
	defer span.End()
	start := time.Now()

	err := backoff.Execute(ctx, k.backoffCfg, k.log, func(context.Context) error {
		_, _, err := k.prod.SendMessage(toSaramaMessage(msg))
		return err
	})
	producerMetrics.PublishLatency.WithLabelValues(serviceLabel, msg.Topic).Observe(time.Since(start).Seconds())
	if err != nil {
		producerMetrics.Published.WithLabelValues(serviceLabel, msg.Topic, "error").Inc()
		span.RecordError(err)
		k.log.Error("publish failed", zap.String("topic", msg.Topic), zap.Error(err))
		return err
	}
	producerMetrics.Published.WithLabelValues(serviceLabel, msg.Topic, "ok").Inc()
	return nil
}

// Ping refreshes cluster metadata.
func (k *kafkaProducer) Ping(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Ping")
	defer span.End()
	if k.client == nil {
		return nil
	}
	if err := k.client.RefreshMetadata(); err != nil {
		producerMetrics.Pings.WithLabelValues(serviceLabel, "error").Inc()
		span.RecordError(err)
		return err
	}
	producerMetrics.Pings.WithLabelValues(serviceLabel, "ok").Inc()
	return nil
}

// Close closes the producer, then the client.
func (k *kafkaProducer) Close() error {
	if err := k.prod.Close(); err != nil {
		k.log.Error("producer close failed", zap.Error(err))
		return err
	}
	if k.client != nil && !k.client.Closed() {
		if err := k.client.Close(); err != nil {
			k.log.Error("client close failed", zap.Error(err))
			return err
		}
	}
	k.log.Info("kafka producer closed")
	return nil
}

// internal/config/config.go
package config

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/YaganovValera/feed-bridge/common/configloader"
	"github.com/YaganovValera/feed-bridge/common/httpserver"
	producer "github.com/YaganovValera/feed-bridge/common/kafka/producer"
	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/common/redis"
	"github.com/YaganovValera/feed-bridge/common/telemetry"
	"github.com/YaganovValera/feed-bridge/internal/admin"
	"github.com/YaganovValera/feed-bridge/internal/bridge"
	"github.com/YaganovValera/feed-bridge/internal/sink"
	"github.com/YaganovValera/feed-bridge/internal/token"
	"github.com/YaganovValera/feed-bridge/pkg/upstream"
)

// EnvPrefix prefixes every environment override, e.g.
// FEEDBRIDGE_UPSTREAM_DEPTH_URL.
const EnvPrefix = "FEEDBRIDGE"

// -----------------------------------------------------------------------------
// Structures
// -----------------------------------------------------------------------------

// Config holds every setting of the service.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Logging   logger.Config     `mapstructure:"logging"`
	Telemetry telemetry.Config  `mapstructure:"telemetry"`
	HTTP      httpserver.Config `mapstructure:"http"`

	Upstream upstream.Config      `mapstructure:"upstream"`
	Token    TokenConfig          `mapstructure:"token"`
	Feeds    bridge.Config        `mapstructure:"feeds"`
	Heatmap  bridge.HeatmapConfig `mapstructure:"heatmap"`
	Schema   bridge.Schemas       `mapstructure:"schema"`

	Kafka KafkaConfig  `mapstructure:"kafka"`
	Sink  sink.Config  `mapstructure:"sink"`
	Redis RedisConfig  `mapstructure:"redis"`
	Admin admin.Config `mapstructure:"admin"`
}

// TokenConfig describes where bearer tokens come from.
type TokenConfig struct {
	// Initial is loaded into the store at startup.
	Initial     string        `mapstructure:"initial"`
	RenewMargin time.Duration `mapstructure:"renew_margin"`
	// File, when set, is read by the refresher whenever the store runs dry.
	File      string `mapstructure:"file"`
	MirrorKey string `mapstructure:"mirror_key"`

	token.RefresherConfig `mapstructure:",squash"`
}

// KafkaConfig enables the Kafka sink.
type KafkaConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	producer.Config `mapstructure:",squash"`
}

// RedisConfig enables the token mirror.
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

// Load reads defaults, the optional file at path and the environment, then
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	err := configloader.Load(path, &cfg,
		configloader.WithEnvPrefix(EnvPrefix),
		configloader.WithDefaults(Defaults()),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults returns the default of every key the service reads.
func Defaults() configloader.Defaults {
	d := configloader.Defaults{}
	d.Set("service_name", "feed-bridge")
	d.Set("service_version", "v1.0.0")

	set := d.Under("logging")
	set("level", "info")
	set("dev_mode", false)

	set = d.Under("telemetry")
	set("endpoint", "")
	set("insecure", true)

	set = d.Under("http")
	set("addr", ":8080")
	set("read_timeout", "10s")
	set("write_timeout", "15s")
	set("idle_timeout", "60s")
	set("shutdown_timeout", "5s")
	set("metrics_path", "/metrics")
	set("healthz_path", "/healthz")
	set("readyz_path", "/readyz")

	up := upstream.DefaultConfig()
	set = d.Under("upstream")
	set("origin", up.Origin)
	set("subprotocol", up.Subprotocol)
	set("user_agent", up.UserAgent)
	set("connect_template", "")
	set("dial_timeout", up.DialTimeout)
	set("write_timeout", up.WriteTimeout)
	set("pong_timeout", up.PongTimeout)
	set("preamble_delay", up.PreambleDelay)
	set("buffer_size", up.BufferSize)
	for _, k := range upstream.Kinds() {
		ep := up.Endpoint(k)
		kind := d.Under("upstream." + k.String())
		kind("url", ep.URL)
		kind("connect_template", "")
		kind("subscribe_override", "")
		kind("topic_formats", ep.TopicFormats)
		kind("filter_prefixes", ep.FilterPrefixes)
		kind("chunked", ep.Chunked)
		kind("connack_timeout", ep.ConnAckTimeout)
		kind("suback_timeout", ep.SubAckTimeout)
		kind("heartbeat_interval", ep.HeartbeatInterval)
		kind("ping_interval", ep.PingInterval)
	}

	set = d.Under("token")
	set("initial", "")
	set("renew_margin", token.DefaultRenewMargin)
	set("file", "")
	set("mirror_key", token.DefaultMirrorKey)
	set("refresh_interval", "260s")
	set("harvest_timeout", "40s")

	fd := bridge.DefaultConfig()
	set = d.Under("feeds")
	set("symbols", []string{})
	set("backoff.initial_interval", fd.Backoff.InitialInterval)
	set("backoff.multiplier", fd.Backoff.Multiplier)
	set("backoff.max_interval", fd.Backoff.MaxInterval)
	set("jitter", fd.Jitter)
	set("token_wait", fd.TokenWait)
	set("buffer", fd.Buffer)

	hm := bridge.DefaultHeatmapConfig()
	set = d.Under("heatmap")
	set("symbols", []string{})
	set("broadcast_interval", hm.Interval)
	set("keep_alive", false)
	set("buffer", hm.Buffer)
	set("stall_timeout", hm.StallTimeout)
	set("backoff.initial_interval", hm.Backoff.InitialInterval)
	set("backoff.multiplier", hm.Backoff.Multiplier)
	set("backoff.max_interval", hm.Backoff.MaxInterval)

	sc := bridge.DefaultSchemas()
	set = d.Under("schema.depth")
	set("bids", sc.Depth.Bids)
	set("asks", sc.Depth.Asks)
	set("price", sc.Depth.Price)
	set("qty", sc.Depth.Qty)
	set("orders", sc.Depth.Orders)
	set = d.Under("schema.quote")
	set("last", sc.Quote.Last)
	set("ask", sc.Quote.Ask)
	set("bid", sc.Quote.Bid)
	set("high", sc.Quote.High)
	set("low", sc.Quote.Low)
	set("ceiling", sc.Quote.Ceiling)
	set("floor", sc.Quote.Floor)
	set("volume", sc.Quote.Volume)
	set("turnover", sc.Quote.Turnover)
	set("prev_close", sc.Quote.PrevClose)

	set = d.Under("kafka")
	set("enabled", false)
	set("brokers", []string{})
	set("required_acks", "all")
	set("timeout", "5s")
	set("compression", "none")
	d.Set("sink.topic_prefix", "marketdata")

	set = d.Under("redis")
	set("enabled", false)
	set("addr", "")
	set("password", "")
	set("db", 0)
	set("dial_timeout", "2s")

	set = d.Under("admin")
	set("api_key", "")
	set("rps", 5)
	set("burst", 10)
	return d
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	if err := c.Upstream.Validate(); err != nil {
		return err
	}
	if err := validateBase64(map[string]string{
		"upstream.connect_template":          c.Upstream.ConnectTemplate,
		"upstream.depth.connect_template":    c.Upstream.Depth.ConnectTemplate,
		"upstream.trade.connect_template":    c.Upstream.Trade.ConnectTemplate,
		"upstream.market.connect_template":   c.Upstream.Market.ConnectTemplate,
		"upstream.depth.subscribe_override":  c.Upstream.Depth.SubscribeOverride,
		"upstream.trade.subscribe_override":  c.Upstream.Trade.SubscribeOverride,
		"upstream.market.subscribe_override": c.Upstream.Market.SubscribeOverride,
	}); err != nil {
		return err
	}

	if c.Token.RenewMargin < 0 {
		return fmt.Errorf("token.renew_margin must be >= 0")
	}
	if c.Token.Interval > 0 && c.Token.Interval < token.MinRefreshInterval {
		return fmt.Errorf("token.refresh_interval must be >= %s", token.MinRefreshInterval)
	}

	if c.Feeds.Jitter < 0 {
		return fmt.Errorf("feeds.jitter must be >= 0")
	}
	if err := c.Feeds.Backoff.Validate(); err != nil {
		return fmt.Errorf("feeds.backoff: %w", err)
	}
	if err := c.Heatmap.Backoff.Validate(); err != nil {
		return fmt.Errorf("heatmap.backoff: %w", err)
	}
	if c.Heatmap.Interval < 0 {
		return fmt.Errorf("heatmap.broadcast_interval must be >= 0")
	}

	if err := validateSchema(c.Schema); err != nil {
		return err
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka.enabled")
		}
		switch strings.ToLower(c.Kafka.RequiredAcks) {
		case "all", "leader", "none":
		default:
			return fmt.Errorf("kafka.required_acks must be one of [all, leader, none]")
		}
		switch strings.ToLower(c.Kafka.Compression) {
		case "none", "gzip", "snappy", "lz4", "zstd":
		default:
			return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled")
	}
	if c.Admin.RPS < 0 || c.Admin.Burst < 0 {
		return fmt.Errorf("admin.rps and admin.burst must be >= 0")
	}
	return nil
}

func validateBase64(values map[string]string) error {
	for k, v := range values {
		if v == "" {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s is not valid base64: %w", k, err)
		}
	}
	return nil
}

func validateSchema(s bridge.Schemas) error {
	for k, n := range map[string]int{
		"schema.depth.bids":   s.Depth.Bids,
		"schema.depth.asks":   s.Depth.Asks,
		"schema.depth.price":  s.Depth.Price,
		"schema.depth.qty":    s.Depth.Qty,
		"schema.depth.orders": s.Depth.Orders,
	} {
		if n <= 0 {
			return fmt.Errorf("%s must be a positive field number", k)
		}
	}
	if len(s.Quote.Last) == 0 {
		return fmt.Errorf("schema.quote.last must not be empty")
	}
	return nil
}

// Print writes the configuration to w with secrets masked.
func (c *Config) Print(w io.Writer) error {
	cp := *c
	cp.Token.Initial = configloader.Mask(cp.Token.Initial)
	cp.Admin.APIKey = configloader.Mask(cp.Admin.APIKey)
	cp.Redis.Password = configloader.Mask(cp.Redis.Password)
	return configloader.PrintConfig(w, cp)
}

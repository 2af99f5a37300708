package upstream

import (
	"fmt"
	"strings"
	"time"
)

// EndpointConfig describes one upstream endpoint.
type EndpointConfig struct {
	URL string `mapstructure:"url"`

	// ConnectTemplate is a base64 CONNECT template; empty falls back to
	// Config.ConnectTemplate.
	ConnectTemplate string `mapstructure:"connect_template"`
	// SubscribeOverride is a base64 SUBSCRIBE body sent verbatim instead of
	// the built one. Used by the depth endpoint only.
	SubscribeOverride string `mapstructure:"subscribe_override"`

	TopicFormats   []string `mapstructure:"topic_formats"`
	FilterPrefixes []string `mapstructure:"filter_prefixes"`

	// Chunked selects the per-topic SUBSCRIBE encoding.
	Chunked bool `mapstructure:"chunked"`

	ConnAckTimeout    time.Duration `mapstructure:"connack_timeout"`
	SubAckTimeout     time.Duration `mapstructure:"suback_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
}

// Config holds the transport settings shared by every endpoint.
type Config struct {
	Origin          string        `mapstructure:"origin"`
	Subprotocol     string        `mapstructure:"subprotocol"`
	UserAgent       string        `mapstructure:"user_agent"`
	ConnectTemplate string        `mapstructure:"connect_template"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	PreambleDelay   time.Duration `mapstructure:"preamble_delay"`
	BufferSize      int           `mapstructure:"buffer_size"`

	Depth  EndpointConfig `mapstructure:"depth"`
	Trade  EndpointConfig `mapstructure:"trade"`
	Market EndpointConfig `mapstructure:"market"`
}

const baseURL = "wss://rtstream.radix.matriksdata.com"

// DefaultConfig returns the settings observed against the production feed.
func DefaultConfig() Config {
	return Config{
		Origin:        "https://app.matrikswebtrader.com",
		Subprotocol:   "mqttv3.1",
		UserAgent:     "Mozilla/5.0",
		DialTimeout:   15 * time.Second,
		WriteTimeout:  10 * time.Second,
		PongTimeout:   15 * time.Second,
		PreambleDelay: 20 * time.Millisecond,
		BufferSize:    256,
		Depth: EndpointConfig{
			URL:               baseURL + "/depth",
			TopicFormats:      []string{"mx/depth/{sym}@lvl2"},
			FilterPrefixes:    []string{"mx/depth/", "mx/depthstats/"},
			Chunked:           true,
			ConnAckTimeout:    6 * time.Second,
			SubAckTimeout:     10 * time.Second,
			HeartbeatInterval: 60 * time.Second,
			PingInterval:      30 * time.Second,
		},
		Trade: EndpointConfig{
			URL:               baseURL + "/trade",
			TopicFormats:      []string{"mx/trade/{sym}@lvl2"},
			FilterPrefixes:    []string{"mx/trade/"},
			ConnAckTimeout:    10 * time.Second,
			SubAckTimeout:     10 * time.Second,
			HeartbeatInterval: 55 * time.Second,
			PingInterval:      25 * time.Second,
		},
		Market: EndpointConfig{
			URL:               baseURL + "/market",
			TopicFormats:      []string{"mx/symbol/{sym}@lvl2"},
			FilterPrefixes:    []string{"mx/symbol/"},
			ConnAckTimeout:    10 * time.Second,
			SubAckTimeout:     10 * time.Second,
			HeartbeatInterval: 55 * time.Second,
			PingInterval:      25 * time.Second,
		},
	}
}

// Endpoint returns the endpoint settings of kind.
func (c Config) Endpoint(k Kind) EndpointConfig {
	switch k {
	case KindDepth:
		return c.Depth
	case KindTrade:
		return c.Trade
	default:
		return c.Market
	}
}

// Validate checks the fields a session cannot run without.
func (c Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("upstream.origin is required")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("upstream.buffer_size must be >= 0")
	}
	for _, k := range Kinds() {
		ep := c.Endpoint(k)
		switch {
		case ep.URL == "":
			return fmt.Errorf("upstream.%s.url is required", k)
		case !strings.HasPrefix(ep.URL, "ws://") && !strings.HasPrefix(ep.URL, "wss://"):
			return fmt.Errorf("upstream.%s.url must be a ws:// or wss:// URL", k)
		case len(ep.TopicFormats) == 0:
			return fmt.Errorf("upstream.%s.topic_formats must not be empty", k)
		case ep.ConnAckTimeout <= 0 || ep.SubAckTimeout <= 0:
			return fmt.Errorf("upstream.%s handshake timeouts must be positive", k)
		case ep.HeartbeatInterval <= 0:
			return fmt.Errorf("upstream.%s.heartbeat_interval must be positive", k)
		}
	}
	return nil
}

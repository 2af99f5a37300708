package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "feed-bridge" || cfg.HTTP.Addr != ":8080" {
		t.Errorf("service = %q, addr = %q", cfg.ServiceName, cfg.HTTP.Addr)
	}
	if cfg.Upstream.Depth.ConnAckTimeout != 6*time.Second || cfg.Upstream.Trade.HeartbeatInterval != 55*time.Second {
		t.Errorf("upstream windows = %+v / %+v", cfg.Upstream.Depth, cfg.Upstream.Trade)
	}
	if !cfg.Upstream.Depth.Chunked || cfg.Upstream.Trade.Chunked {
		t.Error("only depth subscribes chunked")
	}
	if cfg.Token.RenewMargin != 120*time.Second || cfg.Token.Interval != 260*time.Second {
		t.Errorf("token = %+v", cfg.Token)
	}
	if cfg.Feeds.Backoff.MaxInterval != 10*time.Second || cfg.Heatmap.Backoff.MaxInterval != 15*time.Second {
		t.Errorf("backoff caps = %v / %v", cfg.Feeds.Backoff.MaxInterval, cfg.Heatmap.Backoff.MaxInterval)
	}
	if cfg.Heatmap.StallTimeout != 65*time.Second || cfg.Heatmap.Interval != time.Second {
		t.Errorf("heatmap = %+v", cfg.Heatmap)
	}
	if got := cfg.Schema.Quote.Turnover; len(got) != 6 || got[0] != 15 {
		t.Errorf("turnover priority = %v", got)
	}
	if cfg.Kafka.Enabled || cfg.Redis.Enabled {
		t.Error("sinks must be off by default")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed-bridge.yaml")
	yaml := `
heatmap:
  symbols: [garan, thyao]
  keep_alive: true
upstream:
  trade:
    topic_formats: ["mx/trade/{sym}@lvl2", "mx/tradestats/{sym}"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FEEDBRIDGE_UPSTREAM_DEPTH_URL", "ws://localhost:9000/depth")
	t.Setenv("FEEDBRIDGE_SCHEMA_QUOTE_LAST", "5,25,99")
	t.Setenv("FEEDBRIDGE_ADMIN_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Heatmap.Symbols) != 2 || !cfg.Heatmap.KeepAlive {
		t.Errorf("heatmap = %+v", cfg.Heatmap)
	}
	if len(cfg.Upstream.Trade.TopicFormats) != 2 {
		t.Errorf("trade formats = %v", cfg.Upstream.Trade.TopicFormats)
	}
	if cfg.Upstream.Depth.URL != "ws://localhost:9000/depth" {
		t.Errorf("depth url = %q", cfg.Upstream.Depth.URL)
	}
	if l := cfg.Schema.Quote.Last; len(l) != 3 || l[2] != 99 {
		t.Errorf("quote last = %v", l)
	}
	if cfg.Admin.APIKey != "secret" {
		t.Errorf("admin key = %q", cfg.Admin.APIKey)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"depth url", func(c *Config) { c.Upstream.Depth.URL = "" }, "upstream.depth.url"},
		{"http url", func(c *Config) { c.Upstream.Market.URL = "https://x" }, "upstream.market.url"},
		{"template", func(c *Config) { c.Upstream.ConnectTemplate = "%%%" }, "upstream.connect_template"},
		{"override", func(c *Config) { c.Upstream.Depth.SubscribeOverride = "!" }, "upstream.depth.subscribe_override"},
		{"refresh", func(c *Config) { c.Token.Interval = time.Minute }, "token.refresh_interval"},
		{"kafka brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"kafka acks", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.RequiredAcks = "most"
		}, "kafka.required_acks"},
		{"redis", func(c *Config) { c.Redis.Enabled = true }, "redis.addr"},
		{"schema", func(c *Config) { c.Schema.Depth.Price = 0 }, "schema.depth.price"},
		{"quote last", func(c *Config) { c.Schema.Quote.Last = nil }, "schema.quote.last"},
		{"backoff", func(c *Config) { c.Feeds.Backoff.Multiplier = 0.5 }, "feeds.backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestPrint_MasksSecrets(t *testing.T) {
	t.Setenv("FEEDBRIDGE_ADMIN_API_KEY", "admin-secret")
	t.Setenv("FEEDBRIDGE_HEATMAP_SYMBOLS", "GARAN, THYAO")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Heatmap.Symbols) != 2 || cfg.Heatmap.Symbols[1] != "THYAO" {
		t.Errorf("heatmap symbols = %q", cfg.Heatmap.Symbols)
	}

	var buf bytes.Buffer
	if err := cfg.Print(&buf); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if out := buf.String(); strings.Contains(out, "admin-secret") || !strings.Contains(out, "***") {
		t.Errorf("secret not masked:\n%s", out)
	}
	if cfg.Admin.APIKey != "admin-secret" {
		t.Error("Print modified the loaded config")
	}
}

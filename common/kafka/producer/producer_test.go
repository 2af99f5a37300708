package producer

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/feed-bridge/common/backoff"
	commonkafka "github.com/YaganovValera/feed-bridge/common/kafka"
	"github.com/YaganovValera/feed-bridge/common/logger"
)

func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    Config
		wantErr  bool
		wantAcks string
		wantComp string
	}{
		{"empty", Config{}, true, "all", "none"},
		{"noBrokers", Config{Compression: "gzip"}, true, "all", "gzip"},
		{"ok", Config{Brokers: []string{"b1"}}, false, "all", "none"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.applyDefaults()
			if cfg.RequiredAcks != c.wantAcks {
				t.Errorf("RequiredAcks = %q; want %q", cfg.RequiredAcks, c.wantAcks)
			}
			if cfg.Compression != c.wantComp {
				t.Errorf("Compression = %q; want %q", cfg.Compression, c.wantComp)
			}
			if err := cfg.validate(); (err != nil) != c.wantErr {
				t.Errorf("validate() error = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

func TestBuildSaramaConfig(t *testing.T) {
	cases := []struct {
		acks, comp string
		wantAcks   sarama.RequiredAcks
		wantErr    bool
	}{
		{"all", "none", sarama.WaitForAll, false},
		{"LeAdEr", "gzip", sarama.WaitForLocal, false},
		{"none", "zstd", sarama.NoResponse, false},
		{"bogus", "none", 0, true},
		{"all", "brotli", 0, true},
	}
	for _, c := range cases {
		t.Run(c.acks+"/"+c.comp, func(t *testing.T) {
			sc, err := buildSaramaConfig(Config{RequiredAcks: c.acks, Compression: c.comp})
			if c.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sc.Producer.RequiredAcks != c.wantAcks {
				t.Errorf("RequiredAcks = %v; want %v", sc.Producer.RequiredAcks, c.wantAcks)
			}
			if sc.Producer.Idempotent != (c.wantAcks == sarama.WaitForAll) {
				t.Errorf("Idempotent = %v for acks %v", sc.Producer.Idempotent, c.wantAcks)
			}
		})
	}
}

func TestPublish_RetryAndSuccess(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mockProd.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "value" {
			t.Errorf("value = %q", val)
		}
		return nil
	})

	kp := &kafkaProducer{
		prod: mockProd,
		log:  logger.Nop(),
		backoffCfg: backoff.Config{
			InitialInterval: time.Millisecond, Multiplier: 1,
			MaxInterval: time.Millisecond, MaxElapsedTime: time.Second,
		},
	}
	err := kp.Publish(context.Background(), commonkafka.Message{
		Topic:   "feed.trades",
		Key:     []byte("THYAO"),
		Value:   []byte("value"),
		Headers: map[string]string{"content-type": "application/json"},
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := kp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestToSaramaMessage_Headers(t *testing.T) {
	pm := toSaramaMessage(commonkafka.Message{Topic: "t", Value: []byte("v"), Headers: map[string]string{"kind": "trade"}})
	if pm.Key != nil {
		t.Error("nil key must stay nil")
	}
	if len(pm.Headers) != 1 || string(pm.Headers[0].Key) != "kind" || string(pm.Headers[0].Value) != "trade" {
		t.Errorf("headers = %+v", pm.Headers)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.Nop()); err == nil {
		t.Fatal("expected error for empty Config")
	}
}

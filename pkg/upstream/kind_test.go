package upstream

import (
	"encoding/base64"
	"errors"
	"reflect"
	"testing"

	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

func TestTopics(t *testing.T) {
	got := Topics([]string{"mx/trade/{sym}@lvl2", "mx/trades/{symbol}"}, []string{"garan", " thyao ", ""})
	want := []string{"mx/trade/GARAN@lvl2", "mx/trades/GARAN", "mx/trade/THYAO@lvl2", "mx/trades/THYAO"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Topics = %v, want %v", got, want)
	}
}

func TestMarketSymbol(t *testing.T) {
	cases := map[string]string{
		"mx/symbol/GARAN@lvl2": "GARAN",
		"mx/symbol/THYAO":      "THYAO",
		"mx/trade/GARAN@lvl2":  "",
		"":                     "",
	}
	for in, want := range cases {
		if got := MarketSymbol(in); got != want {
			t.Errorf("MarketSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k, got, err)
		}
	}
	if _, err := ParseKind("options"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateAwaitingConnAck, StateSubscribing, true},
		{StateAwaitingSubAck, StateStreaming, true},
		{StateStreaming, StateFailed, true},
		{StateFailed, StateDisconnected, true},
		{StateDisconnected, StateStreaming, false},
		{StateStreaming, StateSubscribing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("%v -> %v = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Trade.URL = "https://example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non websocket URL")
	}
	cfg = DefaultConfig()
	cfg.Market.TopicFormats = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing topic formats")
	}
}

func TestTemplates(t *testing.T) {
	shared := testTemplate()
	cfg := DefaultConfig()
	cfg.ConnectTemplate = base64.StdEncoding.EncodeToString(shared)

	tmpl, err := NewTemplates(cfg)
	if err != nil {
		t.Fatalf("NewTemplates: %v", err)
	}
	if got, ok := tmpl.Connect(KindTrade); !ok || !reflect.DeepEqual(got, shared) {
		t.Error("trade should fall back to the shared template")
	}

	own := append([]byte{}, shared...)
	own[len(own)-1] = '2'
	market := KindMarket
	if err := tmpl.SetConnect(&market, own); err != nil {
		t.Fatalf("SetConnect: %v", err)
	}
	if got, _ := tmpl.Connect(KindMarket); !reflect.DeepEqual(got, own) {
		t.Error("market template not replaced")
	}
	if err := tmpl.SetConnect(nil, []byte{0x10, 0x02, 0x00, 0x00}); !errors.Is(err, mqttwire.ErrTemplateMalformed) {
		t.Errorf("SetConnect(garbage) = %v", err)
	}

	cfg.Trade.ConnectTemplate = "%%%"
	if _, err := NewTemplates(cfg); err == nil {
		t.Error("expected error for invalid base64")
	}

	empty, err := NewTemplates(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := empty.Connect(KindDepth); ok {
		t.Error("no template configured but Connect reported one")
	}
}

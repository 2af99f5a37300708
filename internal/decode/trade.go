package decode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Plausible trade timestamps in epoch milliseconds.
const (
	minTradeMillis = 1_500_000_000_000
	maxTradeMillis = 4_102_444_800_000
)

// Trade is one executed trade.
type Trade struct {
	Topic   string   `json:"topic,omitempty"`
	Symbol  string   `json:"symbol"`
	TradeID string   `json:"trade_id,omitempty"`
	Price   *float64 `json:"price"`
	Qty     *int64   `json:"qty"`
	Side    string   `json:"side"`
	TS      int64    `json:"ts"`
	Buyer   string   `json:"buyer"`
	Seller  string   `json:"seller"`
}

// DecodeTrade scans a trade payload field by field. Unknown fields are
// skipped. The result is raw: see NormalizeTrade.
func DecodeTrade(payload []byte) (Trade, error) {
	var (
		t      Trade
		f1, f2 string
		has1   bool
	)
	err := Scan(payload, func(f Field) bool {
		switch f.Type {
		case protowire.VarintType:
			switch f.Num {
			case 4:
				t.Qty = ptr(int64(f.Varint))
			case 6:
				t.TS = int64(f.Varint)
			}
		case protowire.Fixed32Type:
			if f.Num == 3 {
				t.Price = ptr(float32ToFloat64(f.Fixed32))
			}
		case protowire.BytesType:
			s := strings.ToValidUTF8(string(f.Bytes), "")
			switch f.Num {
			case 1:
				f1, has1 = s, true
			case 2:
				f2 = s
			case 5:
				t.Side = s
			case 7:
				t.Buyer = s
			case 8:
				t.Seller = s
			}
		}
		return true
	})
	if err != nil {
		return Trade{}, fmt.Errorf("trade: %w", err)
	}

	if has1 && !strings.Contains(f1, "/") {
		t.Symbol, t.TradeID = f1, f2
	} else {
		t.Topic, t.Symbol = f1, f2
	}
	return t, nil
}

// NormalizeTrade backfills the symbol from the topic or from fallback and
// rescales the timestamp to milliseconds, replacing implausible values
// with now.
func NormalizeTrade(t *Trade, fallback string, now time.Time) {
	if t.Symbol == "" {
		t.Symbol = SymbolFromTopic(t.Topic)
	}
	if t.Symbol == "" {
		t.Symbol = fallback
	}
	t.Symbol = strings.ToUpper(t.Symbol)
	t.TS = NormalizeMillis(t.TS, now)
}

// NormalizeMillis converts ns, us or s epoch values to ms. Zero and values
// outside the plausible range become now.
func NormalizeMillis(ts int64, now time.Time) int64 {
	switch {
	case ts <= 0:
		return now.UnixMilli()
	case ts >= 1e17:
		ts /= 1e6
	case ts >= 1e14:
		ts /= 1e3
	case ts < 1e11:
		ts *= 1e3
	}
	if ts < minTradeMillis || ts > maxTradeMillis {
		return now.UnixMilli()
	}
	return ts
}

// SymbolFromTopic returns the symbol segment of topics such as
// "mx/trade/GARAN@lvl2".
func SymbolFromTopic(topic string) string {
	if topic == "" {
		return ""
	}
	seg := topic[strings.LastIndexByte(topic, '/')+1:]
	if i := strings.IndexByte(seg, '@'); i >= 0 {
		seg = seg[:i]
	}
	return seg
}

// float32ToFloat64 widens using the shortest decimal form so 12.34f stays 12.34.
func float32ToFloat64(bits uint32) float64 {
	f := math.Float32frombits(bits)
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return v
}

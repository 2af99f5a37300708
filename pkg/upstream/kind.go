package upstream

import (
	"fmt"
	"strings"
)

// Kind selects the endpoint, topic scheme and handshake timings.
type Kind int

const (
	KindDepth Kind = iota
	KindTrade
	KindMarket
)

func (k Kind) String() string {
	switch k {
	case KindDepth:
		return "depth"
	case KindTrade:
		return "trade"
	case KindMarket:
		return "market"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "depth":
		return KindDepth, nil
	case "trade":
		return KindTrade, nil
	case "market":
		return KindMarket, nil
	}
	return 0, fmt.Errorf("upstream: unknown kind %q", s)
}

// Kinds lists every kind in a stable order.
func Kinds() []Kind { return []Kind{KindDepth, KindTrade, KindMarket} }

// Topics expands every format for every symbol. Symbols are upper-cased;
// both {sym} and {symbol} are accepted as placeholders.
func Topics(formats, symbols []string) []string {
	out := make([]string, 0, len(formats)*len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		for _, f := range formats {
			out = append(out, strings.NewReplacer("{sym}", sym, "{symbol}", sym).Replace(f))
		}
	}
	return out
}

const (
	marketTopicPrefix = "mx/symbol/"
	levelSuffix       = "@lvl2"
)

// MarketSymbol recovers the symbol from a market topic such as
// "mx/symbol/GARAN@lvl2". It returns "" for foreign topics.
func MarketSymbol(topic string) string {
	if !strings.HasPrefix(topic, marketTopicPrefix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(topic, marketTopicPrefix), levelSuffix)
}

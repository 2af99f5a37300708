package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/YaganovValera/feed-bridge/internal/decode"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

// QuoteEntry is a merged quote and the time of its last update.
type QuoteEntry struct {
	decode.Quote
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// Quote keeps the merged quote of each symbol.
type Quote struct {
	mu  sync.RWMutex
	m   map[string]QuoteEntry
	now func() time.Time
}

func NewQuote() *Quote {
	return &Quote{m: make(map[string]QuoteEntry), now: time.Now}
}

// Merge overlays q onto the stored quote of symbol and returns the result.
func (h *Quote) Merge(symbol string, q decode.Quote) QuoteEntry {
	symbol = strings.ToUpper(symbol)
	q.Symbol = symbol

	h.mu.Lock()
	prev := h.m[symbol]
	e := QuoteEntry{Quote: prev.Quote.Merge(q), UpdatedAtMs: h.now().UnixMilli()}
	h.m[symbol] = e
	n := len(h.m)
	h.mu.Unlock()

	metrics.HubWrites.WithLabelValues("quote").Inc()
	metrics.HubSymbols.WithLabelValues("quote").Set(float64(n))
	return cloneEntry(e)
}

// Get returns a copy of the quote of symbol.
func (h *Quote) Get(symbol string) (QuoteEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.m[strings.ToUpper(symbol)]
	if !ok {
		return QuoteEntry{}, false
	}
	return cloneEntry(e), true
}

// Snapshot returns a copy of every stored quote.
func (h *Quote) Snapshot() map[string]QuoteEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]QuoteEntry, len(h.m))
	for k, e := range h.m {
		out[k] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e QuoteEntry) QuoteEntry {
	return QuoteEntry{Quote: e.Quote.Clone(), UpdatedAtMs: e.UpdatedAtMs}
}

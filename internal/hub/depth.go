package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/YaganovValera/feed-bridge/internal/decode"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

// DepthEntry is the latest order book of one symbol.
type DepthEntry struct {
	Rows         []decode.DepthRow `json:"rows"`
	ObservedAtMs int64             `json:"observed_at_ms"`
}

// Depth keeps the latest snapshot per symbol. Snapshots replace each
// other wholesale.
type Depth struct {
	mu  sync.RWMutex
	m   map[string]DepthEntry
	now func() time.Time
}

func NewDepth() *Depth {
	return &Depth{m: make(map[string]DepthEntry), now: time.Now}
}

// Set stores rows for symbol. rows must not be modified afterwards.
func (h *Depth) Set(symbol string, rows []decode.DepthRow) {
	symbol = strings.ToUpper(symbol)
	h.mu.Lock()
	h.m[symbol] = DepthEntry{Rows: rows, ObservedAtMs: h.now().UnixMilli()}
	n := len(h.m)
	h.mu.Unlock()

	metrics.HubWrites.WithLabelValues("depth").Inc()
	metrics.HubSymbols.WithLabelValues("depth").Set(float64(n))
}

// Get returns the rows of symbol, or nil when nothing was seen yet.
func (h *Depth) Get(symbol string) []decode.DepthRow {
	e, _ := h.Entry(symbol)
	return e.Rows
}

// Entry returns the rows together with the time they were observed.
func (h *Depth) Entry(symbol string) (DepthEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.m[strings.ToUpper(symbol)]
	return e, ok
}

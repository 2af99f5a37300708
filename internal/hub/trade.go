package hub

import (
	"strings"
	"sync"

	"github.com/YaganovValera/feed-bridge/internal/decode"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

// TradeCapacity is the number of ticks kept per symbol.
const TradeCapacity = 400

// ring is a fixed-capacity FIFO of trades.
type ring struct {
	buf  []decode.Trade
	next int
	full bool
}

func (r *ring) push(t decode.Trade) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, t)
		return
	}
	r.buf[r.next] = t
	r.next = (r.next + 1) % len(r.buf)
	r.full = true
}

func (r *ring) len() int { return len(r.buf) }

// newest returns up to n trades, newest first.
func (r *ring) newest(n int) []decode.Trade {
	size := len(r.buf)
	if n > size {
		n = size
	}
	out := make([]decode.Trade, 0, n)
	// index of the newest element
	last := size - 1
	if r.full {
		last = (r.next - 1 + size) % size
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(last-i+size)%size])
	}
	return out
}

// Trade keeps the most recent ticks of each symbol in arrival order.
type Trade struct {
	mu       sync.RWMutex
	m        map[string]*ring
	capacity int
}

func NewTrade() *Trade { return NewTradeWithCapacity(TradeCapacity) }

func NewTradeWithCapacity(capacity int) *Trade {
	if capacity <= 0 {
		capacity = TradeCapacity
	}
	return &Trade{m: make(map[string]*ring), capacity: capacity}
}

// Append records a tick under symbol, evicting the oldest one when full.
func (h *Trade) Append(symbol string, t decode.Trade) {
	symbol = strings.ToUpper(symbol)
	h.mu.Lock()
	r, ok := h.m[symbol]
	if !ok {
		r = &ring{buf: make([]decode.Trade, 0, h.capacity)}
		h.m[symbol] = r
	}
	r.push(t)
	n := len(h.m)
	h.mu.Unlock()

	metrics.HubWrites.WithLabelValues("trade").Inc()
	if !ok {
		metrics.HubSymbols.WithLabelValues("trade").Set(float64(n))
	}
}

// GetLast returns up to n ticks of symbol, newest first.
func (h *Trade) GetLast(symbol string, n int) []decode.Trade {
	if n <= 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.m[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	return r.newest(n)
}

// Len returns the number of ticks held for symbol.
func (h *Trade) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.m[strings.ToUpper(symbol)]; ok {
		return r.len()
	}
	return 0
}

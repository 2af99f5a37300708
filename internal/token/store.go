package token

import (
	"strings"
	"sync"
	"time"

	"github.com/YaganovValera/feed-bridge/internal/metrics"
)

// DefaultRenewMargin is how long before expiry a token stops being handed out.
const DefaultRenewMargin = 120 * time.Second

// Info is a diagnostic view of the store.
type Info struct {
	HasToken bool  `json:"has_token"`
	Exp      int64 `json:"exp,omitempty"`
	Usable   bool  `json:"usable"`
}

// Store holds the current bearer token and its parsed expiry. It is safe
// for concurrent use; Set may be called at any time.
type Store struct {
	margin time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	token   string
	exp     int64
	hasExp  bool
	changed chan struct{}
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore returns an empty store. A non-positive margin selects
// DefaultRenewMargin.
func NewStore(margin time.Duration, opts ...Option) *Store {
	if margin <= 0 {
		margin = DefaultRenewMargin
	}
	s := &Store{margin: margin, now: time.Now, changed: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set replaces the token and wakes every Changed waiter.
func (s *Store) Set(raw string) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	exp, hasExp := ParseExpiry(raw)

	s.mu.Lock()
	s.token, s.exp, s.hasExp = raw, exp, hasExp
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	metrics.TokenExpiry.Set(float64(exp))
}

// Get returns the token when it is usable: set, and either without a
// known expiry or more than the renew margin away from it.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	raw, exp, hasExp := s.token, s.exp, s.hasExp
	s.mu.RUnlock()
	if raw == "" {
		return "", false
	}
	if hasExp && time.Duration(exp-s.now().Unix())*time.Second <= s.margin {
		return "", false
	}
	return raw, true
}

// Info reports whether a token is present and its expiry.
func (s *Store) Info() Info {
	s.mu.RLock()
	info := Info{HasToken: s.token != "", Exp: s.exp}
	s.mu.RUnlock()
	_, info.Usable = s.Get()
	return info
}

// Changed returns a channel that is closed by the next Set.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Current returns the stored token and expiry regardless of staleness.
// known is false when the token carries no exp claim.
func (s *Store) Current() (raw string, exp int64, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.exp, s.hasExp
}

// Package bridge connects consumers to the upstream feed. Feeds runs
// per-symbol sessions tied to one consumer; Heatmap shares a single
// multi-symbol market session between every subscriber.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/backoff"
	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/internal/decode"
	"github.com/YaganovValera/feed-bridge/internal/hub"
	"github.com/YaganovValera/feed-bridge/internal/metrics"
	"github.com/YaganovValera/feed-bridge/internal/sink"
	"github.com/YaganovValera/feed-bridge/internal/token"
	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
	"github.com/YaganovValera/feed-bridge/pkg/upstream"
)

// Status is the connection signal shown to consumers.
type Status string

const (
	StatusConnected        Status = "connected"
	StatusReconnecting     Status = "reconnecting"
	StatusTokenUnavailable Status = "token_unavailable"
	// StatusTemplateUnavailable means the CONNECT template is missing or
	// cannot be spliced. The feed waits for a replacement template.
	StatusTemplateUnavailable Status = "template_unavailable"
)

// Event is either a status change (Status set) or a data update (one of
// Depth, Trade, Quote set).
type Event struct {
	Kind   upstream.Kind
	Symbol string
	Status Status
	Err    error

	Depth []decode.DepthRow
	Trade *decode.Trade
	Quote *hub.QuoteEntry
}

// Config tunes the reconnect policy of per-symbol feeds.
type Config struct {
	// Symbols are watched for the lifetime of the process.
	Symbols []string `mapstructure:"symbols"`

	Backoff backoff.Config `mapstructure:"backoff"`
	// Jitter is the upper bound of the random delay added to every backoff.
	Jitter time.Duration `mapstructure:"jitter"`
	// TokenWait bounds how long a feed waits for a new token or template
	// before it retries anyway.
	TokenWait time.Duration `mapstructure:"token_wait"`
	Buffer    int           `mapstructure:"buffer"`
}

// DefaultConfig restarts after 1s, 1.7s, ... capped at 10s, plus up to
// 0.5s of jitter.
func DefaultConfig() Config {
	return Config{
		Backoff: backoff.Config{
			InitialInterval: time.Second,
			Multiplier:      1.7,
			MaxInterval:     10 * time.Second,
		},
		Jitter:    500 * time.Millisecond,
		TokenWait: time.Minute,
		Buffer:    64,
	}
}

// Schemas holds the decoder field layouts.
type Schemas struct {
	Depth decode.DepthSchema `mapstructure:"depth"`
	Quote decode.QuoteSchema `mapstructure:"quote"`
}

func DefaultSchemas() Schemas {
	return Schemas{Depth: decode.DefaultDepthSchema(), Quote: decode.DefaultQuoteSchema()}
}

// Deps are the collaborators shared by Feeds and Heatmap.
type Deps struct {
	Upstream  upstream.Config
	Templates *upstream.Templates
	Tokens    *token.Store
	Depth     *hub.Depth
	Trades    *hub.Trade
	Quotes    *hub.Quote
	Sink      sink.Publisher
	Schemas   Schemas
	Log       *logger.Logger
}

func (d *Deps) fill() {
	if d.Sink == nil {
		d.Sink = sink.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
}

// Feeds starts upstream sessions on behalf of consumers.
type Feeds struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

func NewFeeds(cfg Config, deps Deps) *Feeds {
	deps.fill()
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	if cfg.TokenWait <= 0 {
		cfg.TokenWait = DefaultConfig().TokenWait
	}
	return &Feeds{cfg: cfg, deps: deps, log: deps.Log.Named("feed"), now: time.Now, wait: backoff.Wait}
}

// Watch follows the depth and trade streams of symbol until ctx ends.
// Every decoded snapshot and tick is written to the hubs and delivered on
// the returned channel together with status events. The channel is closed
// once both streams have stopped.
func (f *Feeds) Watch(ctx context.Context, symbol string) (<-chan Event, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, upstream.ErrNoSymbols
	}
	depth, err := f.session(upstream.KindDepth, symbol)
	if err != nil {
		return nil, err
	}
	trade, err := f.session(upstream.KindTrade, symbol)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, f.cfg.Buffer)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		follow(ctx, f, depth, symbol, out, f.decodeDepth)
	}()
	go func() {
		defer wg.Done()
		follow(ctx, f, trade, symbol, out, f.decodeTrade(symbol))
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Quote follows the market stream of symbol, merging every update into the
// quote hub.
func (f *Feeds) Quote(ctx context.Context, symbol string) (<-chan Event, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, upstream.ErrNoSymbols
	}
	market, err := f.session(upstream.KindMarket, symbol)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, f.cfg.Buffer)
	go func() {
		defer close(out)
		follow(ctx, f, market, symbol, out, f.decodeQuote(symbol))
	}()
	return out, nil
}

func (f *Feeds) session(kind upstream.Kind, symbol string) (*upstream.Session, error) {
	s, err := upstream.NewSession(f.deps.Upstream, kind, []string{symbol}, f.deps.Tokens, f.deps.Templates, f.log)
	if err != nil {
		return nil, fmt.Errorf("bridge: %s feed for %s: %w", kind, symbol, err)
	}
	return s, nil
}

func (f *Feeds) decodeDepth(pub mqttwire.Publish) (Event, error) {
	rows, err := decode.DecodeDepth(pub.Payload, f.deps.Schemas.Depth)
	if err != nil {
		return Event{}, err
	}
	return Event{Depth: rows}, nil
}

func (f *Feeds) decodeTrade(symbol string) func(mqttwire.Publish) (Event, error) {
	return func(pub mqttwire.Publish) (Event, error) {
		t, err := decode.DecodeTrade(pub.Payload)
		if err != nil {
			return Event{}, err
		}
		if t.Topic == "" {
			t.Topic = pub.Topic
		}
		decode.NormalizeTrade(&t, symbol, f.now())
		return Event{Trade: &t}, nil
	}
}

func (f *Feeds) decodeQuote(symbol string) func(mqttwire.Publish) (Event, error) {
	return func(pub mqttwire.Publish) (Event, error) {
		q, err := decode.DecodeQuote(pub.Payload, f.deps.Schemas.Quote)
		if err != nil {
			return Event{}, err
		}
		q.Symbol = symbol
		return Event{Quote: &hub.QuoteEntry{Quote: q}}, nil
	}
}

// store writes a data event to its hub and the sink. Quote events are
// replaced by the merged hub entry.
func (f *Feeds) store(ctx context.Context, symbol string, ev *Event) {
	var err error
	switch {
	case ev.Depth != nil:
		f.deps.Depth.Set(symbol, ev.Depth)
		if e, ok := f.deps.Depth.Entry(symbol); ok {
			err = f.deps.Sink.PublishDepth(ctx, symbol, e)
		}
	case ev.Trade != nil:
		f.deps.Trades.Append(symbol, *ev.Trade)
		err = f.deps.Sink.PublishTrade(ctx, *ev.Trade)
	case ev.Quote != nil:
		merged := f.deps.Quotes.Merge(symbol, ev.Quote.Quote)
		ev.Quote = &merged
		err = f.deps.Sink.PublishQuote(ctx, merged)
	}
	if err != nil && ctx.Err() == nil {
		f.log.Debug("sink publish failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// waitChange blocks until changed is closed or TokenWait passes. It
// returns false when ctx ends first.
func (f *Feeds) waitChange(ctx context.Context, changed <-chan struct{}) bool {
	t := time.NewTimer(f.cfg.TokenWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-changed:
	case <-t.C:
	}
	return true
}

// follow runs one session for one consumer, reconnecting until ctx ends.
func follow(ctx context.Context, f *Feeds, s *upstream.Session, symbol string, out chan<- Event, dec func(mqttwire.Publish) (Event, error)) {
	kind := s.Kind()
	ctx = logger.ContextWithSymbol(ctx, symbol)
	log := f.log.WithContext(ctx).With(zap.String("kind", kind.String()))

	metrics.ActiveFeeds.WithLabelValues(kind.String()).Inc()
	defer metrics.ActiveFeeds.WithLabelValues(kind.String()).Dec()

	send := func(ev Event) bool {
		ev.Kind, ev.Symbol = kind, symbol
		if ev.Status != "" {
			metrics.FeedStatus.WithLabelValues(kind.String(), string(ev.Status)).Inc()
		}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	bo, err := backoff.NewExponential(f.cfg.Backoff)
	if err != nil {
		log.Error("invalid backoff config", zap.Error(err))
		return
	}
	s.OnState = func(st upstream.State) {
		if st == upstream.StateStreaming {
			send(Event{Status: StatusConnected})
		}
	}
	client := upstream.NewClient(s, dec, log)

	for {
		tokenChanged := f.deps.Tokens.Changed()
		templateChanged := f.deps.Templates.Changed()

		values, errc := client.Stream(ctx)
		for ev := range values {
			bo.Reset()
			f.store(ctx, symbol, &ev)
			send(ev)
		}
		err := <-errc
		if ctx.Err() != nil {
			return
		}

		var (
			status  Status
			changed <-chan struct{}
		)
		switch {
		case errors.Is(err, upstream.ErrTokenUnavailable):
			log.Warn("no usable token, waiting for refresh")
			status, changed = StatusTokenUnavailable, tokenChanged
		case err != nil && !upstream.IsTransient(err):
			log.Error("connect template unusable, waiting for replacement", zap.Error(err))
			status, changed = StatusTemplateUnavailable, templateChanged
		}
		if changed != nil {
			if !send(Event{Status: status, Err: err}) {
				return
			}
			if !f.waitChange(ctx, changed) {
				return
			}
			continue
		}

		delay := bo.NextBackOff()
		if f.cfg.Jitter > 0 {
			delay += rand.N(f.cfg.Jitter)
		}
		log.Warn("feed interrupted, reconnecting", zap.Error(err), zap.Duration("delay", delay))
		if !send(Event{Status: StatusReconnecting, Err: err}) {
			return
		}
		if err := f.wait(ctx, delay); err != nil {
			return
		}
	}
}

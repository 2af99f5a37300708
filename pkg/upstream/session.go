package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

var tracer = otel.Tracer("feed-bridge/upstream")

// TokenSource hands out the bearer token spliced into CONNECT.
type TokenSource interface {
	Get() (string, bool)
}

// EmitFunc receives every PUBLISH that passed the topic filter, in arrival
// order. Payload aliases the received message, which is never reused, so
// it may be retained.
type EmitFunc func(mqttwire.Publish)

// Session is a single connection to one endpoint. Run may be called again
// after it returns; each call is a fresh connection.
type Session struct {
	kind      Kind
	cfg       Config
	ep        EndpointConfig
	topics    []string
	tokens    TokenSource
	templates *Templates
	log       *logger.Logger

	// StallTimeout, when positive, fails the session with ErrStalled if no
	// frame arrives for that long.
	StallTimeout time.Duration
	// OnState, when set, observes every state change.
	OnState func(State)

	state atomic.Int32
}

// NewSession prepares a session of kind subscribed to the topics of
// symbols.
func NewSession(cfg Config, kind Kind, symbols []string, tokens TokenSource, templates *Templates, log *logger.Logger) (*Session, error) {
	ep := cfg.Endpoint(kind)
	topics := Topics(ep.TopicFormats, symbols)
	if len(topics) == 0 {
		return nil, ErrNoSymbols
	}
	if _, ok := templates.Connect(kind); !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoTemplate, kind)
	}
	return &Session{
		kind:      kind,
		cfg:       cfg,
		ep:        ep,
		topics:    topics,
		tokens:    tokens,
		templates: templates,
		log:       log.Named("upstream").With(zap.String("kind", kind.String())),
	}, nil
}

// Kind returns the endpoint kind.
func (s *Session) Kind() Kind { return s.kind }

// Topics returns the subscribed topics.
func (s *Session) Topics() []string { return s.topics }

// State returns the current state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) transition(to State) {
	from := State(s.state.Load())
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		s.log.Warn("unexpected state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	s.state.Store(int32(to))
	s.log.Debug("state", zap.Stringer("from", from), zap.Stringer("to", to))
	if s.OnState != nil {
		s.OnState(to)
	}
}

// Run connects, performs the handshake and forwards PUBLISH packets to
// emit until the connection ends or ctx is cancelled. It always returns a
// non-nil error; ctx.Err() after cancellation.
func (s *Session) Run(ctx context.Context, emit EmitFunc) (err error) {
	id := uuid.NewString()
	ctx = logger.ContextWithSessionID(ctx, id)
	log := s.log.WithContext(ctx)

	ctx, span := tracer.Start(ctx, "upstream.session")
	span.SetAttributes(
		attribute.String("upstream.kind", s.kind.String()),
		attribute.Int("upstream.topics", len(s.topics)),
		attribute.String("upstream.session_id", id),
	)
	defer func() {
		if err != nil && ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.state.Store(int32(StateDisconnected))
	s.transition(StateConnecting)
	defer func() {
		if ctx.Err() != nil {
			s.transition(StateClosing)
		} else {
			s.transition(StateFailed)
		}
		s.transition(StateDisconnected)
	}()

	connect, err := s.connectPacket()
	if err != nil {
		return err
	}

	conn, err := dial(ctx, s.cfg, s.ep.URL, s.ep.PingInterval, log)
	if err != nil {
		connects.WithLabelValues(s.kind.String(), "error").Inc()
		return err
	}
	connects.WithLabelValues(s.kind.String(), "ok").Inc()
	log.Info("connected", zap.String("url", s.ep.URL), zap.Strings("topics", s.topics))

	connCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(connCtx, conn.close)
	defer cancel()
	go conn.readLoop(connCtx)
	go conn.keepalive(connCtx, s.ep.PingInterval)

	if err := conn.send([]byte{mqttwire.PreambleByte}, "preamble"); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.PreambleDelay); err != nil {
		return err
	}
	if err := conn.send(connect, "connect"); err != nil {
		return err
	}

	s.transition(StateAwaitingConnAck)
	if err := s.await(ctx, conn, mqttwire.KindConnAck, s.ep.ConnAckTimeout, emit, log); err != nil {
		return err
	}

	s.transition(StateSubscribing)
	if err := s.subscribe(ctx, conn); err != nil {
		return err
	}

	s.transition(StateAwaitingSubAck)
	if err := s.await(ctx, conn, mqttwire.KindSubAck, s.ep.SubAckTimeout, emit, log); err != nil {
		return err
	}

	s.transition(StateStreaming)
	go s.heartbeat(connCtx, conn, log)
	return s.stream(ctx, conn, emit, log)
}

func (s *Session) connectPacket() ([]byte, error) {
	tok, ok := s.tokens.Get()
	if !ok {
		connects.WithLabelValues(s.kind.String(), "no_token").Inc()
		return nil, ErrTokenUnavailable
	}
	tmpl, ok := s.templates.Connect(s.kind)
	if !ok {
		connects.WithLabelValues(s.kind.String(), "no_template").Inc()
		return nil, fmt.Errorf("%w for %s", ErrNoTemplate, s.kind)
	}
	pkt, err := mqttwire.SpliceToken(tmpl, []byte(tok))
	if err != nil {
		connects.WithLabelValues(s.kind.String(), "template").Inc()
		return nil, fmt.Errorf("upstream: build connect: %w", err)
	}
	return pkt, nil
}

func (s *Session) subscribe(ctx context.Context, conn *wsConn) error {
	if err := conn.send([]byte{mqttwire.SubscribeHeader}, "subscribe header"); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.PreambleDelay); err != nil {
		return err
	}

	var (
		body []byte
		err  error
	)
	switch {
	case s.ep.Chunked && s.templates.SubscribeOverride() != nil:
		body = s.templates.SubscribeOverride()
	case s.ep.Chunked:
		body, err = mqttwire.ChunkedSubscribe(s.topics, mqttwire.RandomPacketID())
	default:
		body, err = mqttwire.Subscribe(mqttwire.RandomPacketID(), s.topics)
	}
	if err != nil {
		return fmt.Errorf("upstream: build subscribe: %w", err)
	}
	return conn.send(body, "subscribe body")
}

// await reads frames until a packet of kind want arrives or window ends.
// PUBLISH packets seen meanwhile are forwarded. A timeout is logged and
// the handshake carries on.
func (s *Session) await(ctx context.Context, conn *wsConn, want mqttwire.Kind, window time.Duration, emit EmitFunc, log *logger.Logger) error {
	phase := want.String()
	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			handshakes.WithLabelValues(s.kind.String(), phase, "timeout").Inc()
			log.Warn("handshake window elapsed, continuing",
				zap.String("phase", phase),
				zap.Duration("window", window),
				zap.Error(ErrHandshakeTimeout))
			return nil
		case frame, ok := <-conn.frames:
			if !ok {
				return conn.Err()
			}
			if s.dispatch(frame, want, emit, log) {
				handshakes.WithLabelValues(s.kind.String(), phase, "ok").Inc()
				log.Info("handshake ack", zap.String("phase", phase))
				return nil
			}
		}
	}
}

func (s *Session) stream(ctx context.Context, conn *wsConn, emit EmitFunc, log *logger.Logger) error {
	var (
		stall  *time.Timer
		stallC <-chan time.Time
	)
	if s.StallTimeout > 0 {
		stall = time.NewTimer(s.StallTimeout)
		defer stall.Stop()
		stallC = stall.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stallC:
			log.Warn("no frames from upstream", zap.Duration("timeout", s.StallTimeout))
			return ErrStalled
		case frame, ok := <-conn.frames:
			if !ok {
				err := conn.Err()
				log.Info("stream ended", zap.Error(err))
				return err
			}
			if stall != nil {
				stall.Reset(s.StallTimeout)
			}
			s.dispatch(frame, mqttwire.KindOther, emit, log)
		}
	}
}

// dispatch handles every packet of one frame and reports whether a packet
// of kind want was among them.
func (s *Session) dispatch(frame []byte, want mqttwire.Kind, emit EmitFunc, log *logger.Logger) bool {
	kind := s.kind.String()
	frames.WithLabelValues(kind).Inc()

	seen := false
	for _, p := range mqttwire.Split(frame) {
		switch k := mqttwire.Classify(p); k {
		case mqttwire.KindPublish:
			pub, err := mqttwire.ExtractPublish(p)
			if err != nil {
				publishes.WithLabelValues(kind, "malformed").Inc()
				log.Debug("malformed publish skipped", zap.Error(err))
				continue
			}
			if !s.accept(pub.Topic) {
				publishes.WithLabelValues(kind, "filtered").Inc()
				continue
			}
			publishes.WithLabelValues(kind, "forwarded").Inc()
			emit(pub)
		case mqttwire.KindConnAckRefused:
			handshakes.WithLabelValues(kind, "connack", "refused").Inc()
			log.Warn("connack refused", zap.Binary("body", p.Body))
		case mqttwire.KindSubAck:
			switch want {
			case mqttwire.KindConnAck:
				log.Info("early suback ignored", zap.Int("len", len(p.Body)))
			case mqttwire.KindSubAck:
				seen = true
			default:
				log.Debug("suback", zap.Int("len", len(p.Body)))
			}
		case mqttwire.KindConnAck:
			if want == k {
				seen = true
			}
		default:
			log.Debug("packet ignored", zap.Uint8("header", p.Header), zap.Int("len", len(p.Body)))
		}
	}
	return seen
}

func (s *Session) accept(topic string) bool {
	if topic == "" {
		return false
	}
	if len(s.ep.FilterPrefixes) == 0 {
		return true
	}
	for _, p := range s.ep.FilterPrefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

// heartbeat sends the keepalive frame at once and then every interval.
func (s *Session) heartbeat(ctx context.Context, conn *wsConn, log *logger.Logger) {
	t := time.NewTicker(s.ep.HeartbeatInterval)
	defer t.Stop()
	for {
		if err := conn.send(mqttwire.HeartbeatFrame(), "heartbeat"); err != nil {
			if ctx.Err() == nil {
				log.Debug("heartbeat failed", zap.Error(err))
			}
			return
		}
		heartbeats.WithLabelValues(s.kind.String()).Inc()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsTransient reports whether err is worth a reconnect.
func IsTransient(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, ErrNoTemplate) &&
		!errors.Is(err, mqttwire.ErrTemplateMalformed)
}

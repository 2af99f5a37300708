package upstream

import (
	"context"

	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

// Decoder turns a PUBLISH into a typed value. An error drops the payload.
type Decoder[T any] func(pub mqttwire.Publish) (T, error)

// Client runs one Session and decodes what it forwards.
type Client[T any] struct {
	session *Session
	decode  Decoder[T]
	buffer  int
	log     *logger.Logger
}

func NewClient[T any](session *Session, decode func(mqttwire.Publish) (T, error), log *logger.Logger) *Client[T] {
	return &Client[T]{
		session: session,
		decode:  decode,
		buffer:  session.cfg.BufferSize,
		log:     log.Named("client").With(zap.String("kind", session.kind.String())),
	}
}

// Session exposes the underlying session, e.g. to set OnState.
func (c *Client[T]) Session() *Session { return c.session }

// Stream connects once and delivers decoded values until the connection
// ends. The value channel is closed first; the error channel then yields
// the terminal error and is closed.
func (c *Client[T]) Stream(ctx context.Context) (<-chan T, <-chan error) {
	out := make(chan T, c.buffer)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		err := c.session.Run(ctx, func(pub mqttwire.Publish) {
			v, err := c.decode(pub)
			if err != nil {
				decodeErrors.WithLabelValues(c.session.kind.String()).Inc()
				c.log.Debug("payload dropped", zap.String("topic", pub.Topic), zap.Error(err))
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
			}
		})
		close(out)
		errc <- err
	}()
	return out, errc
}

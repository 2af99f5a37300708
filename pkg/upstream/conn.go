package upstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/feed-bridge/common/logger"
)

const previewLen = 120

// wsConn serialises writes on a gorilla connection and turns its blocking
// reads into a channel of binary messages.
type wsConn struct {
	ws  *websocket.Conn
	log *logger.Logger

	writeTimeout time.Duration
	readWindow   time.Duration

	wmu sync.Mutex

	frames chan []byte
	err    error // set before frames is closed
}

func dial(ctx context.Context, cfg Config, url string, pingInterval time.Duration, log *logger.Logger) (*wsConn, error) {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	if cfg.Subprotocol != "" {
		d.Subprotocols = []string{cfg.Subprotocol}
	}
	h := http.Header{}
	h.Set("Origin", cfg.Origin)
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")
	if cfg.UserAgent != "" {
		h.Set("User-Agent", cfg.UserAgent)
	}

	ws, resp, err := d.DialContext(ctx, url, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &wsConn{
		ws:           ws,
		log:          log,
		writeTimeout: cfg.WriteTimeout,
		frames:       make(chan []byte, cfg.BufferSize),
	}
	if pingInterval > 0 {
		c.readWindow = pingInterval + cfg.PongTimeout
		c.extendRead()
		ws.SetPongHandler(func(string) error {
			c.extendRead()
			return nil
		})
	}
	return c, nil
}

// send writes one binary message. note only labels the debug log.
func (c *wsConn) send(b []byte, note string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("send %s: %w", note, err)
	}
	c.log.Debug("ws -> upstream",
		zap.String("note", note),
		zap.Int("len", len(b)),
		zap.String("b64", preview(b)),
	)
	return nil
}

// readLoop forwards binary messages until the connection fails. The
// channel is closed afterwards and Err reports why.
func (c *wsConn) readLoop(ctx context.Context) {
	defer close(c.frames)
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			c.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			return
		}
		c.extendRead()
		if typ != websocket.BinaryMessage {
			continue
		}
		select {
		case c.frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// keepalive sends transport pings until ctx is done.
func (c *wsConn) keepalive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				c.log.Debug("ws ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *wsConn) extendRead() {
	if c.readWindow > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readWindow))
	}
}

// Err returns the read error. Only valid once frames has been closed.
func (c *wsConn) Err() error {
	if c.err == nil {
		return ErrConnectionClosed
	}
	return c.err
}

// close sends a close frame on a best effort basis and drops the socket.
func (c *wsConn) close() {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	if err := c.ws.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.log.Debug("ws close", zap.Error(err))
	}
}

func preview(b []byte) string {
	s := base64.StdEncoding.EncodeToString(b)
	if len(s) > previewLen {
		return s[:previewLen]
	}
	return s
}

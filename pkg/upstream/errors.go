package upstream

import "errors"

var (
	// ErrTokenUnavailable means the token source had no usable token. It
	// is not a network failure and should not be retried in a tight loop.
	ErrTokenUnavailable = errors.New("upstream: no usable token")

	// ErrHandshakeTimeout is logged and counted when CONNACK or SUBACK does
	// not arrive in time. The session carries on regardless.
	ErrHandshakeTimeout = errors.New("upstream: handshake timeout")

	// ErrConnectionClosed is returned when the peer closes the socket or a
	// read fails.
	ErrConnectionClosed = errors.New("upstream: connection closed")

	// ErrStalled is returned when no frame arrived within the stall timeout.
	ErrStalled = errors.New("upstream: stream stalled")

	// ErrNoTemplate means no CONNECT template is configured for the kind.
	ErrNoTemplate = errors.New("upstream: no connect template")

	// ErrNoSymbols is returned when a session is built without symbols.
	ErrNoSymbols = errors.New("upstream: no symbols configured")
)

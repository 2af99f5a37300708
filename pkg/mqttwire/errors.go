package mqttwire

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTruncated is returned when a buffer ends inside a varint.
	ErrFrameTruncated = errors.New("mqttwire: frame truncated")
	// ErrVarintTooLarge is returned when a remaining length uses more than
	// four bytes.
	ErrVarintTooLarge = errors.New("mqttwire: remaining length varint too large")
	// ErrLengthOutOfRange is returned by the encoder for values ≥ 128^4.
	ErrLengthOutOfRange = errors.New("mqttwire: remaining length out of range")
	// ErrFrameMalformed marks a packet whose inner length fields overrun it.
	ErrFrameMalformed = errors.New("mqttwire: malformed packet")

	// ErrTemplateMalformed is the parent of every CONNECT template error.
	ErrTemplateMalformed = errors.New("mqttwire: connect template malformed")
	ErrTokenSpanNotFound = fmt.Errorf("%w: token span not found", ErrTemplateMalformed)
	ErrTokenSpanInvalid  = fmt.Errorf("%w: token span length invalid", ErrTemplateMalformed)
	ErrNoLengthFieldRoom = fmt.Errorf("%w: no room for length field before token", ErrTemplateMalformed)
	ErrTokenTooLong      = fmt.Errorf("%w: token longer than 65535 bytes", ErrTemplateMalformed)

	// ErrTopicTooLong is returned when a topic does not fit a 16-bit length.
	ErrTopicTooLong = errors.New("mqttwire: topic longer than 65535 bytes")
	// ErrNoTopics is returned when a SUBSCRIBE is built without topics.
	ErrNoTopics = errors.New("mqttwire: no topics to subscribe")
)

package mqttwire

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// PacketType is the high nibble of the fixed header byte.
type PacketType byte

const (
	TypeConnect   PacketType = 0x01
	TypeConnAck   PacketType = 0x02
	TypePublish   PacketType = 0x03
	TypeSubscribe PacketType = 0x08
	TypeSubAck    PacketType = 0x09
	TypePingReq   PacketType = 0x0C
	TypePingResp  PacketType = 0x0D
)

// Fixed bytes of the upstream dialect.
const (
	PreambleByte    byte = 0x10
	ConnAckHeader   byte = 0x20
	SubscribeHeader byte = 0x82
)

// HeartbeatFrame returns the two byte keepalive frame (PINGREQ, length 0).
func HeartbeatFrame() []byte { return []byte{0xC0, 0x00} }

// Packet is one packet located inside a frame. Body aliases the frame.
type Packet struct {
	Header byte
	Body   []byte
}

func (p Packet) Type() PacketType { return PacketType(p.Header >> 4) }
func (p Packet) Flags() byte      { return p.Header & 0x0F }
func (p Packet) QoS() byte        { return (p.Header >> 1) & 0x03 }

// Kind classifies a packet for the session state machine.
type Kind int

const (
	KindOther Kind = iota
	KindConnAck
	KindConnAckRefused
	KindSubAck
	KindPublish
)

func (k Kind) String() string {
	switch k {
	case KindConnAck:
		return "connack"
	case KindConnAckRefused:
		return "connack_refused"
	case KindSubAck:
		return "suback"
	case KindPublish:
		return "publish"
	default:
		return "other"
	}
}

// Split walks the packets concatenated in one WebSocket message. It stops
// at the first header whose length cannot be read or whose body overruns
// the buffer; the bytes after that point are ignored.
func Split(frame []byte) []Packet {
	var out []Packet
	pos := 0
	for pos+2 <= len(frame) {
		header := frame[pos]
		length, n, err := DecodeVarLen(frame, pos+1)
		if err != nil {
			break
		}
		start := pos + 1 + n
		end := start + length
		if end > len(frame) {
			break
		}
		out = append(out, Packet{Header: header, Body: frame[start:end]})
		pos = end
	}
	return out
}

// Classify maps a packet to its Kind. A CONNACK is recognised by the exact
// header 0x20; it counts as accepted only when the body starts 0x00 0x00.
func Classify(p Packet) Kind {
	if p.Header == ConnAckHeader {
		if len(p.Body) >= 2 && p.Body[0] == 0x00 && p.Body[1] == 0x00 {
			return KindConnAck
		}
		return KindConnAckRefused
	}
	switch p.Type() {
	case TypeSubAck:
		return KindSubAck
	case TypePublish:
		return KindPublish
	default:
		return KindOther
	}
}

// Publish is the decoded variable header and payload of a PUBLISH packet.
type Publish struct {
	Topic    string
	PacketID uint16
	QoS      byte
	Payload  []byte
}

// ExtractPublish decodes a PUBLISH body. The packet id is present only
// when QoS > 0. Payload aliases the packet body.
func ExtractPublish(p Packet) (Publish, error) {
	if p.Type() != TypePublish {
		return Publish{}, fmt.Errorf("%w: type %#x is not PUBLISH", ErrFrameMalformed, byte(p.Type()))
	}
	b := p.Body
	if len(b) < 2 {
		return Publish{}, fmt.Errorf("%w: no topic length", ErrFrameMalformed)
	}
	tlen := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if tlen > len(b) {
		return Publish{}, fmt.Errorf("%w: topic length %d exceeds %d", ErrFrameMalformed, tlen, len(b))
	}
	pub := Publish{QoS: p.QoS()}
	if utf8.Valid(b[:tlen]) {
		pub.Topic = string(b[:tlen])
	}
	b = b[tlen:]
	if pub.QoS > 0 {
		if len(b) < 2 {
			return Publish{}, fmt.Errorf("%w: no packet id", ErrFrameMalformed)
		}
		pub.PacketID = binary.BigEndian.Uint16(b)
		b = b[2:]
	}
	pub.Payload = b
	return pub, nil
}

// Publishes returns every well-formed PUBLISH in frame, in order.
// Malformed PUBLISH bodies are skipped.
func Publishes(frame []byte) []Publish {
	var out []Publish
	for _, p := range Split(frame) {
		if Classify(p) != KindPublish {
			continue
		}
		if pub, err := ExtractPublish(p); err == nil {
			out = append(out, pub)
		}
	}
	return out
}

package mqttwire

import (
	"encoding/binary"
	"math/rand/v2"
)

// Packet ids are drawn from this range so that ids of consecutive
// connections rarely collide.
const (
	MinPacketID uint16 = 0x2000
	MaxPacketID uint16 = 0x7FFF
)

// RandomPacketID returns a packet id in [MinPacketID, MaxPacketID].
func RandomPacketID() uint16 {
	return MinPacketID + uint16(rand.IntN(int(MaxPacketID-MinPacketID)+1))
}

func appendTopic(dst []byte, topic string) ([]byte, error) {
	if len(topic) > 0xFFFF {
		return dst, ErrTopicTooLong
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(topic)))
	dst = append(dst, topic...)
	return append(dst, 0x00), nil // QoS 0
}

// ChunkedSubscribe builds the depth endpoint's SUBSCRIBE payload: one
// length-prefixed body per topic with packet ids basePID, basePID+1, ...
// The first chunk carries no header byte because the caller has already
// sent SubscribeHeader as its own frame; every following chunk is
// preceded by SubscribeHeader.
func ChunkedSubscribe(topics []string, basePID uint16) ([]byte, error) {
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	var out []byte
	for i, topic := range topics {
		body := binary.BigEndian.AppendUint16(make([]byte, 0, 5+len(topic)), basePID+uint16(i))
		body, err := appendTopic(body, topic)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, SubscribeHeader)
		}
		if out, err = AppendVarLen(out, len(body)); err != nil {
			return nil, err
		}
		out = append(out, body...)
	}
	return out, nil
}

// Subscribe builds a standard SUBSCRIBE payload (without the header byte):
// the remaining length, one packet id and every topic with QoS 0.
func Subscribe(pid uint16, topics []string) ([]byte, error) {
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	body := binary.BigEndian.AppendUint16(nil, pid)
	for _, topic := range topics {
		var err error
		if body, err = appendTopic(body, topic); err != nil {
			return nil, err
		}
	}
	out, err := AppendVarLen(make([]byte, 0, len(body)+4), len(body))
	if err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

package mqttwire

import (
	"bytes"
	"testing"
)

func publishPacket(t *testing.T, header byte, topic string, pid []byte, payload []byte) []byte {
	t.Helper()
	body := []byte{byte(len(topic) >> 8), byte(len(topic))}
	body = append(body, topic...)
	body = append(body, pid...)
	body = append(body, payload...)
	out, err := AppendVarLen([]byte{header}, len(body))
	if err != nil {
		t.Fatal(err)
	}
	return append(out, body...)
}

func TestClassify_ConnAck(t *testing.T) {
	cases := []struct {
		frame []byte
		want  Kind
	}{
		{[]byte{0x20, 0x02, 0x00, 0x00}, KindConnAck},
		{[]byte{0x20, 0x02, 0x00, 0x01}, KindConnAckRefused},
		{[]byte{0x20, 0x02, 0x01, 0x00}, KindConnAckRefused},
		{[]byte{0x20, 0x01, 0x00}, KindConnAckRefused},
		{[]byte{0x90, 0x03, 0x20, 0x00, 0x00}, KindSubAck},
		{[]byte{0xD0, 0x00}, KindOther},
	}
	for _, c := range cases {
		pkts := Split(c.frame)
		if len(pkts) != 1 {
			t.Fatalf("% x: got %d packets", c.frame, len(pkts))
		}
		if got := Classify(pkts[0]); got != c.want {
			t.Errorf("% x: Classify = %v; want %v", c.frame, got, c.want)
		}
	}
}

func TestSplit_SubAckThenPublish(t *testing.T) {
	suback := []byte{0x90, 0x03, 0x21, 0x34, 0x00}
	pub := publishPacket(t, 0x30, "mx/depth/THYAO@lvl2", nil, []byte{0x0A, 0x01, 0x02})
	frame := append(append([]byte{}, suback...), pub...)

	pkts := Split(frame)
	if len(pkts) != 2 {
		t.Fatalf("got %d packets; want 2", len(pkts))
	}
	if Classify(pkts[0]) != KindSubAck || Classify(pkts[1]) != KindPublish {
		t.Fatalf("kinds = %v, %v", Classify(pkts[0]), Classify(pkts[1]))
	}
	p, err := ExtractPublish(pkts[1])
	if err != nil {
		t.Fatalf("ExtractPublish: %v", err)
	}
	if p.Topic != "mx/depth/THYAO@lvl2" {
		t.Errorf("topic = %q", p.Topic)
	}
	if !bytes.Equal(p.Payload, []byte{0x0A, 0x01, 0x02}) {
		t.Errorf("payload = % x", p.Payload)
	}
}

func TestSplit_StopsOnTruncation(t *testing.T) {
	pub := publishPacket(t, 0x30, "a/b", nil, []byte("xyz"))
	cases := map[string][]byte{
		"single byte":      append(append([]byte{}, pub...), 0x30),
		"body overruns":    append(append([]byte{}, pub...), 0x30, 0x10, 0x00),
		"open varint":      append(append([]byte{}, pub...), 0x30, 0x80),
		"oversized varint": append(append([]byte{}, pub...), 0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x01),
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			if got := len(Split(frame)); got != 1 {
				t.Errorf("got %d packets; want 1", got)
			}
		})
	}
}

func TestExtractPublish_QoSPacketID(t *testing.T) {
	frame := publishPacket(t, 0x32, "mx/trade/GARAN@lvl2", []byte{0x12, 0x34}, []byte("payload"))
	pubs := Publishes(frame)
	if len(pubs) != 1 {
		t.Fatalf("got %d publishes", len(pubs))
	}
	if pubs[0].QoS != 1 || pubs[0].PacketID != 0x1234 {
		t.Errorf("qos=%d pid=%#x", pubs[0].QoS, pubs[0].PacketID)
	}
	if string(pubs[0].Payload) != "payload" {
		t.Errorf("payload = %q", pubs[0].Payload)
	}
}

func TestPublishes_SkipsMalformed(t *testing.T) {
	bad := []byte{0x30, 0x03, 0x00, 0x09, 'a'} // topic length 9, one byte left
	good := publishPacket(t, 0x30, "t", nil, []byte{0x01})
	pubs := Publishes(append(bad, good...))
	if len(pubs) != 1 || pubs[0].Topic != "t" {
		t.Fatalf("publishes = %+v", pubs)
	}
}

func TestHeartbeatFrame(t *testing.T) {
	hb := HeartbeatFrame()
	if !bytes.Equal(hb, []byte{0xC0, 0x00}) {
		t.Fatalf("heartbeat = % x", hb)
	}
	hb[0] = 0
	if HeartbeatFrame()[0] != 0xC0 {
		t.Fatal("HeartbeatFrame must return a fresh slice")
	}
}

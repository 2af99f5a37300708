package upstream

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "connects_total",
		Help: "Connection attempts by kind and outcome",
	}, []string{"kind", "outcome"})

	handshakes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "handshakes_total",
		Help: "CONNACK/SUBACK waits by kind, phase and outcome",
	}, []string{"kind", "phase", "outcome"})

	frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "frames_total",
		Help: "Binary WebSocket messages received",
	}, []string{"kind"})

	publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "publishes_total",
		Help: "PUBLISH packets by kind and result (forwarded, filtered, malformed)",
	}, []string{"kind", "result"})

	decodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "decode_errors_total",
		Help: "Payloads dropped by the typed clients",
	}, []string{"kind"})

	heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "heartbeats_total",
		Help: "Heartbeat frames sent",
	}, []string{"kind"})

	reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedbridge", Subsystem: "upstream", Name: "aggregate_reconnects_total",
		Help: "Aggregate session restarts by cause",
	}, []string{"cause"})
)

// RegisterMetrics registers the upstream collectors once. A nil r selects
// the default registerer.
func RegisterMetrics(r prometheus.Registerer) {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	once.Do(func() {
		collectors := []prometheus.Collector{connects, handshakes, frames, publishes, decodeErrors, heartbeats, reconnects}
		for _, c := range collectors {
			_ = r.Register(c)
		}
	})
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedbridge"

var (
	once sync.Once

	// TokenSets counts bearer token updates by source (admin, refresher, mirror, config).
	TokenSets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "token", Name: "sets_total",
		Help: "Bearer token updates by source",
	}, []string{"source"})

	// TokenRefreshes counts refresher harvest attempts by outcome.
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "token", Name: "refreshes_total",
		Help: "Token harvest attempts by outcome",
	}, []string{"outcome"})

	// TokenExpiry is the exp claim of the current token (unix seconds, 0 when unknown).
	TokenExpiry = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "token", Name: "expiry_unix_seconds",
		Help: "Expiry of the current bearer token",
	})

	// DecodeErrors counts payloads that could not be decoded, by feed kind.
	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "decode", Name: "errors_total",
		Help: "Payloads dropped because decoding failed",
	}, []string{"kind"})

	// HubWrites counts hub updates.
	HubWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "hub", Name: "writes_total",
		Help: "Hub writes by hub",
	}, []string{"hub"})

	// HubSymbols is the number of symbols held per hub.
	HubSymbols = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "hub", Name: "symbols",
		Help: "Symbols held per hub",
	}, []string{"hub"})

	// FeedStatus counts status signals sent to watchers.
	FeedStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "feed", Name: "status_total",
		Help: "Status signals emitted to watchers by feed kind and status",
	}, []string{"kind", "status"})

	// ActiveFeeds is the number of running per-symbol feeds.
	ActiveFeeds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "feed", Name: "active",
		Help: "Running per-symbol feeds by kind",
	}, []string{"kind"})

	// HeatmapSubscribers is the number of registered heatmap consumers.
	HeatmapSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "heatmap", Name: "subscribers",
		Help: "Registered heatmap consumers",
	})

	// HeatmapBroadcasts counts snapshot deliveries, dropped ones included.
	HeatmapBroadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "heatmap", Name: "broadcasts_total",
		Help: "Heatmap snapshot deliveries by outcome",
	}, []string{"outcome"})

	// SinkErrors counts failed sink publishes by record kind.
	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sink", Name: "errors_total",
		Help: "Failed sink publishes by record kind",
	}, []string{"kind"})
)

// Register registers every collector once. Without arguments the default
// registerer is used.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		}
		reg.MustRegister(
			TokenSets,
			TokenRefreshes,
			TokenExpiry,
			DecodeErrors,
			HubWrites,
			HubSymbols,
			FeedStatus,
			ActiveFeeds,
			HeatmapSubscribers,
			HeatmapBroadcasts,
			SinkErrors,
		)
	})
}

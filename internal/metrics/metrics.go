// Package metrics provides Prometheus collectors for the mesh engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine updates.
type Metrics struct {
	Registry *prometheus.Registry

	// Link metrics
	Peers          prometheus.Gauge
	PeersConnected *prometheus.CounterVec // by direction
	PeersPruned    prometheus.Counter

	// Frame metrics
	FramesSent      prometheus.Counter
	FramesReceived  prometheus.Counter
	FramesMalformed prometheus.Counter

	// Discovery metrics
	DiscoveryReceived prometheus.Counter
	DiscoveryDropped  prometheus.Counter

	// Dispatch metrics
	HandlerErrors  prometheus.Counter
	DispatchQueued prometheus.Gauge
}

// New creates collectors under namespace and registers them on a fresh
// registry, so several engines can live in one process.
func New(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of live peers in the registry",
		}),
		PeersConnected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_connected_total",
			Help:      "Total number of peer links established",
		}, []string{"direction"}),
		PeersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_pruned_total",
			Help:      "Total number of peers removed after a failed write",
		}),

		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to peers",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of well-formed frames read from peers",
		}),
		FramesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Total number of frames dropped as malformed or oversized",
		}),

		DiscoveryReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_datagrams_total",
			Help:      "Total number of valid discovery datagrams received",
		}),
		DiscoveryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_dropped_total",
			Help:      "Total number of discovery datagrams dropped (bad or duplicate)",
		}),

		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Total number of handler invocations that failed",
		}),
		DispatchQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_length",
			Help:      "Number of dispatch messages waiting for the dispatcher",
		}),
	}

	m.Registry.MustRegister(
		m.Peers,
		m.PeersConnected,
		m.PeersPruned,
		m.FramesSent,
		m.FramesReceived,
		m.FramesMalformed,
		m.DiscoveryReceived,
		m.DiscoveryDropped,
		m.HandlerErrors,
		m.DispatchQueued,
	)
	return m
}

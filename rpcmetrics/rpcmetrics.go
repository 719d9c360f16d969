// Package rpcmetrics exposes the Prometheus gauges/counters shared by every
// adapter and the RPC core: a process-wide ActiveStreams/ActiveConnections
// gauge pair passed into each adapter, plus a namespace/subsystem layout
// for per-method call counters and handler latency histograms.
package rpcmetrics

import "github.com/prometheus/client_golang/prometheus"

const (
	Namespace = "zrpc"

	transportSubsystem = "transport"
	coreSubsystem      = "core"
)

var (
	// ActiveStreams is shared across every Connection of every adapter, the
	// same way h2mux.ActiveStreams is a single process-wide gauge.
	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: transportSubsystem,
		Name:      "active_streams",
		Help:      "Number of RPC streams currently open across all connections.",
	})

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: transportSubsystem,
		Name:      "active_connections",
		Help:      "Number of live transport connections.",
	})

	FramesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: transportSubsystem,
		Name:      "frames_read_total",
		Help:      "Frames read, labeled by adapter and frame type.",
	}, []string{"adapter", "frame_type"})

	FramesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: transportSubsystem,
		Name:      "frames_written_total",
		Help:      "Frames written, labeled by adapter and frame type.",
	}, []string{"adapter", "frame_type"})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: coreSubsystem,
		Name:      "handler_duration_seconds",
		Help:      "Server-side handler latency, labeled by method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	CallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: coreSubsystem,
		Name:      "calls_total",
		Help:      "Client-initiated calls, labeled by method and status.",
	}, []string{"method", "status"})
)

func init() {
	prometheus.MustRegister(
		ActiveStreams,
		ActiveConnections,
		FramesRead,
		FramesWritten,
		HandlerDuration,
		CallsTotal,
	)
}

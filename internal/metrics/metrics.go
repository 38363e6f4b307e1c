// Package metrics registers the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_online",
			Help: "Live authenticated sessions",
		},
	)

	HandshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_handshake_rejections_total",
			Help: "Rejected connection attempts by reason",
		},
		[]string{"reason"},
	)

	EventsIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_in_total",
			Help: "Inbound client events by kind",
		},
		[]string{"kind"},
	)

	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_event_errors_total",
			Help: "Rejected client events by reason",
		},
		[]string{"reason"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Committed messages by kind",
		},
		[]string{"kind"},
	)

	FramesOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_out_total",
			Help: "Frames fanned out to sessions",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_rate_limited_total",
			Help: "Inbound events dropped by the per-session rate limit",
		},
	)
)

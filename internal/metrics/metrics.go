// Package metrics provides Prometheus instrumentation for the chat widget
// client. It exposes counters for frame and intent throughput, a counter for
// malformed frames, and a gauge mirroring the latest online-user snapshot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FramesReceived counts successfully decoded inbound frames, labeled by
	// their wire type tag.
	FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_widget_frames_received_total",
		Help: "Total number of inbound frames decoded, by frame type",
	}, []string{"type"})

	// FramesMalformed counts inbound frames that failed to decode: invalid
	// JSON, unknown type tags, or payloads violating the wire contract.
	FramesMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_widget_frames_malformed_total",
		Help: "Total number of inbound frames that failed to decode",
	})

	// IntentsSent counts outbound frames, labeled by intent type: "addUser",
	// "addMes", or "deleteUser".
	IntentsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_widget_intents_sent_total",
		Help: "Total number of outbound intent frames sent",
	}, []string{"type"})

	// UsersOnline tracks the size of the most recent online-user snapshot.
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_widget_users_online",
		Help: "Number of users in the latest online-user snapshot",
	})
)

func init() {
	prometheus.MustRegister(
		FramesReceived,
		FramesMalformed,
		IntentsSent,
		UsersOnline,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

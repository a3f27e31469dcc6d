package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wabot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Bot metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_messages_received_total",
			Help: "Total inbound messages",
		},
		[]string{"channel"},
	)

	CommandsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_commands_handled_total",
			Help: "Total commands dispatched",
		},
		[]string{"command"},
	)

	MediaSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_media_saved_total",
			Help: "Total files written to the content directory",
		},
		[]string{"kind"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabot_handler_errors_total",
			Help: "Total errors caught at the message boundary",
		},
		[]string{"command"},
	)

	DroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wabot_bus_dropped_total",
			Help: "Inbound messages dropped because the bus was full or closed",
		},
	)

	PairingCodes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wabot_pairing_codes_total",
			Help: "Distinct pairing codes rendered",
		},
	)
)

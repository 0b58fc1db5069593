package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Frame metrics
	FramesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_frames_received_total",
			Help: "Frames received from clients",
		},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusguard_frames_dropped_total",
			Help: "Frames dropped before analysis",
		},
		[]string{"reason"},
	)

	FramesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_frames_processed_total",
			Help: "Frames whose detections were applied to a session",
		},
	)

	StaleResults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_stale_results_total",
			Help: "Detection results discarded because a newer frame was already applied",
		},
	)

	// Detector metrics
	DetectorLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "focusguard_detector_latency_seconds",
			Help:    "Detector call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	DetectorErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_detector_errors_total",
			Help: "Detector calls that failed or timed out",
		},
	)

	// Session metrics
	ActiveMonitors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusguard_active_monitors",
			Help: "Sessions currently monitored by this instance",
		},
	)

	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusguard_alerts_total",
			Help: "Alerts emitted",
		},
		[]string{"type", "severity"},
	)

	WindowsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusguard_windows_closed_total",
			Help: "Distraction windows closed, by outcome",
		},
		[]string{"type", "outcome"},
	)

	OutboundDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_outbound_dropped_total",
			Help: "Detection messages dropped because the client was not keeping up",
		},
	)

	// Persistence metrics
	EventsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_events_persisted_total",
			Help: "Distraction events written to storage",
		},
	)

	EventsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusguard_events_failed_total",
			Help: "Distraction events that could not be written",
		},
		[]string{"reason"},
	)

	PersistQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusguard_persist_queue_depth",
			Help: "Events waiting to be written",
		},
	)

	EventsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusguard_events_purged_total",
			Help: "Events deleted by retention cleanup",
		},
	)

	// Push metrics
	PushNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusguard_push_notifications_total",
			Help: "Web push notifications sent, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		FramesReceived,
		FramesDropped,
		FramesProcessed,
		StaleResults,
		DetectorLatency,
		DetectorErrors,
		ActiveMonitors,
		AlertsTotal,
		WindowsClosed,
		OutboundDropped,
		EventsPersisted,
		EventsFailed,
		PersistQueueDepth,
		EventsPurged,
		PushNotifications,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

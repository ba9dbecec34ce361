package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabd_events_emitted_total",
			Help: "Collaboration events pushed onto the outbound stream",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabd_events_dropped_total",
			Help: "Collaboration events dropped because the outbound buffer was full",
		},
	)

	LocksGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabd_locks_granted_total",
			Help: "Question locks granted, including holder refreshes",
		},
	)

	LocksDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabd_locks_denied_total",
			Help: "Question lock requests denied because another user holds a live lock",
		},
	)

	ConflictsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabd_conflicts_detected_total",
			Help: "Answer submissions that raced a concurrent write to the same question",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabd_active_sessions",
			Help: "Assessment sessions currently held in memory",
		},
	)

	ConnectedUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabd_connected_users",
			Help: "Participants currently present across all sessions",
		},
	)
)

var registered bool

// Init registers all collectors with the default registry. Safe to call once;
// tests exercising packages that call Init go through this guard.
func Init() {
	if registered {
		return
	}
	registered = true
	prometheus.MustRegister(
		EventsEmitted,
		EventsDropped,
		LocksGranted,
		LocksDenied,
		ConflictsDetected,
		ActiveSessions,
		ConnectedUsers,
	)
}

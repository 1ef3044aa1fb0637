// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slide_sync"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Viewer metrics
	ViewersConnected  *prometheus.CounterVec
	ViewersActive     prometheus.Gauge
	ViewerQueueDrops  prometheus.Counter
	ViewerHeartbeatTimeouts prometheus.Counter

	// Broadcast metrics
	BroadcastsTotal   *prometheus.CounterVec
	BroadcastFanout   prometheus.Histogram

	// Recognition metrics
	FragmentsPartial    prometheus.Counter
	FragmentsFinal      prometheus.Counter
	AudioBytesReceived  prometheus.Counter
	AudioChunksQueued   prometheus.Counter
	AudioChunksDropped  prometheus.Counter
	ProviderReconnects  *prometheus.CounterVec
	ProviderFallbacks   *prometheus.CounterVec

	// Match metrics
	Decisions        *prometheus.CounterVec
	DecisionsDebounced prometheus.Counter
	MatchScore       prometheus.Histogram

	// Wake trigger metrics
	WakeTriggers   prometheus.Counter
	WakeSuppressed prometheus.Counter

	// Event feed metrics
	EventPublishTotal   *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	EventPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions started",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions ended",
		}, []string{"reason"}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions in seconds",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		}),

		ViewersConnected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewers_connected_total",
			Help:      "Total number of viewer connections",
		}, []string{"role"}),
		ViewersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers_active",
			Help:      "Number of currently connected viewers",
		}),
		ViewerQueueDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewer_queue_drops_total",
			Help:      "Total broadcast frames dropped on slow viewer queues",
		}),
		ViewerHeartbeatTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewer_heartbeat_timeouts_total",
			Help:      "Total viewers disconnected for missing heartbeats",
		}),

		BroadcastsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total broadcast messages produced by the hub",
		}, []string{"kind"}),
		BroadcastFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout_viewers",
			Help:      "Number of viewers per broadcast",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),

		FragmentsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_partial_total",
			Help:      "Total partial transcript fragments received",
		}),
		FragmentsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_final_total",
			Help:      "Total final transcript fragments received",
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioChunksQueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_queued_total",
			Help:      "Total audio chunks buffered before provider readiness",
		}),
		AudioChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped from full pending queues",
		}),
		ProviderReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_reconnects_total",
			Help:      "Total recognition provider reconnect attempts",
		}, []string{"provider"}),
		ProviderFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Total fallbacks to the simulated recognition backend",
		}, []string{"from"}),

		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_decisions_total",
			Help:      "Total match decisions by action",
		}, []string{"action"}),
		DecisionsDebounced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_decisions_debounced_total",
			Help:      "Total advance decisions suppressed by debounce",
		}),
		MatchScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_score",
			Help:      "Alignment scores computed by the match engine",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),

		WakeTriggers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_triggers_total",
			Help:      "Total wake trigger activations",
		}),
		WakeSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_suppressed_total",
			Help:      "Total wake activations suppressed by cooldown",
		}),

		EventPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total session events published",
		}, []string{"topic", "event_type"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total session event publish errors",
		}, []string{"topic", "event_type"}),
		EventPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Session event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a session entering ACTIVE state.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordViewerConnected records a viewer registration.
func (m *Metrics) RecordViewerConnected(role string) {
	m.ViewersConnected.WithLabelValues(role).Inc()
	m.ViewersActive.Inc()
}

// RecordViewerDisconnected records a viewer leaving the registry.
func (m *Metrics) RecordViewerDisconnected() {
	m.ViewersActive.Dec()
}

// RecordQueueDrop records a frame dropped from a slow viewer's queue.
func (m *Metrics) RecordQueueDrop() {
	m.ViewerQueueDrops.Inc()
}

// RecordHeartbeatTimeout records a viewer removed for missing heartbeats.
func (m *Metrics) RecordHeartbeatTimeout() {
	m.ViewerHeartbeatTimeouts.Inc()
}

// RecordBroadcast records a broadcast and its fan-out width.
func (m *Metrics) RecordBroadcast(kind string, viewers int) {
	m.BroadcastsTotal.WithLabelValues(kind).Inc()
	m.BroadcastFanout.Observe(float64(viewers))
}

// RecordFragment records a transcript fragment received from a provider.
func (m *Metrics) RecordFragment(isFinal bool) {
	if isFinal {
		m.FragmentsFinal.Inc()
	} else {
		m.FragmentsPartial.Inc()
	}
}

// RecordAudioReceived records audio bytes received from a viewer.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordChunkQueued records an audio chunk buffered pre-readiness.
func (m *Metrics) RecordChunkQueued() {
	m.AudioChunksQueued.Inc()
}

// RecordChunkDropped records an audio chunk dropped from a full queue.
func (m *Metrics) RecordChunkDropped() {
	m.AudioChunksDropped.Inc()
}

// RecordReconnect records a provider reconnect attempt.
func (m *Metrics) RecordReconnect(provider string) {
	m.ProviderReconnects.WithLabelValues(provider).Inc()
}

// RecordFallback records a fallback to the simulated backend.
func (m *Metrics) RecordFallback(from string) {
	m.ProviderFallbacks.WithLabelValues(from).Inc()
}

// RecordDecision records a match decision.
func (m *Metrics) RecordDecision(action string, score float64) {
	m.Decisions.WithLabelValues(action).Inc()
	m.MatchScore.Observe(score)
}

// RecordDebounced records an advance suppressed by debounce.
func (m *Metrics) RecordDebounced() {
	m.DecisionsDebounced.Inc()
}

// RecordWake records a wake trigger firing.
func (m *Metrics) RecordWake() {
	m.WakeTriggers.Inc()
}

// RecordWakeSuppressed records a wake suppressed inside the cooldown.
func (m *Metrics) RecordWakeSuppressed() {
	m.WakeSuppressed.Inc()
}

// RecordEventPublish records a session event publish attempt.
func (m *Metrics) RecordEventPublish(topic, eventType string, err error, latencySeconds float64) {
	m.EventPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.EventPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.EventPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

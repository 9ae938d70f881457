package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SessionOnline    prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	Transcripts      *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	FlowTransitions  *prometheus.CounterVec
	AudioChunks      *prometheus.CounterVec
	TransportErrors  *prometheus.CounterVec
	HostMessages     *prometheus.CounterVec
	HostClients      prometheus.Gauge
	ConnectLatency   prometheus.Histogram
	SpeechUtterances *prometheus.CounterVec
	stages           *stageWindow
}

// NewMetrics registers instruments with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers instruments with reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_online",
			Help:      "1 while the voice session is online, 0 otherwise.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Inbound transcript frames by kind (partial, final, malformed).",
		}, []string{"kind"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Interpreted commands by kind.",
		}, []string{"kind"}),
		FlowTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_transitions_total",
			Help:      "Conversational flow transitions by source and target mode.",
		}, []string{"from", "to"}),
		AudioChunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_total",
			Help:      "Captured audio chunks by outcome (sent, dropped_closed, send_error).",
		}, []string{"outcome"}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transcription channel failures by class.",
		}, []string{"class"}),
		HostMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_messages_total",
			Help:      "Host websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		HostClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_clients",
			Help:      "Number of attached host UI connections.",
		}),
		ConnectLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_ms",
			Help:      "Latency from start request to channel open in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 6000},
		}),
		SpeechUtterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_utterances_total",
			Help:      "Spoken feedback utterances by outcome (ended, cancelled, error).",
		}, []string{"outcome"}),
		stages: newStageWindow(256),
	}
}

// ObserveConnectLatency records start-to-online latency.
func (m *Metrics) ObserveConnectLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ConnectLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe(StageStartToOnline, float64(d.Milliseconds()))
}

// ObserveStage records a latency sample for the rolling perf window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

// ObserveIndicator counts a named occurrence in the rolling perf window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

// SnapshotStages returns the rolling latency window.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

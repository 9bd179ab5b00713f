package worker

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/vai-interviewer/pkg/core"
	"github.com/vango-go/vai-interviewer/pkg/core/live"
	"github.com/vango-go/vai-interviewer/pkg/interview"
	"github.com/vango-go/vai-interviewer/pkg/providers"
)

// Persistence results recorded per finished session.
const (
	PersistOK      = "ok"
	PersistFailed  = "failed"
	PersistSkipped = "skipped"
)

// Metrics holds the worker's Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive     prometheus.Gauge
	SessionsTotal      *prometheus.CounterVec
	SessionDuration    prometheus.Histogram
	SessionErrors      *prometheus.CounterVec
	PersistTotal       *prometheus.CounterVec
	ProviderSelections *prometheus.CounterVec
	SpeechEvents       *prometheus.CounterVec
	Assignments        *prometheus.CounterVec
}

var _ providers.Recorder = (*Metrics)(nil)

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interviewer"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of interview sessions currently running",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished interview sessions by end reason",
		}, []string{"end_reason"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Active interview duration in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1200, 1800},
		}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Sessions that ended before becoming active, by error type",
		}, []string{"type"}),
		PersistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Transcript persistence results",
		}, []string{"result"}),
		ProviderSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_selections_total",
			Help:      "Provider selections by kind and provider",
		}, []string{"kind", "provider"}),
		SpeechEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_events_total",
			Help:      "Speech events by speaker and kind",
		}, []string{"speaker", "kind"}),
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Dispatcher assignments by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionDuration,
		m.SessionErrors,
		m.PersistTotal,
		m.ProviderSelections,
		m.SpeechEvents,
		m.Assignments,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ProviderSelected implements providers.Recorder.
func (m *Metrics) ProviderSelected(kind, name string) {
	if m == nil {
		return
	}
	m.ProviderSelections.WithLabelValues(kind, name).Inc()
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session that was started with RecordSessionStart.
// err is the error returned by Session.Run.
func (m *Metrics) RecordSessionEnd(o interview.Outcome, err error) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()

	reason := string(o.EndReason)
	if reason == "" {
		reason = "unknown"
	}
	m.SessionsTotal.WithLabelValues(reason).Inc()

	if err != nil {
		m.SessionErrors.WithLabelValues(errorType(err)).Inc()
		return
	}

	m.SessionDuration.Observe(sessionSeconds(o.Duration))
	m.PersistTotal.WithLabelValues(persistResult(o)).Inc()
}

// RecordSpeech counts a speech event. It fits live.SpeechListener.
func (m *Metrics) RecordSpeech(ev live.SpeechEvent) {
	if m == nil {
		return
	}
	m.SpeechEvents.WithLabelValues(string(ev.Speaker), string(ev.Kind)).Inc()
}

func (m *Metrics) RecordAssignment(result string) {
	if m == nil {
		return
	}
	m.Assignments.WithLabelValues(result).Inc()
}

func persistResult(o interview.Outcome) string {
	switch {
	case o.Persisted:
		return PersistOK
	case o.Identity.Kind == interview.IdentityUnknown:
		return PersistSkipped
	default:
		return PersistFailed
	}
}

func errorType(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) && ce.Type != "" {
		return string(ce.Type)
	}
	return "unknown"
}

// sessionSeconds converts a duration for histogram observation.
func sessionSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

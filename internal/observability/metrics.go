package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/maintenance-voice/internal/resilience"
)

// Metrics holds the Prometheus collectors of the service. All methods are
// safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec

	turnsTotal           *prometheus.CounterVec
	turnDuration         prometheus.Histogram
	externalCallsTotal   *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec
	ticketsCreated       *prometheus.CounterVec
	emergencies          prometheus.Counter
	liveConversations    prometheus.Gauge
	sweptConversations   prometheus.Counter
}

// NewMetrics registers every collector on reg. A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP error responses by error code",
		}, []string{"path", "method", "code"}),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_turns_total",
			Help: "Dialogue turns by classified intent and outcome",
		}, []string{"intent", "outcome"}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_turn_duration_seconds",
			Help:    "End-to-end duration of a dialogue turn",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		externalCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_external_calls_total",
			Help: "Calls to speech and intent backends by outcome",
		}, []string{"backend", "operation", "outcome"}),
		externalCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_external_call_duration_seconds",
			Help:    "Duration of calls to speech and intent backends",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"backend", "operation"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_circuit_breaker_state",
			Help: "Circuit breaker state per operation (0 closed, 1 open, 2 half-open)",
		}, []string{"breaker"}),
		ticketsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_tickets_created_total",
			Help: "Tickets created by priority",
		}, []string{"priority"}),
		emergencies: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_emergencies_total",
			Help: "Emergency incidents opened by callers",
		}),
		liveConversations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_live_conversations",
			Help: "Conversations currently held by the store",
		}),
		sweptConversations: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_swept_conversations_total",
			Help: "Conversations removed by the retention sweep",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest observes a served HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(path, method, code).Inc()
}

// RecordTurn observes a finished dialogue turn.
func (m *Metrics) RecordTurn(intent, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, outcome).Inc()
	m.turnDuration.Observe(duration.Seconds())
}

// RecordExternalCall observes one guarded backend call.
func (m *Metrics) RecordExternalCall(backend, operation string, reason resilience.FailureReason, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := string(reason)
	if reason == resilience.ReasonNone {
		outcome = "success"
	}
	m.externalCallsTotal.WithLabelValues(backend, operation, outcome).Inc()
	m.externalCallDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// BreakerStateChanged matches resilience.StateChangeFunc.
func (m *Metrics) BreakerStateChanged(name string, _, to resilience.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(to))
}

// RecordTicketCreated counts a created ticket.
func (m *Metrics) RecordTicketCreated(priority string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(priority).Inc()
}

// RecordEmergency counts one emergency incident. Follow-up turns of the same
// incident are not counted again.
func (m *Metrics) RecordEmergency() {
	if m == nil {
		return
	}
	m.emergencies.Inc()
}

// SetLiveConversations publishes the store size.
func (m *Metrics) SetLiveConversations(n int) {
	if m == nil {
		return
	}
	m.liveConversations.Set(float64(n))
}

// RecordSwept counts conversations removed by a sweep.
func (m *Metrics) RecordSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptConversations.Add(float64(n))
}

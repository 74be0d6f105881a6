package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suchimauz/shift-coverage-coordinator/internal/core/domain"
)

const namespace = "coordinator"

// PrometheusMetrics держит собственный реестр, чтобы тесты и несколько
// экземпляров не конфликтовали с глобальным.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	callOffs    *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	accepts     *prometheus.CounterVec
	escalations *prometheus.CounterVec
	suppressed  prometheus.Counter
	meltdowns   prometheus.Counter
	timeToFill  prometheus.Histogram
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		callOffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_offs_total",
			Help:      "Call-offs received, by whether a new shift slot was created.",
		}, []string{"created"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outreach_attempts_total",
			Help:      "Finished outreach attempts by channel and delivery status.",
		}, []string{"channel", "status"}),
		accepts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepts_total",
			Help:      "Accept replies by resolution result.",
		}, []string{"result"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Shift escalations to the on-call coordinator.",
		}, []string{"kind"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_suppressed_total",
			Help:      "Automated messages suppressed by the repetition guard.",
		}),
		meltdowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meltdowns_total",
			Help:      "Times automated outreach was halted.",
		}),
		timeToFill: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_fill_seconds",
			Help:      "Time from call-off to assignment.",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		}),
	}

	m.registry.MustRegister(
		m.callOffs, m.attempts, m.accepts, m.escalations,
		m.suppressed, m.meltdowns, m.timeToFill,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) CallOffReceived(created bool) {
	m.callOffs.WithLabelValues(strconv.FormatBool(created)).Inc()
}

func (m *PrometheusMetrics) AttemptFinished(channel domain.Channel, status domain.DeliveryStatus) {
	m.attempts.WithLabelValues(string(channel), string(status)).Inc()
}

func (m *PrometheusMetrics) AcceptResolved(won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	m.accepts.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) Escalated(kind domain.NotificationKind) {
	m.escalations.WithLabelValues(string(kind)).Inc()
}

func (m *PrometheusMetrics) ReplySuppressed() {
	m.suppressed.Inc()
}

func (m *PrometheusMetrics) MeltdownTripped() {
	m.meltdowns.Inc()
}

func (m *PrometheusMetrics) TimeToFill(d time.Duration) {
	if d < 0 {
		return
	}
	m.timeToFill.Observe(d.Seconds())
}

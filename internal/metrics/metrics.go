package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects operational counters for the webhook subsystem. A nil
// *Metrics is valid and records nothing, so tests can skip wiring it.
type Metrics struct {
	registry *prometheus.Registry

	eventsEmitted         *prometheus.CounterVec
	deliveryOutcomes      *prometheus.CounterVec
	attemptDuration       prometheus.Histogram
	subscriptionsDisabled prometheus.Counter
	deliveriesPruned      prometheus.Counter
}

// New creates and registers the webhook metric set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_emitted_total",
			Help: "Domain events accepted by the webhook subsystem, by event type.",
		}, []string{"type"}),
		deliveryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webhook_attempt_duration_seconds",
			Help:    "Duration of individual webhook HTTP attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		subscriptionsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webhook_subscriptions_disabled_total",
			Help: "Subscriptions auto-disabled by the degradation sweep.",
		}),
		deliveriesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webhook_deliveries_pruned_total",
			Help: "Delivery rows removed by the retention sweep.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsEmitted,
		m.deliveryOutcomes,
		m.attemptDuration,
		m.subscriptionsDisabled,
		m.deliveriesPruned,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DeliveryOutcome(outcome string) {
	if m == nil {
		return
	}
	m.deliveryOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAttempt(d time.Duration) {
	if m == nil {
		return
	}
	m.attemptDuration.Observe(d.Seconds())
}

func (m *Metrics) SubscriptionDisabled() {
	if m == nil {
		return
	}
	m.subscriptionsDisabled.Inc()
}

func (m *Metrics) DeliveriesPruned(n int64) {
	if m == nil {
		return
	}
	m.deliveriesPruned.Add(float64(n))
}

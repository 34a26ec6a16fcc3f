package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconcileMetrics метрики обработки событий провайдера
type ReconcileMetrics interface {
	IncEventReceived(eventType string)
	IncOutcome(kind, outcome string)
	ObserveDuration(kind string, d time.Duration)
	ObserveAmount(kind string, amount int64, currency string)
	IncPublishFailed()
}

type reconcileMetrics struct {
	eventsReceived  *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	amounts         *prometheus.HistogramVec
	publishFailures prometheus.Counter
}

// NewRegistry создает реестр с метриками среды выполнения Go и процесса
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewReconcileMetrics создает метрики сверки
func NewReconcileMetrics(registry prometheus.Registerer) ReconcileMetrics {
	factory := promauto.With(registry)

	return &reconcileMetrics{
		eventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_received_total",
				Help: "The total number of verified provider events by type",
			},
			[]string{"type"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_reconcile_outcomes_total",
				Help: "The total number of reconciliation outcomes by event kind",
			},
			[]string{"kind", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_reconcile_duration_seconds",
				Help:    "Time spent resolving and applying an event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		amounts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_event_amount",
				Help:    "Checkout and invoice amounts of applied events in minor units",
				Buckets: prometheus.ExponentialBuckets(100, 10, 5), // 100, 1000, 10000, 100000, 1000000
			},
			[]string{"kind", "currency"},
		),
		publishFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_entitlement_publish_failures_total",
				Help: "The total number of entitlement change messages that failed to publish",
			},
		),
	}
}

// IncEventReceived увеличивает счетчик принятых событий
func (m *reconcileMetrics) IncEventReceived(eventType string) {
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

// IncOutcome увеличивает счетчик результатов
func (m *reconcileMetrics) IncOutcome(kind, outcome string) {
	m.outcomes.WithLabelValues(kind, outcome).Inc()
}

// ObserveDuration записывает время сверки
func (m *reconcileMetrics) ObserveDuration(kind string, d time.Duration) {
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveAmount записывает сумму оформления или счета
func (m *reconcileMetrics) ObserveAmount(kind string, amount int64, currency string) {
	m.amounts.WithLabelValues(kind, currency).Observe(float64(amount))
}

// IncPublishFailed увеличивает счетчик неотправленных сообщений
func (m *reconcileMetrics) IncPublishFailed() {
	m.publishFailures.Inc()
}

package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the distress pipeline.
type Metrics struct {
	SubmissionsTotal   *prometheus.CounterVec
	AssessmentsTotal   *prometheus.CounterVec
	NotifyRunsTotal    *prometheus.CounterVec
	NotifyContactsTotal *prometheus.CounterVec
	DispatchQueueDepth prometheus.Gauge
	DispatchDropped    prometheus.Counter
	HandleDuration     *prometheus.HistogramVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_submissions_total",
			Help: "Total distress submissions by trigger type and result.",
		}, []string{"trigger", "result"}),
		AssessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_assessments_total",
			Help: "Total urgency assessments by source (reasoner, heuristic, rules).",
		}, []string{"source"}),
		NotifyRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_notify_runs_total",
			Help: "Total notification fan-out runs by outcome.",
		}, []string{"outcome"}),
		NotifyContactsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardian_notify_contacts_total",
			Help: "Total per-contact delivery attempts by outcome.",
		}, []string{"outcome"}),
		DispatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "guardian_dispatch_queue_depth",
			Help: "Tasks currently queued for background dispatch.",
		}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardian_dispatch_dropped_total",
			Help: "Background dispatch tasks dropped because the queue was full.",
		}),
		HandleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guardian_handle_duration_seconds",
			Help:    "Duration of pipeline submission handling in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"trigger"}),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.AssessmentsTotal,
		m.NotifyRunsTotal,
		m.NotifyContactsTotal,
		m.DispatchQueueDepth,
		m.DispatchDropped,
		m.HandleDuration,
	)

	return m
}

// AssessHook adapts the metrics to the assessor's OnAssess callback.
func (m *Metrics) AssessHook() func(source string) {
	return func(source string) {
		m.AssessmentsTotal.WithLabelValues(source).Inc()
	}
}

// ContactHook adapts the metrics to the dispatcher's OnContact callback.
func (m *Metrics) ContactHook() func(outcome string) {
	return func(outcome string) {
		m.NotifyContactsTotal.WithLabelValues(outcome).Inc()
	}
}

// QueueDepthHook adapts the metrics to the dispatch queue's OnDepth callback.
func (m *Metrics) QueueDepthHook() func(depth int) {
	return func(depth int) {
		m.DispatchQueueDepth.Set(float64(depth))
	}
}

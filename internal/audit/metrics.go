package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSnapshot is the point-in-time, engine-neutral copy returned by
// MetricsRegistry.Snapshot (spec.md §4.10: "no locks are held across user
// code"). No Prometheus type ever appears here.
type MetricsSnapshot struct {
	CallsTotal          uint64
	CallErrorsTotal      uint64
	CapabilityDeniedTotal uint64
	QuotaApproachingTotal uint64
	QuotaExceededTotal    uint64
	ActiveInstances       uint64
	CallLatencySeconds    HistogramSnapshot
}

// HistogramSnapshot is a neutral copy of a Prometheus histogram's bucket
// counts, sum, and count.
type HistogramSnapshot struct {
	SampleCount uint64
	SampleSum   float64
	Buckets     map[float64]uint64
}

// MetricsRegistry wraps Prometheus collectors internally (teacher go.mod
// direct dependency github.com/prometheus/client_golang) behind the neutral
// Snapshot API above, the same pattern the teacher's own metrics package
// uses to keep Prometheus itself an optional external collaborator
// (spec.md §1) while still exercising the dependency inside the core.
type MetricsRegistry struct {
	registry *prometheus.Registry

	calls             prometheus.Counter
	callErrors        prometheus.Counter
	capabilityDenied  prometheus.Counter
	quotaApproaching  prometheus.Counter
	quotaExceeded     prometheus.Counter
	activeInstances   prometheus.Gauge
	callLatency       prometheus.Histogram
}

// NewMetricsRegistry constructs a self-contained registry (not the global
// Prometheus default registry, so multiple sandboxes in one process never
// collide on metric names).
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	m := &MetricsRegistry{
		registry: reg,
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasmsandbox_calls_total",
			Help: "Total number of guest export calls attempted.",
		}),
		callErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasmsandbox_call_errors_total",
			Help: "Total number of guest export calls that returned an error.",
		}),
		capabilityDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasmsandbox_capability_denied_total",
			Help: "Total number of host function calls denied by the capability model.",
		}),
		quotaApproaching: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasmsandbox_quota_approaching_total",
			Help: "Total number of QuotaApproaching audit events emitted.",
		}),
		quotaExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wasmsandbox_quota_exceeded_total",
			Help: "Total number of QuotaExceeded audit events emitted.",
		}),
		activeInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wasmsandbox_active_instances",
			Help: "Number of instances currently in a non-terminal state.",
		}),
		callLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wasmsandbox_call_latency_seconds",
			Help:    "Latency of guest export calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.calls, m.callErrors, m.capabilityDenied, m.quotaApproaching, m.quotaExceeded, m.activeInstances, m.callLatency)
	return m
}

func (m *MetricsRegistry) ObserveCall(errored bool, latencySeconds float64) {
	m.calls.Inc()
	if errored {
		m.callErrors.Inc()
	}
	m.callLatency.Observe(latencySeconds)
}

func (m *MetricsRegistry) ObserveCapabilityDenied() { m.capabilityDenied.Inc() }
func (m *MetricsRegistry) ObserveQuotaApproaching()  { m.quotaApproaching.Inc() }
func (m *MetricsRegistry) ObserveQuotaExceeded()      { m.quotaExceeded.Inc() }
func (m *MetricsRegistry) SetActiveInstances(n uint64) { m.activeInstances.Set(float64(n)) }

// Snapshot gathers every collector's current value into a plain struct
// with no locks held across the caller's subsequent use of it.
func (m *MetricsRegistry) Snapshot() MetricsSnapshot {
	families, err := m.registry.Gather()
	if err != nil {
		return MetricsSnapshot{}
	}

	snap := MetricsSnapshot{CallLatencySeconds: HistogramSnapshot{Buckets: map[float64]uint64{}}}
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			switch fam.GetName() {
			case "wasmsandbox_calls_total":
				snap.CallsTotal = uint64(metric.GetCounter().GetValue())
			case "wasmsandbox_call_errors_total":
				snap.CallErrorsTotal = uint64(metric.GetCounter().GetValue())
			case "wasmsandbox_capability_denied_total":
				snap.CapabilityDeniedTotal = uint64(metric.GetCounter().GetValue())
			case "wasmsandbox_quota_approaching_total":
				snap.QuotaApproachingTotal = uint64(metric.GetCounter().GetValue())
			case "wasmsandbox_quota_exceeded_total":
				snap.QuotaExceededTotal = uint64(metric.GetCounter().GetValue())
			case "wasmsandbox_active_instances":
				snap.ActiveInstances = uint64(metric.GetGauge().GetValue())
			case "wasmsandbox_call_latency_seconds":
				h := metric.GetHistogram()
				snap.CallLatencySeconds.SampleCount = h.GetSampleCount()
				snap.CallLatencySeconds.SampleSum = h.GetSampleSum()
				for _, b := range h.GetBucket() {
					snap.CallLatencySeconds.Buckets[b.GetUpperBound()] = b.GetCumulativeCount()
				}
			}
		}
	}
	return snap
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the activity pipeline counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	actionsReceived  prometheus.Counter
	actionsRejected  *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	readsSuppressed  prometheus.Counter
	sinkFailures     *prometheus.CounterVec
	pipelinePanics   prometheus.Counter
	overflowActions  prometheus.Counter
	pipelineDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actionsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "actions_received_total",
			Help:      "User actions received from the action bus",
		}),
		actionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "actions_rejected_total",
			Help:      "User actions dropped before dispatch, by reason",
		}, []string{"reason"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "events_published_total",
			Help:      "Activity events appended to the stream",
		}, []string{"type", "scope"}),
		readsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "reads_suppressed_total",
			Help:      "Read events suppressed by the read cache",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "sink_failures_total",
			Help:      "Failed writes per sink",
		}, []string{"sink"}),
		pipelinePanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "pipeline_panics_total",
			Help:      "Pipeline invocations aborted by a recovered panic",
		}),
		overflowActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activity",
			Name:      "overflow_actions_total",
			Help:      "Actions processed outside the worker pool because the buffer was full",
		}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "activity",
			Name:      "pipeline_duration_seconds",
			Help:      "Time spent processing one user action",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.actionsReceived, m.actionsRejected, m.eventsPublished, m.readsSuppressed,
			m.sinkFailures, m.pipelinePanics, m.overflowActions, m.pipelineDuration,
		)
	}
	return m
}

// ActionReceived counts an action handed to the pipeline
func (m *Metrics) ActionReceived() {
	if m == nil {
		return
	}
	m.actionsReceived.Inc()
}

// ActionRejected counts an action dropped by the gate or the classifier
func (m *Metrics) ActionRejected(reason string) {
	if m == nil {
		return
	}
	m.actionsRejected.WithLabelValues(reason).Inc()
}

// EventPublished counts an event appended to the stream
func (m *Metrics) EventPublished(eventType, scope string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, scope).Inc()
}

// ReadSuppressed counts a deduplicated read
func (m *Metrics) ReadSuppressed() {
	if m == nil {
		return
	}
	m.readsSuppressed.Inc()
}

// SinkFailure counts a failed write on sink ("audit_log" or "stream")
func (m *Metrics) SinkFailure(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// PipelinePanic counts a recovered panic
func (m *Metrics) PipelinePanic() {
	if m == nil {
		return
	}
	m.pipelinePanics.Inc()
}

// OverflowAction counts an action processed on an overflow goroutine
func (m *Metrics) OverflowAction() {
	if m == nil {
		return
	}
	m.overflowActions.Inc()
}

// ObserveDuration records the processing time of one action
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

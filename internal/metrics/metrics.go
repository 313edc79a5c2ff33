package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels operations that failed.
	OutcomeError = "error"
	// OutcomeManualReview labels analyses gated out of auto-execution.
	OutcomeManualReview = "manual_review"
)

var (
	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nightwatch",
			Name:      "monitor_ticks_total",
			Help:      "Total number of monitoring ticks executed.",
		},
	)

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightwatch",
			Name:      "metric_samples_total",
			Help:      "Metric samples collected, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightwatch",
			Name:      "incidents_total",
			Help:      "Incidents opened, partitioned by issue type and severity.",
		},
		[]string{"issue_type", "severity"},
	)

	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightwatch",
			Name:      "analyses_total",
			Help:      "Incident analyses completed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nightwatch",
			Name:      "analysis_seconds",
			Help:      "Incident analysis latency in seconds, including the provider call.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightwatch",
			Name:      "agent_actions_total",
			Help:      "Agent actions executed, partitioned by action type and outcome.",
		},
		[]string{"action", "outcome"},
	)

	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nightwatch",
			Name:      "broadcast_events_total",
			Help:      "Events broadcast to websocket observers, partitioned by event name.",
		},
		[]string{"event"},
	)
)

// Register attaches nightwatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ticksTotal,
		samplesTotal,
		incidentsTotal,
		analysesTotal,
		analysisDurationSeconds,
		actionsTotal,
		broadcastsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTick counts one monitoring cycle.
func ObserveTick() { ticksTotal.Inc() }

// ObserveSample counts one metric collection attempt.
func ObserveSample(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	samplesTotal.WithLabelValues(outcome).Inc()
}

// ObserveIncident counts one opened incident.
func ObserveIncident(issueType, severity string) {
	incidentsTotal.WithLabelValues(issueType, severity).Inc()
}

// ObserveAnalysis records an analysis duration and its outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeManualReview:
	default:
		outcome = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveAction counts one executed agent action.
func ObserveAction(action, outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveBroadcast counts one broadcast event.
func ObserveBroadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}

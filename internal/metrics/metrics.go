// Package metrics exposes Prometheus instrumentation for measurement intake,
// alerts and SPC evaluation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/BrendaWanda/ControlCalidad/internal/model"
)

const namespace = "controlcalidad"

// Recorder holds the collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	submissions        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	alertsRaised       *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	spcDuration        prometheus.Histogram
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		// Labels: kind (NUMERIC, CHECK)
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "measurements",
			Name:      "accepted_total",
			Help:      "Accepted measurement records",
		}, []string{"kind"}),

		// Labels: code (missing_value, invalid_value, future_timestamp, ...)
		validationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "measurements",
			Name:      "validation_failures_total",
			Help:      "Rejected submission fields by error code",
		}, []string{"code"}),

		// Labels: kind (OUT_OF_SPEC, CHECK_FAILED)
		alertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Alerts raised by kind",
		}, []string{"kind"}),

		// Labels: to (target state), result (ok, invalid, conflict, error)
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "transitions_total",
			Help:      "Alert state transitions by target state and result",
		}, []string{"to", "result"}),

		spcDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "spc",
			Name:      "evaluation_seconds",
			Help:      "Time spent evaluating one I-MR series",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

// Accepted counts committed entries and the alerts raised with them.
func (r *Recorder) Accepted(entries []model.Entry) {
	if r == nil {
		return
	}
	for _, e := range entries {
		r.submissions.WithLabelValues(string(e.Record.Kind)).Inc()
		if e.Alert != nil {
			r.alertsRaised.WithLabelValues(string(e.Alert.Kind)).Inc()
		}
	}
}

// Rejected counts every field error of a failed submission.
func (r *Recorder) Rejected(errs model.ValidationErrors) {
	if r == nil {
		return
	}
	for _, e := range errs {
		r.validationFailures.WithLabelValues(e.CodeName()).Inc()
	}
}

// Transition counts a reviewer transition attempt.
func (r *Recorder) Transition(to model.AlertState, result string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(string(to), result).Inc()
}

// ObserveSPC records how long one series evaluation took.
func (r *Recorder) ObserveSPC(d time.Duration) {
	if r == nil {
		return
	}
	r.spcDuration.Observe(d.Seconds())
}

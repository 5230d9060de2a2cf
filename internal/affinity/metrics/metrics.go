// Package metrics provides observability for the affinity monitor.
//
// All methods are safe on a nil *Metrics, so components can take metrics
// as an optional dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks violation detection and delivery.
type Metrics struct {
	ChecksTotal       *prometheus.CounterVec
	ViolationsTotal   prometheus.Counter
	ProblemsDelivered prometheus.Counter
	ProblemsBuffered  prometheus.Counter
	ProblemsDropped   *prometheus.CounterVec
	ListenerPanics    prometheus.Counter
	PendingProblems   prometheus.Gauge
	ActiveMarks       prometheus.Gauge
	AttachRecords     prometheus.Counter
}

// New creates the monitor metrics and registers them with reg. A nil reg
// creates unregistered collectors, which is what tests and secondary
// monitors want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "affinity_checks_total",
			Help: "Total number of hook entries by outcome",
		}, []string{"outcome"}),
		ViolationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "affinity_violations_total",
			Help: "Total number of affinity violations reported (first entry per call chain)",
		}),
		ProblemsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "affinity_problems_delivered_total",
			Help: "Total number of problems delivered to a listener, live or from the buffer",
		}),
		ProblemsBuffered: f.NewCounter(prometheus.CounterOpts{
			Name: "affinity_problems_buffered_total",
			Help: "Total number of problems buffered while no listener was registered",
		}),
		ProblemsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "affinity_problems_dropped_total",
			Help: "Total number of problems dropped by reason",
		}, []string{"reason"}),
		ListenerPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "affinity_listener_panics_total",
			Help: "Total number of panics recovered from problem listeners",
		}),
		PendingProblems: f.NewGauge(prometheus.GaugeOpts{
			Name: "affinity_pending_problems",
			Help: "Number of problems currently buffered",
		}),
		ActiveMarks: f.NewGauge(prometheus.GaugeOpts{
			Name: "affinity_active_marks",
			Help: "Number of goroutines currently inside a flagged call chain",
		}),
		AttachRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "affinity_attach_records_total",
			Help: "Total number of component attach sites recorded",
		}),
	}
}

// Drop reasons.
const (
	ReasonMonitoringDisabled = "monitoring_disabled"
	ReasonBufferFull         = "buffer_full"
)

// ObserveCheck records one hook entry with the given outcome label.
func (m *Metrics) ObserveCheck(outcome string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
}

// IncrementViolations records a reported violation.
func (m *Metrics) IncrementViolations() {
	if m == nil {
		return
	}
	m.ViolationsTotal.Inc()
}

// IncrementDelivered records a problem handed to a listener.
func (m *Metrics) IncrementDelivered() {
	if m == nil {
		return
	}
	m.ProblemsDelivered.Inc()
}

// IncrementBuffered records a problem appended to the pending buffer.
func (m *Metrics) IncrementBuffered() {
	if m == nil {
		return
	}
	m.ProblemsBuffered.Inc()
}

// IncrementDropped records a problem that was neither delivered nor kept.
func (m *Metrics) IncrementDropped(reason string) {
	if m == nil {
		return
	}
	m.ProblemsDropped.WithLabelValues(reason).Inc()
}

// IncrementListenerPanics records a recovered listener panic.
func (m *Metrics) IncrementListenerPanics() {
	if m == nil {
		return
	}
	m.ListenerPanics.Inc()
}

// SetPending sets the current buffer length.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingProblems.Set(float64(n))
}

// MarkAdded records a goroutine entering a flagged call chain.
func (m *Metrics) MarkAdded() {
	if m == nil {
		return
	}
	m.ActiveMarks.Inc()
}

// MarkRemoved records a goroutine leaving a flagged call chain.
func (m *Metrics) MarkRemoved() {
	if m == nil {
		return
	}
	m.ActiveMarks.Dec()
}

// IncrementAttachRecords records an attach-site capture.
func (m *Metrics) IncrementAttachRecords() {
	if m == nil {
		return
	}
	m.AttachRecords.Inc()
}

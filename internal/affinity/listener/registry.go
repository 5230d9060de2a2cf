// Package listener holds the single problem listener and the buffer of
// problems produced before one was registered.
//
// The (listener, pending) pair is guarded by one mutex so that registering
// a listener and flushing the buffer is atomic with respect to concurrent
// reports: no problem is lost, none is delivered twice, and buffered
// problems reach the new listener in production order before any newer
// one.
//
// Listener callbacks never run while the mutex is held. While a flush is
// in progress, concurrent reports keep buffering and the flushing
// goroutine drains them before switching the registry to live delivery.
// A listener that itself triggers a violation therefore cannot deadlock
// the registry.
package listener

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kolkov/affinity/internal/affinity/metrics"
	"github.com/kolkov/affinity/internal/affinity/report"
)

// Listener observes problems.
//
// Live delivery happens synchronously on the violating goroutine and is
// not serialized across goroutines, so implementations must be safe for
// concurrent use.
type Listener interface {
	ProblemOccurred(report.Problem)
}

// Func adapts a function to Listener.
type Func func(report.Problem)

// ProblemOccurred calls f(p).
func (f Func) ProblemOccurred(p report.Problem) { f(p) }

// Delivery is what Report did with a problem.
type Delivery int

const (
	// Dropped means no listener was set and the problem was not kept,
	// either because monitoring is disabled or the buffer overflowed.
	Dropped Delivery = iota

	// Buffered means the problem was appended to the pending buffer.
	Buffered

	// DeliveredLive means the listener was called with the problem.
	DeliveredLive
)

// String returns the delivery name.
func (d Delivery) String() string {
	switch d {
	case Dropped:
		return "dropped"
	case Buffered:
		return "buffered"
	case DeliveredLive:
		return "delivered"
	default:
		return "unknown"
	}
}

// Registry holds at most one listener.
type Registry struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxPending int

	mu         sync.Mutex
	listener   Listener
	pending    []report.Problem
	monitoring bool
	// generation increments on every SetListener; a flush stops as soon
	// as it no longer owns the current generation.
	generation uint64
	flushing   bool
	dropped    uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for listener panics and flushes.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithMaxPending caps the buffer. When full, the oldest problem is
// dropped. 0 means unbounded.
func WithMaxPending(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxPending = n
		}
	}
}

// WithMonitoring sets the initial monitoring flag.
func WithMonitoring(enabled bool) Option {
	return func(r *Registry) { r.monitoring = enabled }
}

// New returns a registry with no listener. Monitoring is disabled unless
// WithMonitoring(true) is given: without a listener, problems are then
// dropped rather than buffered.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetMonitoringEnabled turns buffering of problems without a listener on
// or off. Already buffered problems are kept either way.
func (r *Registry) SetMonitoringEnabled(enabled bool) {
	r.mu.Lock()
	r.monitoring = enabled
	r.mu.Unlock()
}

// MonitoringEnabled reports the monitoring flag.
func (r *Registry) MonitoringEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitoring
}

// Listener returns the current listener, or nil.
func (r *Registry) Listener() Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener
}

// Pending returns the number of buffered problems.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dropped returns the number of problems dropped so far.
func (r *Registry) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// SetListener registers l, replacing the previous listener without
// notifying it. Buffered problems are delivered to l in FIFO order and the
// buffer is cleared; afterwards problems are delivered live. A nil l
// removes the listener and problems buffer again.
//
// It returns the number of buffered problems this call delivered.
func (r *Registry) SetListener(l Listener) int {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.listener = l
	if l == nil {
		r.flushing = false
		r.mu.Unlock()
		return 0
	}
	r.flushing = true

	delivered := 0
	for {
		batch := r.pending
		r.pending = nil
		r.metrics.SetPending(0)
		if len(batch) == 0 {
			r.flushing = false
			r.mu.Unlock()
			if delivered > 0 {
				r.logger.Debug("affinity.listener.flushed", "problems", delivered)
			}
			return delivered
		}
		r.mu.Unlock()

		for _, p := range batch {
			r.deliver(l, p)
		}
		delivered += len(batch)

		r.mu.Lock()
		if r.generation != gen {
			// Replaced mid-flush: the new owner drains what is left.
			r.mu.Unlock()
			return delivered
		}
	}
}

// Report delivers p to the listener, or buffers it when there is none and
// monitoring is enabled. Each problem ends up in exactly one place.
func (r *Registry) Report(p report.Problem) Delivery {
	r.mu.Lock()
	if r.listener != nil && !r.flushing {
		l := r.listener
		r.mu.Unlock()
		r.deliver(l, p)
		return DeliveredLive
	}
	if r.listener == nil && !r.monitoring {
		r.dropped++
		r.mu.Unlock()
		r.metrics.IncrementDropped(metrics.ReasonMonitoringDisabled)
		return Dropped
	}

	// A flush in progress drains everything, so the cap only applies
	// while nobody is listening.
	overflow := r.listener == nil && r.maxPending > 0 && len(r.pending) >= r.maxPending
	if overflow {
		r.pending = append(r.pending[:0], r.pending[1:]...)
		r.dropped++
	}
	r.pending = append(r.pending, p)
	n := len(r.pending)
	r.mu.Unlock()

	if overflow {
		r.metrics.IncrementDropped(metrics.ReasonBufferFull)
	}
	r.metrics.IncrementBuffered()
	r.metrics.SetPending(n)
	return Buffered
}

// deliver calls l, recovering panics so a faulty listener never takes the
// guarded operation down with it.
func (r *Registry) deliver(l Listener, p report.Problem) {
	defer func() {
		if v := recover(); v != nil {
			r.metrics.IncrementListenerPanics()
			r.logger.Error("affinity.listener.panic",
				"problem_id", p.ID().String(),
				"panic", fmt.Sprint(v))
		}
	}()
	l.ProblemOccurred(p)
	r.metrics.IncrementDelivered()
}

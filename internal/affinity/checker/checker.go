// Package checker implements the affinity monitor: the object that hook
// calls land on when a guarded operation is entered or left.
//
// A Checker owns every piece of mutable monitor state (goroutine marks,
// the problem listener and its buffer, the attach-site tracker), so
// independent checkers never observe each other. The public affinity
// package keeps one process-wide Checker for woven code.
//
// Flow of a strict entry on a goroutine that is not the affinity
// goroutine:
//  1. Increment the goroutine's mark, creating it at 1 when absent.
//  2. If the mark was created, build a Problem from the caller's stack and
//     hand it to the listener registry (live delivery or buffer).
//  3. Nested entries find the mark present and stay silent.
//
// The matching OnExit decrements the mark and removes it at 0, so the mark
// sequence for two nested calls is absent, 1, 2, 1, absent.
package checker

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kolkov/affinity/internal/affinity/classify"
	"github.com/kolkov/affinity/internal/affinity/goid"
	"github.com/kolkov/affinity/internal/affinity/listener"
	"github.com/kolkov/affinity/internal/affinity/marks"
	"github.com/kolkov/affinity/internal/affinity/metrics"
	"github.com/kolkov/affinity/internal/affinity/origin"
	"github.com/kolkov/affinity/internal/affinity/report"
	"github.com/kolkov/affinity/internal/affinity/stack"
)

const pkgPath = "github.com/kolkov/affinity/internal/affinity/checker"

// machinery matches the checker's own frames. Package-level functions of
// this package are named one by one so that callers living in the same
// package (tests) are not trimmed.
var machinery = stack.Any(
	stack.Prefix(pkgPath+".(*Checker)."),
	stack.Prefix(pkgPath+".OnContainerAttach["),
)

// Outcome is what a hook call did.
type Outcome int

const (
	// OutcomeAffine means the caller is the affinity goroutine; nothing
	// was recorded.
	OutcomeAffine Outcome = iota

	// OutcomeReported means this was the first flagged entry of the call
	// chain and a Problem was produced.
	OutcomeReported

	// OutcomeNested means the goroutine was already marked; the mark was
	// incremented silently.
	OutcomeNested

	// OutcomeSuppressed means an exempt entry marked the goroutine without
	// reporting.
	OutcomeSuppressed

	// OutcomeExited means a mark was decremented (and removed at 0).
	OutcomeExited

	// OutcomeUnmarked means an exit found no mark to decrement.
	OutcomeUnmarked
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeAffine:
		return "affine"
	case OutcomeReported:
		return "reported"
	case OutcomeNested:
		return "nested"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeExited:
		return "exited"
	case OutcomeUnmarked:
		return "unmarked"
	default:
		return "unknown"
	}
}

// Checker is one independent affinity monitor. It is safe for concurrent
// use by any number of goroutines.
type Checker struct {
	policy     goid.Policy
	classifier *classify.Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics

	marks    *marks.Registry
	reporter *report.Reporter
	problems *listener.Registry
	origins  *origin.Tracker

	violations atomic.Uint64
	attaches   atomic.Uint64
}

// New returns a checker. Without options the affinity goroutine is the one
// named with DefaultNamePrefix, the default classifier is used, monitoring
// is disabled and nothing is logged.
func New(opts ...Option) *Checker {
	o := options{
		policy:     goid.PrefixPolicy(DefaultNamePrefix),
		classifier: classify.Default(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	trim := stack.Any(machinery, o.trim)
	return &Checker{
		policy:     o.policy,
		classifier: o.classifier,
		logger:     o.logger,
		metrics:    o.metrics,
		marks:      marks.New(),
		reporter:   report.NewReporter(trim, o.now),
		problems: listener.New(
			listener.WithLogger(o.logger),
			listener.WithMetrics(o.metrics),
			listener.WithMaxPending(o.maxPending),
			listener.WithMonitoring(o.monitoring),
		),
		origins: origin.New(trim),
	}
}

// OnEntry is the strict entry hook, called immediately before a guarded
// operation runs on the current goroutine.
func (c *Checker) OnEntry(op Operation) Outcome {
	th := goid.Current()
	if c.policy(th) {
		return c.observe(OutcomeAffine)
	}

	_, created := c.marks.Increment(th.ID)
	if !created {
		return c.observe(OutcomeNested)
	}
	c.metrics.MarkAdded()

	p := c.reporter.Build(th, op.report(), 1)
	c.violations.Add(1)
	c.metrics.IncrementViolations()
	c.logger.Warn("affinity.violation",
		"goroutine", th.ID,
		"name", th.Name,
		"operation", op.String(),
		"problem_id", p.ID().String())

	c.problems.Report(p)
	return c.observe(OutcomeReported)
}

// OnEntryExempt is the entry hook for operations that are safe off the
// affinity goroutine. It marks the goroutine so that guarded calls made
// from inside the exempt operation do not report, but never reports
// itself.
func (c *Checker) OnEntryExempt(op Operation) Outcome {
	th := goid.Current()
	if c.policy(th) {
		return c.observe(OutcomeAffine)
	}
	if _, created := c.marks.Increment(th.ID); created {
		c.metrics.MarkAdded()
	}
	return c.observe(OutcomeSuppressed)
}

// Enter classifies op and dispatches to OnEntryExempt or OnEntry.
// Operations no rule matches are strict.
func (c *Checker) Enter(op Operation) Outcome {
	if c.classifier.IsExempt(op.Signature) {
		return c.OnEntryExempt(op)
	}
	return c.OnEntry(op)
}

// OnExit is the exit hook, called after the guarded operation returns or
// panics, on the same goroutine as the entry.
func (c *Checker) OnExit(op Operation) Outcome {
	id := goid.ID()
	n, ok := c.marks.Decrement(id)
	if !ok {
		return OutcomeUnmarked
	}
	if n == 0 {
		c.metrics.MarkRemoved()
	}
	return OutcomeExited
}

func (c *Checker) observe(o Outcome) Outcome {
	c.metrics.ObserveCheck(o.String())
	return o
}

// IsExempt reports whether op is exempt under the checker's classifier.
func (c *Checker) IsExempt(op Operation) bool {
	return c.classifier.IsExempt(op.Signature)
}

// MarkDepth returns the mark count of goroutine id, and false when the
// goroutine is not inside a flagged call.
func (c *Checker) MarkDepth(id int64) (int, bool) {
	return c.marks.Get(id)
}

// SetListener registers l and flushes buffered problems to it. See
// [listener.Registry.SetListener].
//
// The flush runs on the calling goroutine. Off the affinity goroutine it
// holds a silent mark meanwhile, so guarded calls made by l are not
// reported back into the flush it is draining.
func (c *Checker) SetListener(l listener.Listener) int {
	th := goid.Current()
	if c.policy(th) {
		return c.problems.SetListener(l)
	}
	if _, created := c.marks.Increment(th.ID); created {
		c.metrics.MarkAdded()
	}
	defer func() {
		if n, ok := c.marks.Decrement(th.ID); ok && n == 0 {
			c.metrics.MarkRemoved()
		}
	}()
	return c.problems.SetListener(l)
}

// SetMonitoringEnabled controls buffering while no listener is set.
func (c *Checker) SetMonitoringEnabled(enabled bool) {
	c.problems.SetMonitoringEnabled(enabled)
}

// Problems returns the checker's listener registry.
func (c *Checker) Problems() *listener.Registry {
	return c.problems
}

// OnContainerAttach records the current stack as the attach site of
// component. Stack frames of the attach hook are trimmed.
func OnContainerAttach[T any](c *Checker, component *T) {
	if origin.Capture(c.origins, component, 1) {
		c.attaches.Add(1)
		c.metrics.IncrementAttachRecords()
	}
}

// AttachSite returns the most recent attach-site stack of component, and
// false when it was never attached or has been collected.
func AttachSite[T any](c *Checker, component *T) ([]stack.Frame, bool) {
	return origin.Lookup(c.origins, component)
}

// Stats is a point-in-time snapshot of a checker.
type Stats struct {
	Violations  uint64 `json:"violations"`
	Attaches    uint64 `json:"attaches"`
	ActiveMarks int    `json:"activeMarks"`
	Pending     int    `json:"pending"`
	Dropped     uint64 `json:"dropped"`
	Origins     int    `json:"origins"`
	AttachSites int    `json:"attachSites"`
	Monitoring  bool   `json:"monitoring"`
	Listening   bool   `json:"listening"`
}

// Stats returns a snapshot. Fields are read independently, so under
// concurrent use they need not be mutually consistent.
//
// O(marks + origins); not for hot paths.
func (c *Checker) Stats() Stats {
	return Stats{
		Violations:  c.violations.Load(),
		Attaches:    c.attaches.Load(),
		ActiveMarks: c.marks.Len(),
		Pending:     c.problems.Pending(),
		Dropped:     c.problems.Dropped(),
		Origins:     c.origins.Len(),
		AttachSites: c.origins.Sites(),
		Monitoring:  c.problems.MonitoringEnabled(),
		Listening:   c.problems.Listener() != nil,
	}
}

// Sweep removes attach records of collected components.
func (c *Checker) Sweep() int {
	return c.origins.Sweep()
}

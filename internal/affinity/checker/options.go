package checker

import (
	"log/slog"
	"time"

	"github.com/kolkov/affinity/internal/affinity/classify"
	"github.com/kolkov/affinity/internal/affinity/goid"
	"github.com/kolkov/affinity/internal/affinity/metrics"
	"github.com/kolkov/affinity/internal/affinity/stack"
)

// DefaultNamePrefix is the goroutine name prefix that marks the affinity
// goroutine unless another policy is configured.
const DefaultNamePrefix = "event-loop"

type options struct {
	policy     goid.Policy
	classifier *classify.Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	monitoring bool
	maxPending int
	trim       stack.Matcher
}

// Option configures a Checker.
type Option func(*options)

// WithPolicy sets the test deciding whether a goroutine is the affinity
// goroutine.
func WithPolicy(p goid.Policy) Option {
	return func(o *options) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithNamePrefix is WithPolicy(goid.PrefixPolicy(prefix)).
func WithNamePrefix(prefix string) Option {
	return WithPolicy(goid.PrefixPolicy(prefix))
}

// WithClassifier sets the exemption rules used by Enter.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *options) {
		if c != nil {
			o.classifier = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source for problem timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMonitoring sets whether problems are buffered while no listener is
// registered.
func WithMonitoring(enabled bool) Option {
	return func(o *options) { o.monitoring = enabled }
}

// WithMaxPending caps the problem buffer. 0 means unbounded.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithTrim adds stack frames to strip from the top of reports and attach
// sites, for wrappers that call the checker on behalf of user code.
func WithTrim(m stack.Matcher) Option {
	return func(o *options) { o.trim = m }
}

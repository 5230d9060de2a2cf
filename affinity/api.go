// Package affinity provides the public API of the goroutine-affinity
// monitor.
//
// See doc.go for detailed documentation and examples.
package affinity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/affinity/internal/affinity/checker"
	"github.com/kolkov/affinity/internal/affinity/config"
	"github.com/kolkov/affinity/internal/affinity/goid"
	"github.com/kolkov/affinity/internal/affinity/listener"
	"github.com/kolkov/affinity/internal/affinity/logging"
	"github.com/kolkov/affinity/internal/affinity/metrics"
	"github.com/kolkov/affinity/internal/affinity/report"
	"github.com/kolkov/affinity/internal/affinity/sink"
	"github.com/kolkov/affinity/internal/affinity/stack"
)

type (
	// Operation identifies a guarded operation.
	Operation = checker.Operation

	// Outcome is what a hook call did.
	Outcome = checker.Outcome

	// Stats is a snapshot of the monitor.
	Stats = checker.Stats

	// Problem is the record of one violation.
	Problem = report.Problem

	// Frame is one stack frame of a Problem or attach site.
	Frame = stack.Frame

	// Listener observes problems.
	Listener = listener.Listener

	// ListenerFunc adapts a function to Listener.
	ListenerFunc = listener.Func

	// Config is the parsed affinity.yml.
	Config = config.Config

	// Collector keeps recent problems in memory.
	Collector = sink.Collector
)

const pkgPath = "github.com/kolkov/affinity/affinity"

// hookFrames are the public hook functions; reports start below them.
var hookFrames = stack.Any(
	stack.Exact(
		pkgPath+".Enter",
		pkgPath+".EnterStrict",
		pkgPath+".EnterExempt",
	),
	stack.Prefix(pkgPath+".ContainerAttach["),
)

// monitor is the process-wide checker plus what was built for it.
type monitor struct {
	checker  *checker.Checker
	registry *prometheus.Registry
	logger   *slog.Logger
	cleanup  func() error
}

var (
	current  atomic.Pointer[monitor]
	initOnce sync.Once
	woven    atomic.Bool
)

func get() *monitor {
	if m := current.Load(); m != nil {
		return m
	}
	initOnce.Do(func() {
		if current.Load() != nil {
			return
		}
		cfg, err := config.FromEnv()
		var m *monitor
		if err == nil {
			m, err = build(cfg)
		}
		if err != nil {
			// The monitor must never take the host down: fall back to
			// defaults and say why.
			m, _ = build(config.Default())
			m.logger.Error("affinity.config.invalid", "env", config.EnvVar, "error", err)
		}
		current.CompareAndSwap(nil, m)
	})
	return current.Load()
}

func build(cfg *config.Config) (*monitor, error) {
	logger, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("affinity: logger: %w", err)
	}
	reg := prometheus.NewRegistry()
	c := checker.New(
		checker.WithNamePrefix(cfg.Affinity.NamePrefix),
		checker.WithClassifier(cfg.Classifier()),
		checker.WithLogger(logger),
		checker.WithMetrics(metrics.New(reg)),
		checker.WithMonitoring(cfg.MonitoringEnabled()),
		checker.WithMaxPending(cfg.Monitoring.MaxPending),
		checker.WithTrim(hookFrames),
	)
	return &monitor{checker: c, registry: reg, logger: logger, cleanup: cleanup}, nil
}

// Configure replaces the process-wide monitor with one built from cfg.
// The listener and any buffered problems of the previous monitor are
// discarded; call it at startup, before guarded code runs.
func Configure(cfg *Config) error {
	if cfg == nil {
		cfg = config.Default()
	} else if err := cfg.Validate(); err != nil {
		return err
	}
	m, err := build(cfg)
	if err != nil {
		return err
	}
	initOnce.Do(func() {})
	if old := current.Swap(m); old != nil {
		_ = old.cleanup()
	}
	return nil
}

// LoadConfig reads and validates an affinity.yml file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Default returns the process-wide checker, creating it on first use from
// the file named by $AFFINITY_CONFIG (or defaults).
func Default() *checker.Checker {
	return get().checker
}

// Op builds an operation from a receiver type and a canonical signature.
// It panics on malformed signatures; use it for package-level variables.
//
//	var opSetText = affinity.Op("widgets.Button", "SetText(string)")
func Op(typ, signature string) Operation {
	return checker.MustOperation(typ, signature)
}

// Enter classifies op and runs the strict or exempt entry hook. It returns
// op so that entry and exit pair in one deferred statement:
//
//	defer affinity.Exit(affinity.Enter(opSetText))
func Enter(op Operation) Operation {
	get().checker.Enter(op)
	return op
}

// EnterStrict is the strict entry hook. The weaver emits it for operations
// it classified as affinity-bound.
func EnterStrict(op Operation) Operation {
	get().checker.OnEntry(op)
	return op
}

// EnterExempt is the exempt entry hook: it marks the goroutine but never
// reports.
func EnterExempt(op Operation) Operation {
	get().checker.OnEntryExempt(op)
	return op
}

// Exit is the exit hook. Call it deferred so it runs on panics too.
func Exit(op Operation) {
	get().checker.OnExit(op)
}

// ContainerAttach records the current stack as the place component was
// attached to a container.
func ContainerAttach[T any](component *T) {
	checker.OnContainerAttach(get().checker, component)
}

// AttachSite returns where component was last attached, and false when
// it never was or the record is gone.
func AttachSite[T any](component *T) ([]Frame, bool) {
	return checker.AttachSite(get().checker, component)
}

// SetListener registers l, delivering buffered problems to it first. A nil
// l removes the listener. It returns the number of buffered problems
// delivered.
func SetListener(l Listener) int {
	return get().checker.SetListener(l)
}

// SetMonitoringEnabled controls whether problems are buffered while no
// listener is registered.
func SetMonitoringEnabled(enabled bool) {
	get().checker.SetMonitoringEnabled(enabled)
}

// GetStats returns a snapshot of the process-wide monitor.
func GetStats() Stats {
	return get().checker.Stats()
}

// NameGoroutine binds name to the calling goroutine. Name the event loop
// with the configured prefix ("event-loop" by default) to give it the
// affinity role.
func NameGoroutine(name string) {
	goid.SetName(name)
}

// Go runs f on a new goroutine named name.
func Go(name string, f func()) {
	goid.Go(name, f)
}

// MarkWoven records that woven code is linked into the program. The weaver
// emits a call to it from an init function.
func MarkWoven() {
	woven.Store(true)
}

// Woven reports whether MarkWoven has been called.
func Woven() bool {
	return woven.Load()
}

// NewCollector returns an in-memory listener keeping the last capacity
// problems.
func NewCollector(capacity int) *Collector {
	return sink.NewCollector(capacity)
}

// LogListener returns a listener writing problems to logger at Warn level.
func LogListener(logger *slog.Logger) Listener {
	return sink.NewLog(logger, slog.LevelWarn)
}

// Tee fans problems out to several listeners.
func Tee(ls ...Listener) Listener {
	return sink.Tee(ls...)
}

// RedisListener connects to the Redis server at url ("redis://host:6379/0")
// and returns a listener publishing each problem as JSON on channel, or on
// "affinity:problems" when channel is empty. The caller closes the
// returned client.
func RedisListener(ctx context.Context, url, channel string) (Listener, io.Closer, error) {
	rdb, err := sink.DialRedis(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	pub := sink.NewRedisPublisher(rdb,
		sink.WithChannel(channel),
		sink.WithRedisLogger(get().logger),
	)
	return pub, rdb, nil
}

// Handler serves collected problems, monitor stats and metrics of the
// process-wide monitor. Routes: /problems, /problems/{id}, /stats,
// /metrics. A nil c leaves the problem routes unmounted, so they answer
// 404.
func Handler(c *Collector) http.Handler {
	m := get()
	return sink.NewHandler(c, m.checker.Stats, m.registry)
}

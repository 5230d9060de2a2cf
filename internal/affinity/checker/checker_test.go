package checker

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/affinity/internal/affinity/classify"
	"github.com/kolkov/affinity/internal/affinity/goid"
	"github.com/kolkov/affinity/internal/affinity/listener"
	"github.com/kolkov/affinity/internal/affinity/metrics"
	"github.com/kolkov/affinity/internal/affinity/report"
)

var (
	opSetText     = MustOperation("checker.button", "SetText(string)")
	opRepaint     = MustOperation("checker.button", "Repaint()")
	opAddListener = MustOperation("checker.button", "AddFooListener(checker.FooListener)")
)

// onGoroutine runs f on a new goroutine named name and waits for it.
func onGoroutine(name string, f func()) {
	done := make(chan struct{})
	goid.Go(name, func() {
		defer close(done)
		f()
	})
	<-done
}

// collector is a concurrency-safe listener.
type collector struct {
	mu       sync.Mutex
	problems []report.Problem
}

func (c *collector) ProblemOccurred(p report.Problem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.problems = append(c.problems, p)
}

func (c *collector) all() []report.Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]report.Problem(nil), c.problems...)
}

type button struct {
	c *Checker
}

// SetText is a guarded method as the weaver would emit it.
//
//go:noinline
func (b *button) SetText(nested bool) {
	b.c.OnEntry(opSetText)
	defer b.c.OnExit(opSetText)
	if nested {
		b.SetText(false)
	}
}

func TestOnEntry_NestedCallChainReportsOnce(t *testing.T) {
	c := New()
	l := &collector{}
	c.SetListener(l)

	var depths []int
	depth := func() int {
		n, _ := c.MarkDepth(goid.ID())
		return n
	}
	var outcomes []Outcome

	onGoroutine("worker-1", func() {
		depths = append(depths, depth())
		outcomes = append(outcomes, c.OnEntry(opSetText))
		depths = append(depths, depth())
		outcomes = append(outcomes, c.OnEntry(opSetText))
		depths = append(depths, depth())
		outcomes = append(outcomes, c.OnExit(opSetText))
		depths = append(depths, depth())
		outcomes = append(outcomes, c.OnExit(opSetText))
		depths = append(depths, depth())
		_, marked := c.MarkDepth(goid.ID())
		assert.False(t, marked, "mark must be absent after the outermost exit")
	})

	assert.Equal(t, []int{0, 1, 2, 1, 0}, depths)
	assert.Equal(t, []Outcome{OutcomeReported, OutcomeNested, OutcomeExited, OutcomeExited}, outcomes)
	require.Len(t, l.all(), 1)
	assert.Zero(t, c.Stats().ActiveMarks)
}

func TestOnEntry_ProblemStartsAtCaller(t *testing.T) {
	c := New()
	l := &collector{}
	c.SetListener(l)

	onGoroutine("worker-1", func() {
		(&button{c: c}).SetText(true)
	})

	problems := l.all()
	require.Len(t, problems, 1)
	p := problems[0]

	frames := p.StackTrace()
	require.NotEmpty(t, frames)
	assert.Equal(t, pkgPath+".(*button).SetText", frames[0].Function)
	assert.Equal(t, "The "+pkgPath+".button.SetText method called from worker-1 thread", p.Description())
	assert.Equal(t, "worker-1", p.Thread().Name)
	assert.Equal(t, "checker.button.SetText", p.Operation().String())
	assert.Equal(t, "SetText(string)", p.Operation().Signature)
}

func TestOnEntry_AffinityGoroutineIsNoOp(t *testing.T) {
	c := New(WithMonitoring(true))

	onGoroutine(DefaultNamePrefix+"-0", func() {
		assert.Equal(t, OutcomeAffine, c.OnEntry(opSetText))
		_, marked := c.MarkDepth(goid.ID())
		assert.False(t, marked)
		assert.Equal(t, OutcomeUnmarked, c.OnExit(opSetText))
	})

	assert.Zero(t, c.Problems().Pending())
	assert.Zero(t, c.Stats().Violations)
}

func TestOnEntry_RoleFollowsName(t *testing.T) {
	c := New(WithMonitoring(true))

	// A replacement event loop with the same prefix takes over the role.
	for _, name := range []string{"event-loop-1", "event-loop-2"} {
		onGoroutine(name, func() {
			assert.Equal(t, OutcomeAffine, c.OnEntry(opSetText))
		})
	}
	assert.Zero(t, c.Problems().Pending())
}

func TestOnEntry_BuffersUntilListener(t *testing.T) {
	c := New(WithMonitoring(true))

	for _, name := range []string{"worker-1", "worker-2", "worker-3"} {
		onGoroutine(name, func() {
			c.OnEntry(opSetText)
			c.OnExit(opSetText)
		})
	}
	assert.Equal(t, 3, c.Problems().Pending())

	l := &collector{}
	assert.Equal(t, 3, c.SetListener(l))

	problems := l.all()
	require.Len(t, problems, 3)
	for i, name := range []string{"worker-1", "worker-2", "worker-3"} {
		assert.Equal(t, name, problems[i].Thread().Name)
	}
}

// repainter is a listener that touches a guarded component for every
// problem it receives. It stops after limit calls so a runaway flush
// still ends.
type repainter struct {
	collector
	b     *button
	limit int
}

func (r *repainter) ProblemOccurred(p report.Problem) {
	r.collector.ProblemOccurred(p)
	if len(r.all()) <= r.limit {
		r.b.SetText(false)
	}
}

func TestSetListener_FlushListenerTouchingGuardedCode(t *testing.T) {
	c := New(WithMonitoring(true))
	onGoroutine("worker-1", func() {
		c.OnEntry(opSetText)
		c.OnExit(opSetText)
	})
	require.Equal(t, 1, c.Problems().Pending())

	l := &repainter{b: &button{c: c}, limit: 100}
	var delivered int
	onGoroutine("worker-2", func() {
		delivered = c.SetListener(l)
		_, marked := c.MarkDepth(goid.ID())
		assert.False(t, marked)
	})

	assert.Equal(t, 1, delivered)
	require.Len(t, l.all(), 1)
	assert.Equal(t, "worker-1", l.all()[0].Thread().Name)
	st := c.Stats()
	assert.Equal(t, uint64(1), st.Violations)
	assert.Zero(t, st.ActiveMarks)
	assert.Zero(t, st.Pending)

	// Live delivery runs on the violating goroutine, which is already
	// marked.
	onGoroutine("worker-3", func() {
		c.OnEntry(opSetText)
		c.OnExit(opSetText)
	})
	assert.Len(t, l.all(), 2)
	assert.Equal(t, uint64(2), c.Stats().Violations)
}

func TestSetListener_AffinityGoroutineFlushUnmarked(t *testing.T) {
	c := New(WithMonitoring(true))
	onGoroutine("worker-1", func() {
		c.OnEntry(opSetText)
		c.OnExit(opSetText)
	})

	onGoroutine(DefaultNamePrefix+"-0", func() {
		assert.Equal(t, 1, c.SetListener(&collector{}))
		_, marked := c.MarkDepth(goid.ID())
		assert.False(t, marked)
	})
	assert.Zero(t, c.Stats().ActiveMarks)
}

func TestOnEntry_MonitoringDisabledStillTracksMarks(t *testing.T) {
	c := New()

	onGoroutine("worker-1", func() {
		assert.Equal(t, OutcomeReported, c.OnEntry(opSetText))
		n, ok := c.MarkDepth(goid.ID())
		assert.True(t, ok)
		assert.Equal(t, 1, n)
		c.OnExit(opSetText)
	})

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Violations)
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Zero(t, st.Pending)
}

func TestEnter_ExemptListenerRegistrationNeverReports(t *testing.T) {
	c := New(WithMonitoring(true))
	l := &collector{}
	c.SetListener(l)

	onGoroutine("worker-1", func() {
		assert.Equal(t, OutcomeSuppressed, c.Enter(opAddListener))
		assert.Equal(t, OutcomeExited, c.OnExit(opAddListener))
	})

	assert.Empty(t, l.all())
}

func TestEnter_ExemptSuppressesNestedStrict(t *testing.T) {
	c := New()
	l := &collector{}
	c.SetListener(l)

	onGoroutine("worker-1", func() {
		assert.Equal(t, OutcomeSuppressed, c.Enter(opRepaint))
		assert.Equal(t, OutcomeNested, c.Enter(opSetText))
		c.OnExit(opSetText)
		c.OnExit(opRepaint)
		_, marked := c.MarkDepth(goid.ID())
		assert.False(t, marked)
	})

	assert.Empty(t, l.all())
}

func TestEnter_UnknownOperationIsStrict(t *testing.T) {
	c := New(WithClassifier(classify.New()))
	l := &collector{}
	c.SetListener(l)

	onGoroutine("worker-1", func() {
		assert.Equal(t, OutcomeReported, c.Enter(opRepaint))
		c.OnExit(opRepaint)
	})
	assert.Len(t, l.all(), 1)
}

func TestEnter_CustomClassifier(t *testing.T) {
	cl := classify.Default().With(classify.Rule{Prefix: "on", Suffix: "Changed"})
	c := New(WithClassifier(cl))

	op := MustOperation("checker.button", "OnTextChanged(string)")
	assert.True(t, c.IsExempt(op))
	assert.False(t, c.IsExempt(opSetText))
}

func TestOnExit_WithoutEntry(t *testing.T) {
	c := New()
	onGoroutine("worker-1", func() {
		assert.Equal(t, OutcomeUnmarked, c.OnExit(opSetText))
	})
}

func TestOnExit_RunsOnPanic(t *testing.T) {
	c := New()
	onGoroutine("worker-1", func() {
		func() {
			defer func() { _ = recover() }()
			c.OnEntry(opSetText)
			defer c.OnExit(opSetText)
			panic("guarded operation failed")
		}()
		_, marked := c.MarkDepth(goid.ID())
		assert.False(t, marked)
	})
}

func TestOnEntry_SeparateChainsReportSeparately(t *testing.T) {
	c := New()
	l := &collector{}
	c.SetListener(l)

	onGoroutine("worker-1", func() {
		c.OnEntry(opSetText)
		c.OnExit(opSetText)
		c.OnEntry(opSetText)
		c.OnExit(opSetText)
	})
	assert.Len(t, l.all(), 2)
}

func TestOnEntry_ConcurrentGoroutines(t *testing.T) {
	const workers = 32
	c := New()
	l := &collector{}
	c.SetListener(l)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		goid.Go("worker", func() {
			defer wg.Done()
			b := &button{c: c}
			b.SetText(true)
			b.SetText(false)
		})
	}
	wg.Wait()

	assert.Len(t, l.all(), 2*workers)
	assert.Zero(t, c.Stats().ActiveMarks)
}

func TestCheckersAreIndependent(t *testing.T) {
	a := New(WithMonitoring(true))
	b := New(WithMonitoring(true))

	onGoroutine("worker-1", func() {
		a.OnEntry(opSetText)
		_, marked := b.MarkDepth(goid.ID())
		assert.False(t, marked)
		assert.Equal(t, OutcomeReported, b.OnEntry(opSetText))
		b.OnExit(opSetText)
		a.OnExit(opSetText)
	})
	assert.Equal(t, 1, a.Problems().Pending())
	assert.Equal(t, 1, b.Problems().Pending())
}

func TestMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(WithMetrics(m), WithMonitoring(true))

	onGoroutine("worker-1", func() {
		(&button{c: c}).SetText(true)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("reported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChecksTotal.WithLabelValues("nested")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveMarks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingProblems))
}

type panel struct {
	children []*panel
}

// Add is an attach method as the weaver would emit it.
//
//go:noinline
func (p *panel) Add(c *Checker, child *panel) {
	OnContainerAttach(c, child)
	p.children = append(p.children, child)
}

func TestOnContainerAttach(t *testing.T) {
	c := New()
	root := &panel{}
	child := &panel{}

	_, ok := AttachSite(c, child)
	assert.False(t, ok)

	root.Add(c, child)

	frames, ok := AttachSite(c, child)
	require.True(t, ok)
	require.NotEmpty(t, frames)
	assert.Equal(t, pkgPath+".(*panel).Add", frames[0].Function)
	assert.True(t, strings.HasSuffix(frames[1].Function, "TestOnContainerAttach"))

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Attaches)
	assert.Equal(t, 1, st.Origins)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "reported", OutcomeReported.String())
	assert.Equal(t, "suppressed", OutcomeSuppressed.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}

func TestNewOperation(t *testing.T) {
	op, err := NewOperation("widgets.Canvas", "Repaint(int64, int, int, int, int)")
	require.NoError(t, err)
	assert.Equal(t, "Repaint", op.Method)
	assert.Equal(t, "Repaint(int64,int,int,int,int)", op.Signature.String())
	assert.Equal(t, "widgets.Canvas.Repaint", op.String())

	_, err = NewOperation("widgets.Canvas", "Repaint")
	assert.Error(t, err)

	assert.Panics(t, func() { MustOperation("x", "(") })
}

func TestSetListener_ReplacesWithoutRedelivery(t *testing.T) {
	c := New(WithMonitoring(true))
	onGoroutine("worker-1", func() {
		c.OnEntry(opSetText)
		c.OnExit(opSetText)
	})

	first := &collector{}
	second := &collector{}
	c.SetListener(first)
	c.SetListener(second)
	assert.Len(t, first.all(), 1)
	assert.Empty(t, second.all())

	c.SetListener(listener.Func(func(report.Problem) {}))
	assert.True(t, c.Stats().Listening)
}

// Package origin records where components were attached to containers.
//
// Records are keyed by weak pointers, so the tracker never keeps a
// component alive. When the garbage collector reclaims a component, a
// cleanup registered with runtime.AddCleanup evicts its record. Until that
// cleanup has run, lookups of the dead key are impossible anyway (no live
// pointer can produce it), and Sweep can remove it eagerly.
//
// Stacks are stored as hashes into a [stack.Depot], so components attached
// from the same call site share one frame list.
package origin

import (
	"runtime"
	"sync"
	"weak"

	"github.com/kolkov/affinity/internal/affinity/stack"
)

// Tracker maps live components to attach-site stacks.
//
// Go has no generic methods, so recording and lookup are the package
// functions Capture and Lookup. One tracker holds components of any
// pointer type.
type Tracker struct {
	depot *stack.Depot

	mu sync.Mutex
	// Key: weak.Pointer[T] boxed in an interface. Weak pointers made from
	// the same object compare equal.
	records map[any]record
}

type record struct {
	hash  uint64
	alive func() bool
}

// New returns an empty tracker. Captured stacks are trimmed with trim.
func New(trim stack.Matcher) *Tracker {
	return &Tracker{
		depot:   stack.NewDepot(trim),
		records: make(map[any]record),
	}
}

// Capture records the calling goroutine's stack as the attach site of
// component, overwriting any earlier record for that exact instance. skip
// counts frames above the caller of Capture. A nil component is ignored.
// Package-level components are tracked like heap ones. Instances of a
// zero-size type may share an address and then share one record.
//
// It reports whether a stack was recorded.
func Capture[T any](t *Tracker, component *T, skip int) bool {
	if component == nil {
		return false
	}
	hash := t.depot.Capture(skip + 1)
	if hash == 0 {
		return false
	}

	wp := weak.Make(component)
	t.mu.Lock()
	_, existed := t.records[wp]
	t.records[wp] = record{
		hash:  hash,
		alive: func() bool { return wp.Value() != nil },
	}
	t.mu.Unlock()

	if !existed {
		runtime.AddCleanup(component, t.evict, any(wp))
	}
	return true
}

// Lookup returns the most recent attach-site stack of component. It reports
// false when the component was never recorded.
func Lookup[T any](t *Tracker, component *T) ([]stack.Frame, bool) {
	if component == nil {
		return nil, false
	}
	t.mu.Lock()
	rec, ok := t.records[weak.Make(component)]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	return t.depot.Get(rec.hash)
}

func (t *Tracker) evict(key any) {
	t.mu.Lock()
	delete(t.records, key)
	t.mu.Unlock()
}

// Len returns the number of records, including records of reclaimed
// components whose cleanup has not run yet.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Sweep removes records of reclaimed components and returns how many it
// removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k, rec := range t.records {
		if !rec.alive() {
			delete(t.records, k)
			removed++
		}
	}
	return removed
}

// Sites returns the number of distinct attach-site stacks stored.
func (t *Tracker) Sites() int {
	return t.depot.Len()
}

package sink

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kolkov/affinity/internal/affinity/listener"
	"github.com/kolkov/affinity/internal/affinity/report"
)

// DefaultCapacity is the collector size used when none is given.
const DefaultCapacity = 256

// Collector keeps the most recent problems in a ring buffer.
type Collector struct {
	mu    sync.Mutex
	buf   []report.Problem
	next  int
	full  bool
	total uint64
}

var _ listener.Listener = (*Collector)(nil)

// NewCollector returns a collector holding up to capacity problems.
// Capacity <= 0 means DefaultCapacity.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Collector{buf: make([]report.Problem, capacity)}
}

// ProblemOccurred stores p, evicting the oldest problem when full.
func (c *Collector) ProblemOccurred(p report.Problem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[c.next] = p
	c.next++
	if c.next == len(c.buf) {
		c.next = 0
		c.full = true
	}
	c.total++
}

// Problems returns the retained problems, oldest first.
func (c *Collector) Problems() []report.Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full {
		return append([]report.Problem(nil), c.buf[:c.next]...)
	}
	out := make([]report.Problem, 0, len(c.buf))
	out = append(out, c.buf[c.next:]...)
	return append(out, c.buf[:c.next]...)
}

// Find returns the retained problem with the given id.
func (c *Collector) Find(id uuid.UUID) (report.Problem, bool) {
	for _, p := range c.Problems() {
		if p.ID() == id {
			return p, true
		}
	}
	return report.Problem{}, false
}

// Len returns the number of retained problems.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return len(c.buf)
	}
	return c.next
}

// Total returns the number of problems ever received.
func (c *Collector) Total() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Reset drops all retained problems. Total is kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.buf)
	c.next = 0
	c.full = false
}

// Package marks implements per-goroutine reentrancy counters.
//
// A mark records that a goroutine is currently inside a flagged (off
// affinity) call chain. The first flagged entry creates the mark with
// count 1, nested entries increment it, exits decrement it, and the key is
// removed when the count returns to 0. Absence of a key means "not inside
// a flagged call".
//
// Each goroutine only touches its own key, so no coordination beyond
// map-level atomicity is needed. sync.Map is the right shape for that:
// disjoint key sets per goroutine, many loads, few stores.
package marks

import "sync"

// Registry maps goroutine IDs to mark counts. The zero value is ready to
// use.
type Registry struct {
	// Key: int64 (goroutine ID)
	// Value: int (count, always > 0 while stored)
	m sync.Map
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Get returns the count for id and whether a mark exists.
func (r *Registry) Get(id int64) (int, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// GetOrCreate returns the count for id, storing a new mark with count 1
// when absent. created reports whether the mark was created.
func (r *Registry) GetOrCreate(id int64) (n int, created bool) {
	v, loaded := r.m.LoadOrStore(id, 1)
	return v.(int), !loaded
}

// Put stores n for id. A count of 0 or less removes the mark, so a stored
// count is never negative.
func (r *Registry) Put(id int64, n int) {
	if n <= 0 {
		r.m.Delete(id)
		return
	}
	r.m.Store(id, n)
}

// Remove deletes the mark for id.
func (r *Registry) Remove(id int64) {
	r.m.Delete(id)
}

// Increment adds one to the mark for id, creating it at 1 when absent.
// It returns the new count and whether the mark was created.
func (r *Registry) Increment(id int64) (n int, created bool) {
	n, created = r.GetOrCreate(id)
	if created {
		return n, true
	}
	n++
	r.Put(id, n)
	return n, false
}

// Decrement subtracts one from the mark for id and removes it at 0. It
// returns the remaining count and false when there was no mark.
func (r *Registry) Decrement(id int64) (n int, ok bool) {
	n, ok = r.Get(id)
	if !ok {
		return 0, false
	}
	n--
	r.Put(id, n)
	return n, true
}

// Len returns the number of goroutines currently holding a mark.
//
// O(N); not for hot paths.
func (r *Registry) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

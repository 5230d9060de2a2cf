package stack

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
)

// Depot deduplicates captured stacks.
//
// Components attached from the same call site share one resolved frame
// list, referenced by a 64-bit FNV-1a hash of the raw program counters.
// A depot must always be used with the same trim Matcher, because the hash
// covers the untrimmed capture.
//
// Memory grows with the number of distinct call sites, not with the number
// of captures.
type Depot struct {
	trim Matcher

	// Key: uint64 (FNV-1a of program counters)
	// Value: []Frame (resolved, trimmed, never mutated)
	stacks sync.Map
}

// NewDepot returns a depot that trims with trim.
func NewDepot(trim Matcher) *Depot {
	return &Depot{trim: trim}
}

// Capture records the calling goroutine's stack and returns its hash. The
// hash is 0 only when no frame could be captured.
func (d *Depot) Capture(skip int) uint64 {
	pcs := Callers(skip + 1)
	if len(pcs) == 0 {
		return 0
	}
	h := hashPCs(pcs)
	if _, ok := d.stacks.Load(h); ok {
		return h
	}
	d.stacks.LoadOrStore(h, Resolve(pcs, d.trim))
	return h
}

// Get returns the frames stored under hash. The returned slice is a copy.
func (d *Depot) Get(hash uint64) ([]Frame, bool) {
	if hash == 0 {
		return nil, false
	}
	v, ok := d.stacks.Load(hash)
	if !ok {
		return nil, false
	}
	frames := v.([]Frame)
	return append([]Frame(nil), frames...), true
}

// Len returns the number of distinct stacks stored.
//
// O(N); not for hot paths.
func (d *Depot) Len() int {
	n := 0
	d.stacks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func hashPCs(pcs []uintptr) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(buf[:], uint64(pc))
		_, _ = h.Write(buf[:]) // hash.Hash never returns an error.
	}
	return h.Sum64()
}

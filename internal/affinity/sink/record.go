// Package sink provides ready-made problem listeners: an in-memory
// collector, a structured log writer, a redis publisher and a fan-out,
// plus an HTTP handler exposing collected problems and monitor metrics.
//
// A checker holds one listener at a time; combine sinks with Tee.
package sink

import (
	"time"

	"github.com/kolkov/affinity/internal/affinity/report"
	"github.com/kolkov/affinity/internal/affinity/stack"
)

// Record is the wire form of a problem.
type Record struct {
	ID            string        `json:"id"`
	Description   string        `json:"description"`
	Goroutine     int64         `json:"goroutine"`
	GoroutineName string        `json:"goroutineName"`
	Operation     string        `json:"operation"`
	Signature     string        `json:"signature,omitempty"`
	Time          time.Time     `json:"time"`
	StackTrace    []stack.Frame `json:"stackTrace"`
}

// NewRecord converts p.
func NewRecord(p report.Problem) Record {
	th := p.Thread()
	op := p.Operation()
	frames := p.StackTrace()
	if frames == nil {
		frames = []stack.Frame{}
	}
	return Record{
		ID:            p.ID().String(),
		Description:   p.Description(),
		Goroutine:     th.ID,
		GoroutineName: th.Name,
		Operation:     op.String(),
		Signature:     op.Signature,
		Time:          p.Time().UTC(),
		StackTrace:    frames,
	}
}

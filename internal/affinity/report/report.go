// Package report builds violation records.
//
// A [Problem] is created once per detected violation by a [Reporter] and
// handed to exactly one delivery path (buffer or live listener). It is
// immutable: fields are unexported and the stack accessor returns a copy,
// so a listener cannot corrupt what another component later reads.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kolkov/affinity/internal/affinity/goid"
	"github.com/kolkov/affinity/internal/affinity/stack"
)

// Operation identifies the guarded operation that was entered.
type Operation struct {
	// Type is the receiver type qualified by package name ("widgets.Button").
	// Empty for constructors and other plain functions.
	Type string

	// Method is the method or function name.
	Method string

	// Signature is the canonical signature string used for classification.
	Signature string
}

// String returns "Type.Method", or just Method for plain functions.
func (o Operation) String() string {
	if o.Type == "" {
		return o.Method
	}
	return o.Type + "." + o.Method
}

// Problem is the record of one detected violation.
type Problem struct {
	id          uuid.UUID
	description string
	thread      goid.Thread
	op          Operation
	frames      []stack.Frame
	at          time.Time
}

// NewProblem assembles a problem from already captured parts. The frames
// slice is copied.
func NewProblem(description string, thread goid.Thread, op Operation, frames []stack.Frame, at time.Time) Problem {
	return Problem{
		id:          uuid.New(),
		description: description,
		thread:      thread,
		op:          op,
		frames:      append([]stack.Frame(nil), frames...),
		at:          at,
	}
}

// ID uniquely identifies the problem across processes.
func (p Problem) ID() uuid.UUID { return p.id }

// Description is the human-readable sentence naming the thread and the
// entered operation.
func (p Problem) Description() string { return p.description }

// Thread is the goroutine that violated affinity.
func (p Problem) Thread() goid.Thread { return p.thread }

// Operation is the guarded operation the hook reported.
func (p Problem) Operation() Operation { return p.op }

// Time is when the violation was detected.
func (p Problem) Time() time.Time { return p.at }

// StackTrace returns a copy of the captured frames, first real caller
// frame first.
func (p Problem) StackTrace() []stack.Frame {
	return append([]stack.Frame(nil), p.frames...)
}

// Format writes the problem in the same banner layout as Go's race
// reports:
//
//	==================
//	WARNING: AFFINITY VIOLATION
//	The widgets.Button.SetText method called from worker-1 thread
//	Goroutine 18 (worker-1) entered widgets.Button.SetText:
//	  github.com/x/widgets.(*Button).SetText()
//	      /src/widgets/button.go:42
//	==================
func (p Problem) Format(w io.Writer) {
	_, _ = fmt.Fprintf(w, "==================\n")
	_, _ = fmt.Fprintf(w, "WARNING: AFFINITY VIOLATION\n")
	_, _ = fmt.Fprintf(w, "%s\n", p.description)
	_, _ = fmt.Fprintf(w, "Goroutine %d (%s) entered %s:\n", p.thread.ID, p.thread.Name, p.op)
	stack.Format(w, p.frames)
	_, _ = fmt.Fprintf(w, "==================\n")
}

// String returns the formatted report.
func (p Problem) String() string {
	var b strings.Builder
	p.Format(&b)
	return b.String()
}

package report

import (
	"fmt"
	"time"

	"github.com/kolkov/affinity/internal/affinity/goid"
	"github.com/kolkov/affinity/internal/affinity/stack"
)

// Reporter builds problems from the calling goroutine's stack.
//
// It has no side effects beyond record construction: deciding whether a
// problem should be produced at all, and where it goes, is the caller's
// job.
type Reporter struct {
	trim stack.Matcher
	now  func() time.Time
}

// NewReporter returns a reporter that trims leading frames matched by
// trim. now may be nil, in which case time.Now is used.
func NewReporter(trim stack.Matcher, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{trim: trim, now: now}
}

// Build captures the stack starting at the caller of Build, skipping skip
// further frames, and returns the problem for thread entering op.
//
// Frames matched by the reporter's trim matcher are removed from the top
// whatever skip says, so callers only need skip for frames the matcher
// cannot name.
func (r *Reporter) Build(thread goid.Thread, op Operation, skip int) Problem {
	frames := stack.Capture(skip+1, r.trim)
	return NewProblem(Describe(thread, op, frames), thread, op, frames, r.now())
}

// Describe formats the problem sentence from the first real caller frame:
//
//	The github.com/x/widgets.Button.SetText method called from worker-1 thread
//
// When no frame survived trimming, the operation identity is used instead.
func Describe(thread goid.Thread, op Operation, frames []stack.Frame) string {
	class, method := op.Type, op.Method
	if len(frames) > 0 {
		class, method = frames[0].ClassName, frames[0].MethodName
	}
	target := method
	if class != "" {
		target = class + "." + method
	}
	if target == "" {
		target = "<unknown>"
	}
	return fmt.Sprintf("The %s method called from %s thread", target, thread.Name)
}

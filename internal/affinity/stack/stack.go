// Package stack captures call stacks for violation reports and attach-site
// records.
//
// Captured stacks are trimmed in two ways:
//   - frames belonging to the monitor itself are removed from the top of
//     the stack (a [Matcher] decides which functions count as machinery),
//     so a report starts at the first frame of real caller code;
//   - runtime internal frames are removed anywhere in the stack.
//
// Stacks that are shorter than expected are not an error: capture degrades
// to a truncated or empty frame list.
package stack

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// MaxDepth is the maximum number of program counters captured per stack.
const MaxDepth = 64

// Frame is one resolved stack frame.
//
// ClassName is the receiver type qualified by its package path
// ("github.com/x/widgets.Button"), or the package path alone for plain
// functions. MethodName is the method or function name, including closure
// suffixes ("NewButton.func1").
type Frame struct {
	Function   string `json:"function"`
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
	FileName   string `json:"fileName"`
	LineNumber int    `json:"lineNumber"`
}

// String formats the frame as "Class.Method(file:line)".
func (f Frame) String() string {
	return fmt.Sprintf("%s.%s(%s:%d)", f.ClassName, f.MethodName, f.FileName, f.LineNumber)
}

// Matcher reports whether a fully qualified function name belongs to the
// monitor machinery.
type Matcher func(function string) bool

// Exact matches functions whose names are exactly one of names.
func Exact(names ...string) Matcher {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(fn string) bool {
		_, ok := set[fn]
		return ok
	}
}

// Prefix matches functions whose names start with one of prefixes.
func Prefix(prefixes ...string) Matcher {
	return func(fn string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(fn, p) {
				return true
			}
		}
		return false
	}
}

// Any matches when any of ms matches. Nil matchers are ignored.
func Any(ms ...Matcher) Matcher {
	return func(fn string) bool {
		for _, m := range ms {
			if m != nil && m(fn) {
				return true
			}
		}
		return false
	}
}

// Callers captures program counters of the calling goroutine, skipping
// skip frames above the caller of Callers (skip 0 starts at the caller).
func Callers(skip int) []uintptr {
	if skip < 0 {
		skip = 0
	}
	pcs := make([]uintptr, MaxDepth)
	// +2: runtime.Callers itself and Callers.
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// Resolve converts program counters into frames, dropping leading frames
// matched by trim and runtime internal frames anywhere.
func Resolve(pcs []uintptr, trim Matcher) []Frame {
	if len(pcs) == 0 {
		return []Frame{}
	}

	frames := runtime.CallersFrames(pcs)
	out := make([]Frame, 0, len(pcs))
	leading := true
	for {
		rf, more := frames.Next()
		if rf.Function != "" {
			switch {
			case leading && trim != nil && trim(rf.Function):
				// Monitor machinery above the first caller frame.
			case isRuntimeFrame(rf.Function):
				// Not useful for affinity debugging.
			default:
				leading = false
				out = append(out, FrameOf(rf))
			}
		}
		if !more {
			break
		}
	}
	return out
}

// Capture is Resolve(Callers(skip+1), trim).
func Capture(skip int, trim Matcher) []Frame {
	return Resolve(Callers(skip+1), trim)
}

// FrameOf converts a runtime frame.
func FrameOf(rf runtime.Frame) Frame {
	class, method := SplitFunction(rf.Function)
	return Frame{
		Function:   rf.Function,
		ClassName:  class,
		MethodName: method,
		FileName:   rf.File,
		LineNumber: rf.Line,
	}
}

// SplitFunction splits a runtime function name into class and method.
//
//	github.com/x/widgets.(*Button).SetText → github.com/x/widgets.Button, SetText
//	github.com/x/widgets.Button.Size       → github.com/x/widgets.Button, Size
//	github.com/x/widgets.NewButton         → github.com/x/widgets, NewButton
//	main.main.func1                        → main, main.func1
func SplitFunction(fn string) (class, method string) {
	slash := strings.LastIndexByte(fn, '/')
	dot := strings.IndexByte(fn[slash+1:], '.')
	if dot < 0 {
		return "", fn
	}
	dot += slash + 1
	pkg, rest := fn[:dot], fn[dot+1:]

	if strings.HasPrefix(rest, "(*") {
		if end := strings.Index(rest, ")."); end > 2 {
			return pkg + "." + rest[2:end], rest[end+2:]
		}
		return pkg, rest
	}

	typ, after, found := cutTopLevelDot(rest)
	if !found || typ == "" || isClosureName(after) {
		return pkg, rest
	}
	return pkg + "." + typ, after
}

// cutTopLevelDot splits at the first dot outside generic brackets.
func cutTopLevelDot(s string) (before, after string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case '.':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// isClosureName reports whether s starts with a compiler-generated closure
// or deferred-wrapper segment ("func1", "gowrap2", "deferwrap1").
func isClosureName(s string) bool {
	for _, p := range []string{"func", "gowrap", "deferwrap"} {
		if strings.HasPrefix(s, p) && len(s) > len(p) && s[len(p)] >= '0' && s[len(p)] <= '9' {
			return true
		}
	}
	return false
}

func isRuntimeFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "internal/")
}

// Format writes frames in the layout of Go's own traceback:
//
//	github.com/x/widgets.(*Button).SetText()
//	    /src/widgets/button.go:42
func Format(w io.Writer, frames []Frame) {
	if len(frames) == 0 {
		_, _ = io.WriteString(w, "  (no stack trace available)\n")
		return
	}
	for _, f := range frames {
		name := f.Function
		if name == "" {
			name = f.ClassName + "." + f.MethodName
		}
		_, _ = fmt.Fprintf(w, "  %s()\n      %s:%d\n", name, f.FileName, f.LineNumber)
	}
}

// Package instrument weaves goroutine-affinity hooks into Go source.
//
// Types are opted in with a directive on their declaration:
//
//	//affinity:guarded
//	type Button struct{ ... }
//
// Every exported method of a guarded type, and its New<Type> constructor,
// gets an entry/exit pair as its first statement:
//
//	func (b *Button) SetText(s string) {
//		defer affinity.Exit(affinity.EnterStrict(_affinityOp_Button_SetText))
//		...
//	}
//
// The entry hook is chosen at weave time by classifying the method's
// signature: exempt operations (listener registration, repaint requests)
// get EnterExempt, everything else EnterStrict. Methods marked with
// //affinity:attach additionally record their first pointer parameter as
// an attached child component. //affinity:ignore skips a method, and
// //affinity:guarded on an unexported method opts it in.
//
// The operation values live in one generated var block per file, followed
// by an init function that marks the binary as woven.
package instrument

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"github.com/kolkov/affinity/internal/affinity/classify"
)

const (
	// RuntimeImportPath is the package woven code calls into.
	RuntimeImportPath = "github.com/kolkov/affinity/affinity"

	// RuntimeAlias is the import name used when the file does not already
	// import the runtime.
	RuntimeAlias = "affinity"

	// GuardedDirective opts a type (or an unexported method) in.
	GuardedDirective = "//affinity:guarded"

	// AttachDirective marks a method that attaches a child component.
	AttachDirective = "//affinity:attach"

	// IgnoreDirective opts a method of a guarded type out.
	IgnoreDirective = "//affinity:ignore"

	opPrefix = "_affinityOp_"
)

// Options controls which declarations are woven.
type Options struct {
	// GuardedTypes lists extra types to guard as "pkg.Type", in addition
	// to those carrying GuardedDirective.
	GuardedTypes []string

	// AttachMethods lists method names treated as attach methods on every
	// guarded type.
	AttachMethods []string

	// Classifier decides between the strict and exempt entry hook.
	// Nil means classify.Default().
	Classifier *classify.Classifier
}

// Result holds the output for one file.
type Result struct {
	Code    []byte
	Hooks   []Hook
	Stats   Stats
	Changed bool
}

// Stats counts what was woven.
type Stats struct {
	GuardedTypes int
	Strict       int
	Exempt       int
	Constructors int
	AttachSites  int
	Ignored      int
}

// Total returns the number of inserted entry hooks.
func (s Stats) Total() int {
	return s.Strict + s.Exempt + s.Constructors
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.GuardedTypes += o.GuardedTypes
	s.Strict += o.Strict
	s.Exempt += o.Exempt
	s.Constructors += o.Constructors
	s.AttachSites += o.AttachSites
	s.Ignored += o.Ignored
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("%d hooks (%d strict, %d exempt, %d constructors), %d attach sites, %d ignored",
		s.Total(), s.Strict, s.Exempt, s.Constructors, s.AttachSites, s.Ignored)
}

// File weaves a single source file. src follows go/parser.ParseFile: nil
// reads filename, otherwise string, []byte or io.Reader.
//
// A file with nothing to guard is returned unchanged with Changed false.
func File(filename string, src any, opts Options) (*Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return weaveFile(fset, file, guardedSet(file.Name.Name, opts.GuardedTypes, guardedTypes(file)), opts)
}

// guardedSet merges directive-declared types with the configured
// "pkg.Type" entries that belong to pkg.
func guardedSet(pkg string, configured, declared []string) map[string]bool {
	set := make(map[string]bool, len(declared))
	for _, name := range declared {
		set[name] = true
	}
	for _, q := range configured {
		p, name, ok := strings.Cut(q, ".")
		if ok && p == pkg {
			set[name] = true
		}
	}
	return set
}

func weaveFile(fset *token.FileSet, file *ast.File, guarded map[string]bool, opts Options) (*Result, error) {
	cl := opts.Classifier
	if cl == nil {
		cl = classify.Default()
	}
	attach := make(map[string]bool, len(opts.AttachMethods))
	for _, m := range opts.AttachMethods {
		attach[m] = true
	}

	w := &weaver{
		fset:    fset,
		file:    file,
		pkg:     file.Name.Name,
		guarded: guarded,
		attach:  attach,
		cl:      cl,
	}
	if err := w.collect(); err != nil {
		return nil, err
	}
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.TYPE {
			for _, spec := range gen.Specs {
				if guarded[spec.(*ast.TypeSpec).Name.Name] {
					w.stats.GuardedTypes++
				}
			}
		}
	}

	if len(w.hooks) == 0 {
		var buf bytes.Buffer
		if err := format.Node(&buf, fset, file); err != nil {
			return nil, fmt.Errorf("failed to print %s: %w", fset.File(file.Pos()).Name(), err)
		}
		return &Result{Code: buf.Bytes(), Stats: w.stats}, nil
	}

	alias := injectImport(file)
	w.apply(alias)

	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("failed to print %s: %w", fset.File(file.Pos()).Name(), err)
	}
	writeOps(&buf, alias, w.hooks)

	code, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format woven %s: %w", fset.File(file.Pos()).Name(), err)
	}
	return &Result{Code: code, Hooks: w.hooks, Stats: w.stats, Changed: true}, nil
}

// writeOps appends the operation variables and the woven marker.
func writeOps(buf *bytes.Buffer, alias string, hooks []Hook) {
	buf.WriteString("\n// Code below generated by affinityweave. DO NOT EDIT.\n\nvar (\n")
	for _, h := range hooks {
		fmt.Fprintf(buf, "\t%s = %s.Op(%s, %s)\n",
			h.Var, alias, strconv.Quote(h.Type), strconv.Quote(h.Signature.String()))
	}
	buf.WriteString(")\n\n")
	fmt.Fprintf(buf, "func init() { %s.MarkWoven() }\n", alias)
}

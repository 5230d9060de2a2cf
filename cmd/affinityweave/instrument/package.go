package instrument

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// PackageResult holds the woven files of one directory, keyed by base name.
type PackageResult struct {
	Dir   string
	Files map[string]*Result
	Stats Stats
}

// Package weaves every non-test Go file in dir. Guarded types are
// collected across all files first, so a method declared in a different
// file than its type is still woven.
func Package(ctx context.Context, dir string, opts Options) (*PackageResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	fset := token.NewFileSet()
	var (
		names []string
		files []*ast.File
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		names = append(names, name)
		files = append(files, f)
	}

	res := &PackageResult{Dir: dir, Files: make(map[string]*Result, len(files))}
	if len(files) == 0 {
		return res, nil
	}

	// All files of a directory share a package name outside of tests.
	pkg := files[0].Name.Name
	var declared []string
	for _, f := range files {
		declared = append(declared, guardedTypes(f)...)
	}
	guarded := guardedSet(pkg, opts.GuardedTypes, declared)

	results := make([]*Result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := weaveFile(fset, f, guarded, opts)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, r := range results {
		res.Files[names[i]] = r
		res.Stats.Add(r.Stats)
	}
	return res, nil
}

// Changed returns the base names of files that received hooks, sorted.
func (p *PackageResult) Changed() []string {
	var out []string
	for name, r := range p.Files {
		if r.Changed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Hooks returns every hook in the package ordered by file and line.
func (p *PackageResult) Hooks() []Hook {
	var out []Hook
	for _, name := range p.Changed() {
		out = append(out, p.Files[name].Hooks...)
	}
	return out
}

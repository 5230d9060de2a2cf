package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kolkov/affinity/cmd/affinityweave/instrument"
	"github.com/kolkov/affinity/cmd/affinityweave/printer"
	"github.com/kolkov/affinity/cmd/affinityweave/runtime"
)

// workspace is a woven copy of a module.
type workspace struct {
	// srcRoot is the original module root.
	srcRoot string

	// dir is the copy's root.
	dir string

	temp bool
}

// newWorkspace copies the module rooted at srcRoot into dir. An empty dir
// creates a temporary directory that cleanup removes.
func newWorkspace(srcRoot, dir string) (*workspace, error) {
	ws := &workspace{srcRoot: srcRoot, dir: dir}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "affinityweave-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		ws.dir, ws.temp = tmp, true
	} else {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		if within(abs, srcRoot) {
			return nil, fmt.Errorf("output directory %s is inside the module %s", abs, srcRoot)
		}
		ws.dir = abs
	}

	if err := copyTree(srcRoot, ws.dir); err != nil {
		ws.cleanup()
		return nil, err
	}
	return ws, nil
}

func (ws *workspace) cleanup() {
	if ws.temp {
		os.RemoveAll(ws.dir)
	}
}

// path maps a path inside the original module onto the copy.
func (ws *workspace) path(orig string) (string, error) {
	abs, err := filepath.Abs(orig)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(ws.srcRoot, abs)
	if err != nil || !within(abs, ws.srcRoot) {
		return "", fmt.Errorf("%s is outside the module %s", orig, ws.srcRoot)
	}
	return filepath.Join(ws.dir, rel), nil
}

// weave instruments every package directory of the copy in place.
func (ws *workspace) weave(ctx context.Context, opts instrument.Options) (instrument.Stats, error) {
	var total instrument.Stats
	dirs, err := packageDirs(ws.dir)
	if err != nil {
		return total, err
	}
	for _, dir := range dirs {
		res, err := instrument.Package(ctx, dir, opts)
		if err != nil {
			return total, err
		}
		for _, name := range res.Changed() {
			if err := os.WriteFile(filepath.Join(dir, name), res.Files[name].Code, 0o644); err != nil {
				return total, fmt.Errorf("failed to write woven %s: %w", name, err)
			}
			if verbose {
				rel, _ := filepath.Rel(ws.dir, filepath.Join(dir, name))
				printer.Step("wove %s (%s)\n", rel, res.Files[name].Stats)
			}
		}
		total.Add(res.Stats)
	}
	return total, nil
}

// link points the copy's go.mod at the runtime.
func (ws *workspace) link() error {
	runtimeDir, err := runtime.LocateRuntime()
	if err != nil {
		return err
	}
	if verbose {
		if runtimeDir != "" {
			printer.Step("using runtime checkout %s\n", runtimeDir)
		} else {
			printer.Step("using published runtime %s\n", runtime.ModulePath)
		}
	}
	return runtime.Link(filepath.Join(ws.dir, "go.mod"), ws.srcRoot, runtimeDir)
}

// goCmd runs the go tool in dir with output attached to the caller's.
func goCmd(ctx context.Context, dir string, stdin io.Reader, args ...string) error {
	if verbose {
		printer.Step("go %s\n", strings.Join(args, " "))
	}
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = dir
	cmd.Stdin = stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// prepare weaves, links and tidies a copy of the module holding cwd.
func prepare(ctx context.Context, cwd, out string) (*workspace, instrument.Stats, error) {
	root, err := runtime.FindModuleRoot(cwd)
	if err != nil {
		return nil, instrument.Stats{}, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, instrument.Stats{}, err
	}

	ws, err := newWorkspace(root, out)
	if err != nil {
		return nil, instrument.Stats{}, err
	}
	stats, err := ws.weave(ctx, weaveOptions(cfg))
	if err != nil {
		ws.cleanup()
		return nil, stats, err
	}
	if err := ws.link(); err != nil {
		ws.cleanup()
		return nil, stats, err
	}
	return ws, stats, nil
}

// skipDir reports directories the go tool ignores, plus VCS metadata.
func skipDir(name string) bool {
	return name == "testdata" || name == "vendor" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// packageDirs lists directories under root holding Go files.
func packageDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if path != root {
			if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
				return filepath.SkipDir
			}
		}
		matches, err := filepath.Glob(filepath.Join(path, "*.go"))
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

// copyTree copies src into dst, skipping VCS metadata.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if path != src && (d.Name() == ".git" || d.Name() == ".hg") {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

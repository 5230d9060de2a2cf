// Package runtime links woven code against the monitor runtime.
//
// Woven files import github.com/kolkov/affinity/affinity. A project that
// does not already depend on it gets a require directive, and when the
// weaver runs from a source checkout of this module also a replace
// directive pointing at that checkout, so unreleased runtime changes are
// picked up without publishing.
package runtime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/kolkov/affinity/affinity"
)

// ModulePath is the module providing the runtime package.
const ModulePath = "github.com/kolkov/affinity"

// RootEnv overrides runtime checkout discovery.
const RootEnv = "AFFINITY_ROOT"

// ErrNoModule is returned when no go.mod is found above a directory.
var ErrNoModule = errors.New("no go.mod found")

// FindModuleRoot walks up from start to the directory holding go.mod.
func FindModuleRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w above %s", ErrNoModule, start)
		}
		dir = parent
	}
}

// ModulePathOf returns the module path declared in goModPath.
func ModulePathOf(goModPath string) (string, error) {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", goModPath, err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("%s: missing module directive", goModPath)
	}
	return path, nil
}

// LocateRuntime finds a local checkout of the runtime module. RootEnv wins
// when set; otherwise the working directory and the executable's directory
// are walked up. An empty result with a nil error means no checkout was
// found and the published module will be used.
func LocateRuntime() (string, error) {
	if root := os.Getenv(RootEnv); root != "" {
		if !isRuntimeRoot(root) {
			return "", fmt.Errorf("%s=%s is not a checkout of %s", RootEnv, root, ModulePath)
		}
		return filepath.Abs(root)
	}

	var starts []string
	if cwd, err := os.Getwd(); err == nil {
		starts = append(starts, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		starts = append(starts, filepath.Dir(exe))
	}
	for _, start := range starts {
		for dir := start; ; {
			if isRuntimeRoot(dir) {
				return dir, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return "", nil
}

func isRuntimeRoot(dir string) bool {
	path, err := ModulePathOf(filepath.Join(dir, "go.mod"))
	return err == nil && path == ModulePath
}

// Link rewrites the go.mod at goModPath so the module can import the
// runtime. sourceDir is the directory the go.mod was copied from; relative
// replace directives are resolved against it. runtimeDir is a local
// checkout from LocateRuntime, or empty for the published module.
//
// Linking the runtime module itself is a no-op.
func Link(goModPath, sourceDir, runtimeDir string) error {
	data, err := os.ReadFile(goModPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", goModPath, err)
	}
	f, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", goModPath, err)
	}
	if f.Module != nil && f.Module.Mod.Path == ModulePath {
		return nil
	}

	if err := absolutizeReplaces(f, sourceDir); err != nil {
		return err
	}

	if !requires(f, ModulePath) {
		if err := f.AddRequire(ModulePath, "v"+affinity.Version); err != nil {
			return fmt.Errorf("failed to add require: %w", err)
		}
	}
	if runtimeDir != "" && !replaces(f, ModulePath) {
		if err := f.AddReplace(ModulePath, "", runtimeDir, ""); err != nil {
			return fmt.Errorf("failed to add replace: %w", err)
		}
	}

	f.Cleanup()
	out, err := f.Format()
	if err != nil {
		return fmt.Errorf("failed to format %s: %w", goModPath, err)
	}
	if err := os.WriteFile(goModPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", goModPath, err)
	}
	return nil
}

// absolutizeReplaces rewrites local replace targets relative to sourceDir,
// since the woven copy lives elsewhere.
func absolutizeReplaces(f *modfile.File, sourceDir string) error {
	for _, rep := range f.Replace {
		if rep.New.Version != "" || !isLocalPath(rep.New.Path) || filepath.IsAbs(rep.New.Path) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(sourceDir, rep.New.Path))
		if err != nil {
			return fmt.Errorf("failed to resolve replace %s: %w", rep.Old.Path, err)
		}
		if err := f.AddReplace(rep.Old.Path, rep.Old.Version, abs, ""); err != nil {
			return fmt.Errorf("failed to rewrite replace %s: %w", rep.Old.Path, err)
		}
	}
	return nil
}

func requires(f *modfile.File, path string) bool {
	for _, r := range f.Require {
		if r.Mod.Path == path {
			return true
		}
	}
	return false
}

func replaces(f *modfile.File, path string) bool {
	for _, r := range f.Replace {
		if r.Old.Path == path {
			return true
		}
	}
	return false
}

// isLocalPath reports whether a replace target is a filesystem path.
// Module paths are never rooted and never start with a dot segment.
func isLocalPath(path string) bool {
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") ||
		strings.HasPrefix(path, `.\`) || strings.HasPrefix(path, `..\`) {
		return true
	}
	if filepath.IsAbs(path) {
		return true
	}
	return len(path) >= 2 && path[1] == ':'
}

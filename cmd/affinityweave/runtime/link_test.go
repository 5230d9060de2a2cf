package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/mod/modfile"

	"github.com/kolkov/affinity/affinity"
)

func writeMod(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "go.mod")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseMod(t *testing.T, path string) *modfile.File {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := modfile.Parse(path, data, nil)
	require.NoError(t, err)
	return f
}

func TestFindModuleRoot(t *testing.T) {
	root := t.TempDir()
	writeMod(t, root, "module example.com/app\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindModuleRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestModulePathOf(t *testing.T) {
	dir := t.TempDir()
	path := writeMod(t, dir, "module example.com/app\n\ngo 1.24\n")
	got, err := ModulePathOf(path)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app", got)

	bad := writeMod(t, t.TempDir(), "go 1.24\n")
	_, err = ModulePathOf(bad)
	assert.Error(t, err)
}

func TestLocateRuntime_Env(t *testing.T) {
	root := t.TempDir()
	writeMod(t, root, "module "+ModulePath+"\n")
	t.Setenv(RootEnv, root)

	got, err := LocateRuntime()
	require.NoError(t, err)
	assert.Equal(t, root, got)

	t.Setenv(RootEnv, t.TempDir())
	_, err = LocateRuntime()
	assert.Error(t, err)
}

func TestLocateRuntime_FromCheckout(t *testing.T) {
	t.Setenv(RootEnv, "")
	// Tests run inside this module's checkout.
	got, err := LocateRuntime()
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.True(t, isRuntimeRoot(got))
}

func TestLink_AddsRequireAndReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeMod(t, dir, "module example.com/app\n\ngo 1.24\n")

	require.NoError(t, Link(path, dir, "/opt/affinity"))

	f := parseMod(t, path)
	require.Len(t, f.Require, 1)
	assert.Equal(t, ModulePath, f.Require[0].Mod.Path)
	assert.Equal(t, "v"+affinity.Version, f.Require[0].Mod.Version)
	require.Len(t, f.Replace, 1)
	assert.Equal(t, "/opt/affinity", f.Replace[0].New.Path)
}

func TestLink_PublishedRuntime(t *testing.T) {
	dir := t.TempDir()
	path := writeMod(t, dir, "module example.com/app\n\ngo 1.24\n")

	require.NoError(t, Link(path, dir, ""))
	f := parseMod(t, path)
	assert.Len(t, f.Require, 1)
	assert.Empty(t, f.Replace)
}

func TestLink_KeepsExistingRequire(t *testing.T) {
	dir := t.TempDir()
	path := writeMod(t, dir, "module example.com/app\n\ngo 1.24\n\nrequire "+ModulePath+" v0.1.0\n")

	require.NoError(t, Link(path, dir, ""))
	f := parseMod(t, path)
	require.Len(t, f.Require, 1)
	assert.Equal(t, "v0.1.0", f.Require[0].Mod.Version)
}

func TestLink_AbsolutizesRelativeReplaces(t *testing.T) {
	src := t.TempDir()
	copyDir := t.TempDir()
	path := writeMod(t, copyDir, `module example.com/app

go 1.24

replace example.com/lib => ../lib

replace example.com/remote => example.com/fork v1.2.0
`)

	require.NoError(t, Link(path, src, ""))
	f := parseMod(t, path)

	got := map[string]string{}
	for _, r := range f.Replace {
		got[r.Old.Path] = r.New.Path
	}
	assert.Equal(t, filepath.Join(filepath.Dir(src), "lib"), got["example.com/lib"])
	assert.Equal(t, "example.com/fork", got["example.com/remote"])
}

func TestLink_RuntimeModuleItself(t *testing.T) {
	dir := t.TempDir()
	content := "module " + ModulePath + "\n\ngo 1.24\n"
	path := writeMod(t, dir, content)

	require.NoError(t, Link(path, dir, "/opt/affinity"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestLink_Errors(t *testing.T) {
	err := Link(filepath.Join(t.TempDir(), "go.mod"), "", "")
	assert.Error(t, err)

	path := writeMod(t, t.TempDir(), "module\n")
	err = Link(path, "", "")
	assert.Error(t, err)
}

func TestFindModuleRoot_None(t *testing.T) {
	// The filesystem root has no go.mod in any sane environment.
	_, err := FindModuleRoot(string(filepath.Separator))
	assert.True(t, errors.Is(err, ErrNoModule))
}

func TestIsLocalPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"./lib", true},
		{"../lib", true},
		{"/abs/lib", true},
		{`C:\lib`, true},
		{"example.com/lib", false},
		{"github.com/x/y", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLocalPath(tt.path), tt.path)
	}
}

package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/internal/store"
)

// newTestRuntime writes files under a temp project root and returns a
// Runtime over a fresh module cache.
func newTestRuntime(t *testing.T, files map[string]string, opts ...RuntimeOption) (*Runtime, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	project, err := resource.NewProject(root)
	require.NoError(t, err)
	core := pycore.New(project)
	t.Cleanup(core.Close)
	return NewRuntime(core, "", opts...), root
}

var shopFiles = map[string]string{
	"lib.py":   "class Base:\n    pass\n\nclass Child(Base):\n    pass\n\ndef helper():\n    return Child()\n",
	"main.py":  "from lib import helper\nvalue = helper()\n",
	"other.py": "import lib\nlib.helper()\n",
}

// --- Host function tests ---

func TestRunSource_Resolve(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	script := `
d := resolve("main.py", 31)
assert(d["name"] == "helper", "name: " + d["name"])
assert(d["kind"] == "function", "kind: " + d["kind"])
assert(d["line"] == 7, "line")
assert(d["path"] == root + "/lib.py", "path: " + d["path"])
assert(resolve("main.py", 22) == nil, "newline resolves nothing")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestRunSource_ResolveMissingFile(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	err := rt.RunSource(context.Background(), `resolve("missing.py", 0)`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve")
}

func TestRunSource_ScopeAt(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	script := `
s := scope_at("lib.py", 8)
assert(s["kind"] == "function", "kind: " + s["kind"])
assert(s["name"] == "helper", "name")
assert(s["start"] == 7, "start")

g := scope_at("lib.py", 3)
assert(g["kind"] == "global", "kind: " + g["kind"])
assert(len(g["names"]) == 3, "module names")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestRunSource_Occurrences(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	script := `
occs := occurrences("main.py", 31)
assert(len(occs) == 4, "want 4 occurrences")
assert(occs[0]["path"] == root + "/lib.py", "first is the definition")
assert(len(occurrences("main.py", 22)) == 0, "nothing at a newline")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestRunSource_RenamePlanAndApply(t *testing.T) {
	rt, root := newTestRuntime(t, shopFiles)

	plan := `
cs := rename("main.py", 31, "assist")
assert(cs["old_name"] == "helper", "old name")
assert(len(cs["changes"]) == 3, "three files change")
assert(cs["move"] == nil, "no move")
`
	require.NoError(t, rt.RunSource(context.Background(), plan, nil))
	data, err := os.ReadFile(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, shopFiles["main.py"], string(data), "a plan writes nothing")

	require.NoError(t, rt.RunSource(context.Background(), `rename("main.py", 31, "assist", true)`, nil))
	data, err = os.ReadFile(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "from lib import assist\nvalue = assist()\n", string(data))
}

func TestRunSource_RenameInvalidName(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	err := rt.RunSource(context.Background(), `rename("main.py", 31, "1x")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identifier")
}

func TestRunSource_Subclasses(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	script := `
subs := subclasses("lib.py", 1)
assert(len(subs) == 1, "one subclass")
assert(subs[0]["name"] == "Child", "Child")
assert(subs[0]["line"] == 4, "line")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))

	err := rt.RunSource(context.Background(), `subclasses("lib.py", 2)`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no class statement")
}

func TestRunSource_Complete(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	script := `
props := complete("other.py", 16)
assert(len(props) == 1, "one proposal")
assert(props[0]["name"] == "helper", "name: " + props[0]["name"])
assert(props[0]["kind"] == "function", "kind")
assert(props[0]["scope"] == "attribute", "scope")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestRunSource_PythonFiles(t *testing.T) {
	rt, _ := newTestRuntime(t, shopFiles)

	script := `
files := python_files()
assert(len(files) == 3, "three files")
assert(files[0] == root + "/lib.py", "sorted walk")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestRunSource_Calls(t *testing.T) {
	s, err := store.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.PutCall(&store.CallRecord{
		Path:   "/src/shop.py",
		Line:   4,
		Args:   []store.Descriptor{{Kind: store.DescriptorBuiltin, Builtin: "int"}},
		Return: store.Descriptor{Kind: store.DescriptorInstance, Path: "/src/shop.py", Line: 1},
	}))

	rt := NewRuntime(nil, "", WithCallStore(s))
	script := `
c := calls("/src/shop.py", 4)
assert(c["args"][0]["builtin"] == "int", "arg")
assert(c["return"]["kind"] == "instance", "return kind")
assert(c["return"]["line"] == 1, "return line")
assert(calls("/src/shop.py", 9) == nil, "no record")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
}

func TestRunSource_NoCoreHasNoHostFunctions(t *testing.T) {
	rt := NewRuntime(nil, "")
	err := rt.RunSource(context.Background(), `resolve("main.py", 0)`, nil)
	require.Error(t, err)
}

func TestRunSource_ExtraGlobals(t *testing.T) {
	rt := NewRuntime(nil, "")
	err := rt.RunSource(context.Background(), `assert(target == "main.py", "extra global")`, map[string]any{
		"target": "main.py",
	})
	require.NoError(t, err)
}

func TestRunSource_Emit(t *testing.T) {
	var out bytes.Buffer
	rt := NewRuntime(nil, "", WithOutput(&out))

	err := rt.RunSource(context.Background(), `emit({"name": "x", "line": 3})
emit([1, 2])`, nil)
	require.NoError(t, err)
	assert.Equal(t, "{\"line\":3,\"name\":\"x\"}\n[1,2]\n", out.String())
}

func TestRunSource_Definitions(t *testing.T) {
	var out bytes.Buffer
	rt, _ := newTestRuntime(t, shopFiles, WithOutput(&out))

	script := `
for _, d := range definitions("lib.py") {
	emit([d["name"], d["kind"], d["line"], d["offset"]])
}
assert(len(definitions("main.py")) == 0, "imported names are not definitions")
`
	require.NoError(t, rt.RunSource(context.Background(), script, nil))
	assert.Equal(t, "[\"Base\",\"class\",1,6]\n[\"Child\",\"class\",4,28]\n[\"helper\",\"function\",7,55]\n", out.String())
}

// --- Script loading tests ---

func TestRunScript_LoadsFile(t *testing.T) {
	dir := t.TempDir()

	scriptPath := filepath.Join(dir, "test.risor")
	if err := os.WriteFile(scriptPath, []byte(`result := 1 + 1`), 0644); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	rt := NewRuntime(nil, dir)
	ctx := context.Background()

	err := rt.RunScript(ctx, "test.risor", nil)
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
}

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(nil, t.TempDir())
	ctx := context.Background()

	err := rt.RunScript(ctx, "nonexistent.risor", nil)
	if err == nil {
		t.Fatal("expected error for missing script, got nil")
	}
}

func TestLoadScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.risor")
	content := `x := 42`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing: %v", err)
	}

	rt := NewRuntime(nil, dir)
	got, err := rt.LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if got != content {
		t.Errorf("LoadScript = %q, want %q", got, content)
	}
}

// --- fs.FS-based script loading tests ---

func TestLoadScript_FromFSFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	mapFS := fstest.MapFS{
		"lib/check.risor": &fstest.MapFile{Data: []byte(content)},
	}

	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("lib/check.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FromFSFS_NotFound(t *testing.T) {
	t.Parallel()

	mapFS := fstest.MapFS{}
	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	_, err := rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLoadScript_FromFSFS_FallsBackToDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mine.risor")
	require.NoError(t, os.WriteFile(path, []byte(`z := 7`), 0o644))

	rt := NewRuntime(nil, "", WithRuntimeFS(fstest.MapFS{}))

	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)
}

func TestLoadScript_FromFSFS_StripsLeadingSeparator(t *testing.T) {
	t.Parallel()

	content := `y := 99`
	mapFS := fstest.MapFS{
		"lib/check.risor": &fstest.MapFile{Data: []byte(content)},
	}

	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	// Absolute-style path should be resolved within the FS.
	got, err := rt.LoadScript("/lib/check.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FallsBackToDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `z := 7`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(content), 0644))

	// No WithRuntimeFS -- should fall back to disk.
	rt := NewRuntime(nil, dir)

	got, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRunScript_FromFSFS(t *testing.T) {
	mapFS := fstest.MapFS{
		"test.risor": &fstest.MapFile{Data: []byte(`result := 1 + 1`)},
	}

	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))
	err := rt.RunScript(context.Background(), "test.risor", nil)
	require.NoError(t, err)
}

// --- Importer wiring tests ---

func TestImport_FSImporter(t *testing.T) {
	// Risor's FSImporter resolves "lib_helpers" by trying name + ".risor",
	// so the file must be at the flat path "lib_helpers.risor" in the FS.
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func greet(name) {
	return "hello " + name
}
`)},
	}

	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	script := `
import lib_helpers

msg := lib_helpers.greet("world")
assert(msg == "hello world", 'expected "hello world", got ' + msg)
`
	err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
}

func TestImport_LocalImporter(t *testing.T) {
	dir := t.TempDir()

	// Write a module file to disk.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))

	rt := NewRuntime(nil, dir)

	script := `
import math_utils

result := math_utils.double(21)
assert(result == 42, 'expected 42, got {result}')
`
	err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	// Verify that imported modules can reference host-provided globals.
	// The log global is always available (provided by buildGlobals).
	mapFS := fstest.MapFS{
		"helper.risor": &fstest.MapFile{Data: []byte(`
// This module references the "log" global provided by the host.
// If global names aren't passed to the importer, this will fail to compile.
func do_log(msg) {
	log.Info(msg)
}
`)},
	}

	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	script := `
import helper
helper.do_log("test message")
`
	err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
}

func TestRunSource_NoImport_NoRegression(t *testing.T) {
	// Scripts without import statements should work regardless of importer config.
	rt := NewRuntime(nil, "")

	script := `
x := 1 + 2
assert(x == 3, 'expected 3')
`
	err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
}

func TestNewRuntime_Defaults(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(nil, "/some/dir")
	require.NotNil(t, rt)
	assert.Nil(t, rt.fsys)
	assert.Equal(t, "/some/dir", rt.scriptsDir)
}

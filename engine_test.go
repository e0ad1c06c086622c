package pysem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pysem/internal/config"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/scripts"
)

var shopFiles = map[string]string{
	"lib.py":   "class Base:\n    pass\n\nclass Child(Base):\n    pass\n\ndef helper():\n    return Child()\n",
	"main.py":  "from lib import helper\nvalue = helper()\n",
	"other.py": "import lib\nlib.helper()\n",
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// newTestEngine writes files under a temp project root and opens an
// Engine on it.
func newTestEngine(t *testing.T, files map[string]string, opts ...Option) *Engine {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)
	e, err := New(root, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestNew_CreatesStoreAndRuntime(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	require.NotNil(t, e.core)
	require.NotNil(t, e.runtime)
	require.NotNil(t, e.Store())
	assert.True(t, filepath.IsAbs(e.Root()))

	call, err := e.Store().LatestCall(filepath.Join(e.Root(), "lib.py"), 7)
	require.NoError(t, err, "store is migrated")
	assert.Nil(t, call)
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestNew_DatabaseFile(t *testing.T) {
	e := newTestEngine(t, shopFiles, WithDatabase("calls.db"))
	_, err := os.Stat(filepath.Join(e.Root(), "calls.db"))
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	e, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestWithConfig(t *testing.T) {
	cfg, err := config.Parse(`
[project]
source_roots = ["src"]
ignore = ["vendor/**"]
`)
	require.NoError(t, err)

	e := newTestEngine(t, map[string]string{
		"src/tools.py":     "def sharpen():\n    pass\n",
		"app/main.py":      "import tools\ntools.sharpen()\n",
		"vendor/broken.py": "def (:\n",
	}, WithConfig(cfg))

	d, err := e.ResolveAt("app/main.py", 20)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "sharpen", d.Name)
	assert.Equal(t, filepath.Join(e.Root(), "src", "tools.py"), d.Path)

	errs, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs, "ignored folders are not checked")
}

// =============================================================================
// Queries
// =============================================================================

func TestResolveAt(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	d, err := e.ResolveAt("main.py", 31)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, Definition{
		Name:        "helper",
		Kind:        "function",
		Description: "function helper",
		Path:        filepath.Join(e.Root(), "lib.py"),
		Line:        7,
	}, *d)

	d, err = e.ResolveAt("main.py", 22)
	require.NoError(t, err)
	assert.Nil(t, d, "newline resolves nothing")

	_, err = e.ResolveAt("missing.py", 0)
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestResolveInSource(t *testing.T) {
	e := newTestEngine(t, shopFiles)
	src := "from lib import helper\nvalue = helper()\nvalue\n"

	d, err := e.ResolveInSource(src, "main.py", 40)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "instance", d.Kind)
	assert.Equal(t, "instance of Child", d.Description)

	_, err = e.ResolveInSource("def (:\n", "", 0)
	assert.Error(t, err)
}

func TestScopeAt(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	s, err := e.ScopeAt("lib.py", 8)
	require.NoError(t, err)
	assert.Equal(t, "function", s.Kind)
	assert.Equal(t, "helper", s.Name)
	assert.Equal(t, 7, s.Start)

	s, err = e.ScopeAt("lib.py", 3)
	require.NoError(t, err)
	assert.Equal(t, "global", s.Kind)
	assert.Equal(t, []string{"Base", "Child", "helper"}, s.Names)
}

func TestFindOccurrences(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	found, err := e.FindOccurrences("lib.py", 55)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, filepath.Join(e.Root(), "lib.py"), found[0].Path)
	assert.Equal(t, []Occurrence{{Start: 55, End: 61}}, found[0].Occurrences)
	assert.Equal(t, []Occurrence{{Start: 16, End: 22}, {Start: 31, End: 37}}, found[1].Occurrences)
	assert.Equal(t, []Occurrence{{Start: 15, End: 21}}, found[2].Occurrences)

	calls, err := e.FindOccurrences("lib.py", 55, OnlyCalls())
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, []Occurrence{{Start: 31, End: 37}}, calls[0].Occurrences)

	none, err := e.FindOccurrences("main.py", 22)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSubclasses(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	subs, err := e.Subclasses("lib.py", 6)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Child", subs[0].Name)
	assert.Equal(t, 4, subs[0].Line)

	_, err = e.Subclasses("lib.py", 55)
	assert.ErrorIs(t, err, ErrNotAClass)
}

func TestCodeAssist(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	props, err := e.CodeAssist("l = []\nl.ap", 11, "")
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "append", props[0].Name)

	src := "from lib import helper\nhelper()."
	props, err = e.CodeAssist(src, len(src), "main.py")
	require.NoError(t, err)
	assert.Empty(t, props, "builtin object attributes are private")

	src = "import lib\nlib.he"
	props, err = e.CodeAssist(src, len(src), "main.py")
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, Proposal{Name: "helper", Kind: "function", Scope: "attribute"}, props[0])
}

// =============================================================================
// Rename
// =============================================================================

func TestLocalRename(t *testing.T) {
	e := newTestEngine(t, nil)

	got, err := e.LocalRename("x = 1\nprint(x)\n", 0, "y")
	require.NoError(t, err)
	assert.Equal(t, "y = 1\nprint(y)\n", got)

	_, err = e.LocalRename("x = 1\n", 0, "not valid")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestPlanRename_WritesNothing(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	cs, err := e.PlanRename("lib.py", 55, "make_child")
	require.NoError(t, err)
	assert.Equal(t, "helper", cs.OldName)
	assert.Len(t, cs.Changes, 3)
	assert.Nil(t, cs.Move)
	assert.Equal(t, shopFiles["main.py"], readFile(t, filepath.Join(e.Root(), "main.py")))

	_, err = e.PlanRename("main.py", 22, "x")
	assert.ErrorIs(t, err, ErrNoBinding)
	_, err = e.PlanRename("lib.py", 55, "1x")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRename_RebuildsChangedModules(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	cs, err := e.Rename("lib.py", 28, "Derived")
	require.NoError(t, err)
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, 2, cs.Changes[0].Occurrences)

	lib := readFile(t, filepath.Join(e.Root(), "lib.py"))
	assert.Contains(t, lib, "class Derived(Base):")
	assert.Contains(t, lib, "return Derived()")

	subs, err := e.Subclasses("lib.py", 6)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Derived", subs[0].Name)

	d, err := e.ResolveInSource("from lib import helper\nv = helper()\nv\n", "main.py", 36)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "instance of Derived", d.Description)
}

func TestRename_Module(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	cs, err := e.Rename("other.py", 7, "library")
	require.NoError(t, err)
	require.NotNil(t, cs.Move)
	assert.Equal(t, filepath.Join(e.Root(), "library.py"), cs.Move.To)

	_, err = os.Stat(filepath.Join(e.Root(), "library.py"))
	require.NoError(t, err)
	assert.Equal(t, "import library\nlibrary.helper()\n", readFile(t, filepath.Join(e.Root(), "other.py")))
}

func TestNotifyChanged(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	d, err := e.ResolveAt("main.py", 31)
	require.NoError(t, err)
	require.Equal(t, 7, d.Line)

	writeFiles(t, e.Root(), map[string]string{"lib.py": "def helper():\n    return 1\n"})
	e.NotifyChanged("lib.py")

	d, err = e.ResolveAt("main.py", 31)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Line, "importers of a changed module are rebuilt")
}

// =============================================================================
// Check
// =============================================================================

func TestCheck(t *testing.T) {
	files := map[string]string{
		"bad.py":       "def broken(:\n    pass\n",
		"pkg/worse.py": "x = 1\nclass\n",
	}
	for k, v := range shopFiles {
		files[k] = v
	}
	e := newTestEngine(t, files)

	errs, err := e.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, filepath.Join(e.Root(), "bad.py"), errs[0].Path)
	assert.Equal(t, 1, errs[0].Line)
	assert.Equal(t, filepath.Join(e.Root(), "pkg", "worse.py"), errs[1].Path)
}

func TestCheck_Empty(t *testing.T) {
	e := newTestEngine(t, nil)
	errs, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
}

// =============================================================================
// Scripts
// =============================================================================

func TestRunSource(t *testing.T) {
	var out bytes.Buffer
	e := newTestEngine(t, shopFiles, WithScriptOutput(&out))

	require.NoError(t, e.RunSource(context.Background(), `emit(resolve("main.py", 31)["name"])`, nil))
	assert.Equal(t, "\"helper\"\n", out.String())
}

func TestRunScript_Embedded(t *testing.T) {
	var out bytes.Buffer
	files := map[string]string{"extra.py": "def lonely():\n    pass\n"}
	for k, v := range shopFiles {
		files[k] = v
	}
	e := newTestEngine(t, files, WithScriptsFS(scripts.FS), WithScriptOutput(&out))

	require.NoError(t, e.RunScript(context.Background(), "unused.risor", nil))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "lonely", rec["name"])
	assert.Equal(t, filepath.Join(e.Root(), "extra.py"), rec["path"])
}

// =============================================================================
// Traced runs
// =============================================================================

const shopSource = `class Box:
    def __init__(self, size):
        self.size = size


def make(size):
    return Box(size)


make(3)
`

func requirePython(t *testing.T) string {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return python
}

func TestRunTraced_FillsUnknownParameters(t *testing.T) {
	python := requirePython(t)
	e := newTestEngine(t, map[string]string{"shop.py": shopSource}, WithPython(python))

	d, err := e.ResolveAt("shop.py", 99)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "unknown", d.Kind, "nothing is known before a traced run")

	var mu sync.Mutex
	var seen []int
	res, err := e.RunTraced(context.Background(), "shop.py", OnCall(func(rec *Record) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, rec.Line)
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, []string{filepath.Join(e.Root(), "shop.py")}, res.Paths)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []int{2, 6}, seen)

	d, err = e.ResolveAt("shop.py", 99)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "instance of int", d.Description)
}

func TestRunTraced_NonzeroExit(t *testing.T) {
	python := requirePython(t)
	e := newTestEngine(t, map[string]string{
		"boom.py": "def f(x):\n    return x\n\nf(1)\nraise SystemExit(2)\n",
	}, WithPython(python))

	var stderr bytes.Buffer
	res, err := e.RunTraced(context.Background(), "boom.py", TraceOutput(io.Discard, &stderr))
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, 1, res.Records)
}

// =============================================================================
// Watch
// =============================================================================

func TestWatch_AppliesChanges(t *testing.T) {
	e := newTestEngine(t, shopFiles)

	d, err := e.ResolveAt("main.py", 31)
	require.NoError(t, err)
	require.Equal(t, 7, d.Line)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- e.Watch(ctx, 20*time.Millisecond, func(paths []string) {
			select {
			case changed <- paths:
			default:
			}
		})
	}()

	// The watcher registers its folders asynchronously.
	require.Eventually(t, func() bool {
		writeFiles(t, e.Root(), map[string]string{"lib.py": "def helper():\n    return 1\n"})
		select {
		case paths := <-changed:
			return len(paths) > 0
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	d, err = e.ResolveAt("main.py", 31)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1, d.Line)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

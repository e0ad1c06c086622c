package pycore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/internal/store"
)

// newTestCore writes files under a temp project root and opens a cache on it.
func newTestCore(t *testing.T, files map[string]string, opts ...Option) *Core {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	project, err := resource.NewProject(root)
	require.NoError(t, err)
	c := New(project, opts...)
	t.Cleanup(c.Close)
	return c
}

func moduleAt(t *testing.T, c *Core, rel string) *model.Module {
	t.Helper()
	res, err := c.Project().Get(rel)
	require.NoError(t, err)
	m, err := c.ModuleFor(res)
	require.NoError(t, err)
	return m
}

func resourceAt(t *testing.T, c *Core, rel string) resource.Resource {
	t.Helper()
	res, err := c.Project().Get(rel)
	require.NoError(t, err)
	return res
}

func TestFindModule_SearchOrder(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"src/pkg/__init__.py": "",
		"src/pkg/mod.py":      "x = 1\n",
		"src/plain.py":        "",
		"lib/extlib.py":       "",
		"lib/plain.py":        "",
		"app/main.py":         "",
		"app/sibling.py":      "",
		"nopkg/inner.py":      "",
	}, WithSourceRoots("src"), WithPythonPath("lib"))
	main := moduleAt(t, c, "app/main.py")

	tests := []struct {
		name string
		want string
	}{
		{"pkg", "src/pkg"},
		{"pkg.mod", "src/pkg/mod.py"},
		{"plain", "src/plain.py"},
		{"extlib", "lib/extlib.py"},
		{"sibling", "app/sibling.py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.FindModule(main, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Project().Relative(res.Path()))
		})
	}

	_, err := c.FindModule(main, "missing")
	assert.ErrorIs(t, err, ErrModuleNotFound)
	_, err = c.FindModule(main, "pkg.missing")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestFindModule_FolderWithoutInitIsNotAPackage(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"nopkg/inner.py": "",
		"main.py":        "",
	})
	_, err := c.FindModule(moduleAt(t, c, "main.py"), "nopkg.inner")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestLoad_IsCachedUntilChanged(t *testing.T) {
	c := newTestCore(t, map[string]string{"a.py": "x = 1\n"})
	res := resourceAt(t, c, "a.py")

	first, err := c.Load(res)
	require.NoError(t, err)
	second, err := c.Load(res)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.True(t, c.IsCached(res))

	require.NoError(t, res.Write("x = 2\n"))
	assert.False(t, c.IsCached(res))

	third, err := c.Load(res)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestLoad_SyntaxErrorIsReturned(t *testing.T) {
	c := newTestCore(t, map[string]string{"bad.py": "def f(:\n"})
	_, err := c.Load(resourceAt(t, c, "bad.py"))
	require.Error(t, err)
	assert.False(t, c.IsCached(resourceAt(t, c, "bad.py")))
}

func TestInvalidate_PropagatesToDependants(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"util.py":  "def helper():\n    return 1\n",
		"main.py":  "import util\nvalue = util.helper\n",
		"other.py": "from main import value\n",
	})
	other := moduleAt(t, c, "other.py")
	b, ok := other.Scope().Lookup("value")
	require.True(t, ok)
	assert.Equal(t, model.KindFunction, b.Object().Kind())

	util := resourceAt(t, c, "util.py")
	main := resourceAt(t, c, "main.py")
	assert.Equal(t, []string{main.Path()}, c.Dependants(util))
	assert.Equal(t, []string{resourceAt(t, c, "other.py").Path()}, c.Dependants(main))

	require.NoError(t, util.Write("def helper():\n    return 2\n"))

	assert.False(t, c.IsCached(util))
	assert.False(t, c.IsCached(main))
	assert.False(t, c.IsCached(resourceAt(t, c, "other.py")))
}

func TestInvalidate_ImportCycleTerminates(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"a.py": "import b\nx = b\n",
		"b.py": "import a\ny = a\n",
	})
	a := moduleAt(t, c, "a.py")
	b, _ := a.Scope().Lookup("b")
	bm, ok := b.Object().(*model.Module)
	require.True(t, ok)
	back, _ := bm.Scope().Lookup("a")
	assert.Same(t, a, back.Object())

	c.Invalidate(resourceAt(t, c, "a.py"))
	assert.False(t, c.IsCached(resourceAt(t, c, "a.py")))
	assert.False(t, c.IsCached(resourceAt(t, c, "b.py")))
}

func TestImport_PackagesAndRelativeImports(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"pkg/__init__.py":     "from .shapes import Square\n",
		"pkg/shapes.py":       "class Square:\n    pass\n",
		"pkg/sub/__init__.py": "",
		"pkg/sub/deep.py":     "from ..shapes import Square\nfrom .. import shapes\n",
		"main.py":             "import pkg.sub.deep\nfrom pkg import Square\n",
	})
	main := moduleAt(t, c, "main.py")

	sq, ok := main.Scope().Lookup("Square")
	require.True(t, ok)
	class, ok := sq.Object().(*model.Class)
	require.True(t, ok)
	assert.Equal(t, "Square", class.Name())

	pkg, _ := main.Scope().Lookup("pkg")
	p, ok := pkg.Object().(*model.Package)
	require.True(t, ok)
	assert.Contains(t, model.AttributeNames(p), "shapes")
	assert.Contains(t, model.AttributeNames(p), "sub")

	deep := moduleAt(t, c, "pkg/sub/deep.py")
	rel, _ := deep.Scope().Lookup("Square")
	assert.Same(t, class, rel.Object())
	shapes, _ := deep.Scope().Lookup("shapes")
	assert.Equal(t, "shapes", model.NameOf(shapes.Object()))

	// main imported through every package on the path.
	assert.Contains(t, c.Dependants(resourceAt(t, c, "pkg/sub")), main.Path())

	require.NoError(t, resourceAt(t, c, "pkg/shapes.py").Write("class Square:\n    side = 1\n"))
	assert.False(t, c.IsCached(resourceAt(t, c, "pkg")))
	assert.False(t, c.IsCached(resourceAt(t, c, "main.py")))
}

func TestModuleForSource_ResolvesImportsFromPath(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"app/helpers.py": "def assist():\n    pass\n",
	})
	m, err := c.ModuleForSource("from helpers import assist\n", "app/editing.py")
	require.NoError(t, err)
	b, ok := m.Scope().Lookup("assist")
	require.True(t, ok)
	assert.Equal(t, model.KindFunction, b.Object().Kind())
	assert.Empty(t, c.Dependants(resourceAt(t, c, "app/helpers.py")))
}

func TestSubclasses_DirectSubclassesOnly(t *testing.T) {
	c := newTestCore(t, map[string]string{
		"base.py":  "class C:\n    pass\n",
		"kids.py":  "from base import C\n\nclass D(C):\n    pass\n\nclass E:\n    pass\n",
		"grand.py": "from kids import D\nclass F(D):\n    pass\n",
		"text.py":  "doc = 'class C in a string is not a header'\n",
	})
	base := moduleAt(t, c, "base.py")
	cb, _ := base.Scope().Lookup("C")
	class := cb.Object().(*model.Class)

	subs, err := c.Subclasses(class)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "D", subs[0].Name())
	assert.Equal(t, 3, subs[0].Line())
}

func TestHeaderLines(t *testing.T) {
	src := "import x\nclass A:\n    class Inner(A):\n        pass\nclassy = 1\n"
	assert.Equal(t, []int{2, 3}, headerLines(src))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

const oracleSource = "class Box:\n    pass\n\ndef make(size):\n    return build(size)\n"

func TestOracle_FillsUnknownReturnAndArguments(t *testing.T) {
	c := newTestCore(t, map[string]string{"shop.py": oracleSource})
	path := resourceAt(t, c, "shop.py").Path()
	st := newTestStore(t)
	require.NoError(t, st.SetSourceHash(path, store.ContentHash(oracleSource)))
	require.NoError(t, st.PutCall(&store.CallRecord{
		Path:   path,
		Line:   4,
		Args:   []store.Descriptor{{Kind: store.DescriptorBuiltin, Builtin: "int"}},
		Return: store.Descriptor{Kind: store.DescriptorInstance, Path: path, Line: 1},
	}))
	c.SetOracle(NewOracle(c, st))

	m := moduleAt(t, c, "shop.py")
	fb, _ := m.Scope().Lookup("make")
	fn := fb.Object().(*model.Function)

	inst, ok := fn.ReturnObject().(*model.Instance)
	require.True(t, ok)
	assert.Equal(t, "Box", inst.Class().Name())

	size, _ := fn.Scope().Lookup("size")
	arg, ok := size.Object().(*model.Instance)
	require.True(t, ok)
	assert.Equal(t, "int", arg.Class().Name())
}

func TestOracle_IgnoresStaleRecords(t *testing.T) {
	c := newTestCore(t, map[string]string{"shop.py": oracleSource})
	path := resourceAt(t, c, "shop.py").Path()
	st := newTestStore(t)
	require.NoError(t, st.SetSourceHash(path, store.ContentHash("older content")))
	require.NoError(t, st.PutCall(&store.CallRecord{
		Path:   path,
		Line:   4,
		Return: store.Descriptor{Kind: store.DescriptorInstance, Path: path, Line: 1},
	}))
	c.SetOracle(NewOracle(c, st))

	m := moduleAt(t, c, "shop.py")
	fb, _ := m.Scope().Lookup("make")
	assert.True(t, model.IsUnknown(fb.Object().(*model.Function).ReturnObject()))
}

func TestDefinitionAt(t *testing.T) {
	c := newTestCore(t, map[string]string{"shop.py": oracleSource})
	path := resourceAt(t, c, "shop.py").Path()

	class, ok := c.DefinitionAt(path, 1).(*model.Class)
	require.True(t, ok)
	assert.Equal(t, "Box", class.Name())

	fn, ok := c.DefinitionAt(path, 4).(*model.Function)
	require.True(t, ok)
	assert.Equal(t, "make", fn.Name())

	assert.Nil(t, c.DefinitionAt(path, 5), "a body line is not a definition")
	assert.Nil(t, c.DefinitionAt(filepath.Join(t.TempDir(), "missing.py"), 1))
}

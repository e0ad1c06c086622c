package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/pysem/internal/resource"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{Registry: NewRegistry()}
}

func newTestModule(t *testing.T, env *Env, src string) *Module {
	t.Helper()
	m, err := NewModule(context.Background(), env, nil, src)
	require.NoError(t, err)
	return m
}

func lookupObject(t *testing.T, s *Scope, name string) Object {
	t.Helper()
	b, ok := s.Lookup(name)
	require.True(t, ok, "name %q not bound", name)
	return b.Object()
}

// fakeLoader serves modules by dotted name.
type fakeLoader struct {
	modules map[string]Object
	calls   []string
}

func (l *fakeLoader) Import(from *Module, name string, level int) (Object, error) {
	l.calls = append(l.calls, name)
	if obj, ok := l.modules[name]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("no module %s", name)
}

func (l *fakeLoader) Load(res resource.Resource) (Object, error) {
	return nil, errors.New("not supported")
}

func TestRegistry_BaseKindsAreFixedPoints(t *testing.T) {
	r := NewRegistry()
	for _, base := range []Object{r.Type(), r.Module(), r.Function(), r.Unknown()} {
		assert.Same(t, base, base.Type())
	}
	assert.NotSame(t, r.Type(), r.Module())

	env := &Env{Registry: r}
	m := newTestModule(t, env, "class A:\n    pass\ndef f():\n    pass\n")
	assert.Same(t, r.Module(), m.Type())
	assert.Same(t, r.Type(), lookupObject(t, m.Scope(), "A").Type())
	assert.Same(t, r.Function(), lookupObject(t, m.Scope(), "f").Type())

	other := NewRegistry()
	assert.NotSame(t, r.BuiltinClass("list"), other.BuiltinClass("list"))
}

func TestScope_LookupDistinguishesMissingFromUnknown(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "x = undefined_call()\n")

	b, ok := m.Scope().Lookup("x")
	require.True(t, ok)
	assert.True(t, IsUnknown(b.Object()))

	_, ok = m.Scope().Lookup("missing")
	assert.False(t, ok)

	_, ok = m.Scope().Lookup("len")
	assert.True(t, ok, "builtins are reachable from module scope")
}

func TestEvaluate_MemoizedPerNode(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "class A:\n    pass\nx = A()\n")
	s := m.Scope()

	x, ok := s.Lookup("x")
	require.True(t, ok)
	node := x.Assignments()[0].Node

	first := s.Evaluate(node)
	require.NotNil(t, first)
	assert.Same(t, first, s.Evaluate(node))

	inst, ok := first.Object().(*Instance)
	require.True(t, ok)
	assert.Equal(t, "A", inst.Class().Name())

	assert.Same(t, s.EvaluateString("A"), s.EvaluateString("A"))
	assert.Nil(t, s.EvaluateString("A +"), "unparsable expressions resolve to nothing")
}

func TestEvaluate_UnsupportedKindsAreUnresolved(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "a = [1]\n")
	s := m.Scope()
	for _, expr := range []string{"a + a", "a[0]", "[i for i in a]", "a if a else a", "lambda: a", "a == a", "None"} {
		assert.Nil(t, s.EvaluateString(expr), expr)
	}
}

func TestFunction_SelfRecursiveReturnIsUnknown(t *testing.T) {
	env := newTestEnv(t)
	circular := 0
	env.Registry.OnCircularInference(func() { circular++ })
	m := newTestModule(t, env, "def f():\n    return f()\nx = f()\n")

	fn, ok := lookupObject(t, m.Scope(), "f").(*Function)
	require.True(t, ok)
	assert.True(t, IsUnknown(fn.ReturnObject()))
	assert.True(t, IsUnknown(lookupObject(t, m.Scope(), "x")))
	assert.Positive(t, circular)
	assert.NotEqual(t, Resolving, fn.returnStatus, "marker is cleared after failure")
}

func TestBinding_ResolvingIsCircularError(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "a = b\nb = a\n")
	a, _ := m.Scope().Lookup("a")
	b, _ := m.Scope().Lookup("b")

	assert.True(t, IsUnknown(a.Object()))
	assert.Equal(t, Failed, a.Status())

	b.status = Resolving
	_, err := b.resolve()
	assert.ErrorIs(t, err, ErrCircularInference)
	b.status = Unresolved
	assert.True(t, IsUnknown(b.Object()))
	assert.NotEqual(t, Resolving, b.Status())
}

func TestLiteral_ListHasAppend(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "l = []\nd = {}\ns = 'x'.upper()\n")

	l := lookupObject(t, m.Scope(), "l")
	assert.Contains(t, AttributeNames(l), "append")
	assert.Equal(t, "instance of list", DescribeObject(l))

	assert.Contains(t, AttributeNames(lookupObject(t, m.Scope(), "d")), "keys")
	assert.Equal(t, "instance of str", DescribeObject(lookupObject(t, m.Scope(), "s")))
}

func TestLiteral_NumbersAndBooleans(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "n = 0\nf = 1.5\nb = True\nnothing = None\n")

	n := lookupObject(t, m.Scope(), "n")
	assert.Equal(t, "instance of int", DescribeObject(n))
	assert.Contains(t, AttributeNames(n), "bit_length")
	assert.Equal(t, "instance of float", DescribeObject(lookupObject(t, m.Scope(), "f")))
	assert.Equal(t, "instance of bool", DescribeObject(lookupObject(t, m.Scope(), "b")))
	assert.True(t, IsUnknown(lookupObject(t, m.Scope(), "nothing")))
}

func TestClass_AttributesAndSelf(t *testing.T) {
	src := `class Base(object):
    def shared(self):
        return self

class Child(Base):
    def __init__(self, size=[]):
        self.items = []
        self.size = size

    def own(self):
        pass
`
	m := newTestModule(t, newTestEnv(t), src)
	child, ok := lookupObject(t, m.Scope(), "Child").(*Class)
	require.True(t, ok)
	base := lookupObject(t, m.Scope(), "Base").(*Class)

	names := AttributeNames(child)
	for _, want := range []string{"shared", "own", "__init__", "items", "size"} {
		assert.Contains(t, names, want)
	}
	assert.Contains(t, AttributeNames(Attribute(child, "items").Object()), "append")
	assert.Contains(t, AttributeNames(Attribute(child, "size").Object()), "append", "default value types the parameter")

	require.Len(t, child.Superclasses(), 1)
	assert.True(t, child.IsSubclassOf(base))
	assert.False(t, base.IsSubclassOf(child))

	shared := Attribute(base, "shared").Object().(*Function)
	self, ok := shared.Scope().Lookup("self")
	require.True(t, ok)
	inst, ok := self.Object().(*Instance)
	require.True(t, ok)
	assert.Same(t, base, inst.Class())
	assert.Same(t, inst, shared.ReturnObject())
}

func TestClass_DecoratedMethodReceiverIsUnknown(t *testing.T) {
	src := "class A:\n    @classmethod\n    def make(cls):\n        pass\n"
	m := newTestModule(t, newTestEnv(t), src)
	a := lookupObject(t, m.Scope(), "A")
	fn := Attribute(a, "make").Object().(*Function)
	assert.True(t, fn.Decorated())
	assert.True(t, fn.IsMethod())
	assert.True(t, IsUnknown(lookupObject(t, fn.Scope(), "cls")))
}

func TestClass_MutualInheritanceTerminates(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "class A(B):\n    x = 1\nclass B(A):\n    y = 1\n")
	a := lookupObject(t, m.Scope(), "A")
	assert.Contains(t, AttributeNames(a), "x")
}

func TestEvaluate_CallThroughDunderCall(t *testing.T) {
	src := "class C:\n    def __call__(self):\n        return []\nc = C()\nr = c()\n"
	m := newTestModule(t, newTestEnv(t), src)
	assert.Equal(t, "instance of list", DescribeObject(lookupObject(t, m.Scope(), "r")))
}

func TestInnerScopeForLine(t *testing.T) {
	src := "x = 1\n" + // 1
		"class A:\n" + // 2
		"    def m(self):\n" + // 3
		"        y = 2\n" + // 4
		"\n" + // 5
		"        return y\n" + // 6
		"    z = 3\n" + // 7
		"def g():\n" + // 8
		"    pass\n" + // 9
		"w = 1\n" // 10
	m := newTestModule(t, newTestEnv(t), src)
	s := m.Scope()

	tests := []struct {
		line int
		want string
	}{
		{1, ""}, {2, "A"}, {3, "m"}, {4, "m"}, {5, "m"}, {6, "m"},
		{7, "A"}, {8, "g"}, {9, "g"}, {10, ""},
	}
	for _, tt := range tests {
		got := s.InnerScopeForLine(tt.line)
		assert.Equal(t, tt.want, got.Name(), "line %d", tt.line)
		for _, child := range got.Children() {
			assert.False(t, child.start <= tt.line && child.containsLine(tt.line), "line %d also in child %s", tt.line, child.Name())
		}
	}
}

func TestInnerScopeForLine_BlankLinesAfterBody(t *testing.T) {
	src := "class Base:\n" + // 1
		"    pass\n" + // 2
		"\n" + // 3
		"class Child(Base):\n" + // 4
		"    def run(self):\n" + // 5
		"        pass\n" + // 6
		"\n" + // 7
		"    # note\n" + // 8
		"    x = 1\n" + // 9
		"def tail():\n" + // 10
		"    pass\n" + // 11
		"        " // 12
	s := newTestModule(t, newTestEnv(t), src).Scope()

	assert.Equal(t, "", s.InnerScopeForLine(3).Name())
	assert.Equal(t, "Child", s.InnerScopeForLine(7).Name())
	assert.Equal(t, "Child", s.InnerScopeForLine(8).Name())
	assert.Equal(t, "tail", s.InnerScopeForLine(12).Name())

	m := newTestModule(t, newTestEnv(t), "def f():\n    pass\n\n")
	assert.Equal(t, "", m.Scope().InnerScopeForLine(3).Name())
}

func TestScope_NestedDefinitionsInCompoundStatements(t *testing.T) {
	src := "if True:\n    def a():\n        pass\nelse:\n    class B:\n        pass\ntry:\n    import nothing\nexcept ImportError as exc:\n    pass\nfor i, j in []:\n    pass\nwith open('f') as fh:\n    pass\n"
	m := newTestModule(t, newTestEnv(t), src)
	s := m.Scope()

	require.Len(t, s.Children(), 2)
	assert.Equal(t, "a", s.Children()[0].Name())
	assert.Equal(t, "B", s.Children()[1].Name())
	for _, name := range []string{"nothing", "exc", "i", "j", "fh"} {
		assert.True(t, IsUnknown(lookupObject(t, s, name)), name)
	}
}

func TestScope_ClassNamesHiddenFromMethods(t *testing.T) {
	src := "value = []\nclass A:\n    value = 'x'\n    def m(self):\n        return value\n"
	m := newTestModule(t, newTestEnv(t), src)
	fn := Attribute(lookupObject(t, m.Scope(), "A"), "m").Object().(*Function)
	assert.Equal(t, "instance of list", DescribeObject(fn.ReturnObject()))
}

func TestImports_ThroughLoader(t *testing.T) {
	env := newTestEnv(t)
	lib := newTestModule(t, env, "def helper():\n    return []\n")
	loader := &fakeLoader{modules: map[string]Object{"lib": lib}}
	env.Loader = loader

	m := newTestModule(t, env, "import lib\nfrom lib import helper as h\nfrom missing import gone\nimport absent\nout = h()\n")
	s := m.Scope()

	assert.Same(t, lib, lookupObject(t, s, "lib"))
	h, _ := s.Lookup("h")
	assert.False(t, h.DefinedHere())
	assert.Same(t, Attribute(lib, "helper").Object(), h.Object())

	mod, line := h.Location()
	assert.Same(t, lib, mod)
	assert.Equal(t, 1, line)
	assert.True(t, Equivalent(h, Attribute(lib, "helper")))

	assert.True(t, IsUnknown(lookupObject(t, s, "gone")))
	assert.True(t, IsUnknown(lookupObject(t, s, "absent")))
	assert.Equal(t, "instance of list", DescribeObject(lookupObject(t, s, "out")))
}

func TestImports_StarImportsPublicNames(t *testing.T) {
	env := newTestEnv(t)
	lib := newTestModule(t, env, "def public():\n    pass\ndef _private():\n    pass\n")
	env.Loader = &fakeLoader{modules: map[string]Object{"lib": lib}}

	m := newTestModule(t, env, "from lib import *\n")
	_, ok := m.Scope().Lookup("public")
	assert.True(t, ok)
	_, ok = m.Scope().Lookup("_private")
	assert.False(t, ok)
}

func TestEquivalent_ShadowedNamesDiffer(t *testing.T) {
	m := newTestModule(t, newTestEnv(t), "a = 1\ndef f():\n    a = 2\n    return a\nb = a\n")
	s := m.Scope()
	global, _ := s.Lookup("a")
	fn := lookupObject(t, s, "f").(*Function)
	local, _ := fn.Scope().Lookup("a")

	assert.False(t, Equivalent(global, local))
	assert.True(t, Equivalent(global, s.EvaluateString("a")))
	assert.True(t, Equivalent(local, fn.Scope().EvaluateString("a")))
}

type fixedOracle struct{ ret Object }

func (o fixedOracle) ReturnObject(fn *Function) Object              { return o.ret }
func (o fixedOracle) ArgumentObject(fn *Function, index int) Object { return o.ret }

func TestFunction_OracleFillsUnknowns(t *testing.T) {
	env := newTestEnv(t)
	env.Oracle = fixedOracle{ret: NewInstance(env.Registry.BuiltinClass("dict"))}
	m := newTestModule(t, env, "def f(arg):\n    return arg.missing\n")

	fn := lookupObject(t, m.Scope(), "f").(*Function)
	assert.Equal(t, "instance of dict", DescribeObject(fn.ReturnObject()))
	assert.Equal(t, "instance of dict", DescribeObject(lookupObject(t, fn.Scope(), "arg")))
}

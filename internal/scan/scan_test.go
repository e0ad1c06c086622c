package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines(t *testing.T) {
	l := NewLines("a = 1\n  b\n\nc")
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, "a = 1", l.Line(1))
	assert.Equal(t, "  b", l.Line(2))
	assert.Equal(t, "", l.Line(3))
	assert.Equal(t, "c", l.Line(4))
	assert.Equal(t, "", l.Line(9))

	assert.Equal(t, 6, l.LineStart(2))
	assert.Equal(t, 9, l.LineEnd(2))
	assert.Equal(t, 1, l.LineForOffset(0))
	assert.Equal(t, 1, l.LineForOffset(5))
	assert.Equal(t, 2, l.LineForOffset(6))
	assert.Equal(t, 4, l.LineForOffset(11))
	assert.Equal(t, 2, l.Indent(2))
	assert.Equal(t, 8, Indent("\tx"))
}

func TestWordFinder_WordBoundaries(t *testing.T) {
	src := "value = my_var.attr"
	w := NewWordFinder(src)
	off := strings.Index(src, "my_var") + 2
	assert.Equal(t, strings.Index(src, "my_var"), w.WordStart(off))
	assert.Equal(t, strings.Index(src, "."), w.WordEnd(off))
	assert.Equal(t, "my_var", w.WordAt(off))
	assert.Equal(t, "", w.WordAt(strings.Index(src, "=")))
}

func TestWordFinder_PrimaryAt(t *testing.T) {
	tests := []struct {
		name string
		src  string
		word string
		want string
	}{
		{"plain name", "x = name", "name", "name"},
		{"attribute chain", "x = self.items.append", "append", "self.items.append"},
		{"call in chain", "x = make(a, b).result", "result", "make(a, b).result"},
		{"subscript in chain", "x = table[key].value", "value", "table[key].value"},
		{"string atom", `x = "a.b".join`, "join", `"a.b".join`},
		{"spaces around dot", "x = obj . attr", "attr", "obj . attr"},
		{"head of chain", "x = obj.attr", "obj", "obj"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWordFinder(tt.src)
			off := strings.LastIndex(tt.src, tt.word)
			assert.Equal(t, tt.want, w.PrimaryAt(off))
		})
	}
}

func TestWordFinder_SplitStatementBefore(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		prefix      string
		partial     string
		partialFrom int
	}{
		{"partial attribute", "x = os.pa", "os", "pa", 7},
		{"dotted prefix", "a.b.c", "a.b", "c", 4},
		{"trailing dot", "a.b.", "a.b", "", 4},
		{"bare word", "  pri", "", "pri", 2},
		{"after operator", "x = ", "", "", 4},
		{"call result", "f(1).ke", "f(1)", "ke", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWordFinder(tt.src)
			prefix, partial, start := w.SplitStatementBefore(len(tt.src))
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.partial, partial)
			assert.Equal(t, tt.partialFrom, start)
		})
	}
}

func TestWordFinder_Classifiers(t *testing.T) {
	src := "def run(key=1):\n    run(key=2)\nclass Box: pass\n"
	w := NewWordFinder(src)

	assert.True(t, w.IsDefinitionName(strings.Index(src, "run")))
	assert.False(t, w.IsDefinitionName(strings.LastIndex(src, "run")))
	assert.True(t, w.IsDefinitionName(strings.Index(src, "Box")))

	assert.True(t, w.IsFunctionCall(strings.LastIndex(src, "run")))
	assert.True(t, w.IsKeywordArgument(strings.LastIndex(src, "key")))
	assert.False(t, w.IsKeywordArgument(strings.LastIndex(src, "run")))
}

func TestWordFinder_IsAssignedHere(t *testing.T) {
	tests := []struct {
		src  string
		word string
		want bool
	}{
		{"x, y = 1, 2\n", "x", true},
		{"x, y = 1, 2\n", "y", true},
		{"(a, b) = pair\n", "b", true},
		{"[a, *rest] = items\n", "rest", true},
		{"a = b = 1\n", "b", true},
		{"total += 1\n", "total", true},
		{"mask <<= 2\n", "mask", true},
		{"count: int = 0\n", "count", true},
		{"print(y)\n", "y", false},
		{"a[i] = 1\n", "i", false},
		{"a[i] = 1\n", "a", false},
		{"self.x = 1\n", "x", false},
		{"def f(a=1):\n", "a", false},
		{"f(key=1)\n", "key", false},
		{"x == 1\n", "x", false},
		{"for x in y:\n", "x", false},
		{"lambda x: x\n", "x", false},
		{"if ok:\n    pass\nelse:\n    pass\n", "else", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			w := NewWordFinder(tt.src)
			assert.Equal(t, tt.want, w.IsAssignedHere(strings.Index(tt.src, tt.word)))
		})
	}
}

func TestWordFinder_KeywordArgumentIsOnlyInCalls(t *testing.T) {
	src := "x, y = 1, 2\ndef f(a=1):\n    f(a=2)\n"
	w := NewWordFinder(src)

	assert.False(t, w.IsKeywordArgument(strings.Index(src, "y")))
	assert.False(t, w.IsKeywordArgument(strings.Index(src, "a=")))
	assert.True(t, w.IsKeywordArgument(strings.LastIndex(src, "a=")))
}

func TestWordFinder_IsFromStatementModule(t *testing.T) {
	src := "from os.path import join\nimport sys\n"
	w := NewWordFinder(src)

	assert.True(t, w.IsFromStatementModule(strings.Index(src, "path")))
	assert.True(t, w.IsFromStatementModule(strings.Index(src, "os")))
	assert.False(t, w.IsFromStatementModule(strings.Index(src, "join")))
	assert.False(t, w.IsFromStatementModule(strings.Index(src, "sys")))
}

func TestStatementRangeFinder_ContinuationAndBrackets(t *testing.T) {
	src := strings.Join([]string{
		"def f():",                  // 1
		"    total = first + \\",    // 2
		"        second + (third,",  // 3
		"                  fourth)", // 4
		"    other = 2",             // 5
		"",                          // 6
		"    last = 3",              // 7
		"after = 1",                 // 8
	}, "\n")
	lines := NewLines(src)

	f := NewStatementRangeFinder(lines, 4)
	f.Analyze()
	assert.Equal(t, 2, f.StatementStart())
	assert.Equal(t, 7, f.BlockEnd())
	assert.False(t, f.InsideBrackets())

	f = NewStatementRangeFinder(lines, 3)
	f.Analyze()
	assert.Equal(t, 2, f.StatementStart())
	assert.True(t, f.InsideBrackets())
}

func TestStatementRangeFinder_StringsAndComments(t *testing.T) {
	src := strings.Join([]string{
		`x = call("(", '\'(',`, // 1
		`         """ ( """, # (`, // 2
		`         y)`, // 3
		`z = 1`, // 4
	}, "\n")
	lines := NewLines(src)

	f := NewStatementRangeFinder(lines, 3)
	f.Analyze()
	assert.Equal(t, 1, f.StatementStart())
	assert.False(t, f.InsideBrackets())

	f = NewStatementRangeFinder(lines, 4)
	f.Analyze()
	assert.Equal(t, 4, f.StatementStart())
}

func TestStatementRangeFinder_TripleQuotedSpan(t *testing.T) {
	src := "doc = \"\"\"first\nsecond\n\"\"\"\nnext = 1\n"
	lines := NewLines(src)
	f := NewStatementRangeFinder(lines, 3)
	f.Analyze()
	assert.Equal(t, 1, f.StatementStart())

	f = NewStatementRangeFinder(lines, 4)
	f.Analyze()
	assert.Equal(t, 4, f.StatementStart())
}

func TestBlockStart_SkipsComprehensionIf(t *testing.T) {
	src := strings.Join([]string{
		"def f(items):",   // 1
		"    return [i",   // 2
		"    for i in items", // 3
		"    if i]",        // 4
	}, "\n")
	lines := NewLines(src)
	assert.Equal(t, 1, BlockStart(lines, 4))
}

func TestImportStatementHelpers(t *testing.T) {
	src := "import os\nfrom pkg.mod import (name,\n    other)\nx = 1\n"
	lines := NewLines(src)

	assert.True(t, IsImportStatement(lines, strings.Index(src, "os")))
	assert.True(t, IsImportStatement(lines, strings.Index(src, "other")))
	assert.False(t, IsImportStatement(lines, strings.Index(src, "x =")))

	module, inModule, ok := FromStatementAt(lines, strings.Index(src, "mod"))
	require.True(t, ok)
	assert.Equal(t, "pkg.mod", module)
	assert.True(t, inModule)

	module, inModule, ok = FromStatementAt(lines, strings.Index(src, "other"))
	require.True(t, ok)
	assert.Equal(t, "pkg.mod", module)
	assert.False(t, inModule)

	_, _, ok = FromStatementAt(lines, strings.Index(src, "os"))
	assert.False(t, ok)
}

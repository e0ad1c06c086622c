// Package occurrences finds the places in python source that refer to a
// binding. Candidates are found by text and confirmed by resolving each
// one through the scope tree.
package occurrences

import (
	"strings"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/scan"
)

// BindingAt resolves the identifier at offset of m. It returns nil when
// offset is not on an identifier or the name resolves to nothing.
func BindingAt(m *model.Module, offset int) *model.Binding {
	src := m.Source()
	lines := m.Lines()
	wf := scan.WordFinderFor(lines)
	word := wf.WordAt(offset)
	if word == "" || wf.IsKeywordArgument(offset) {
		return nil
	}
	line := lines.LineForOffset(offset)
	scope := m.Scope().InnerScopeForLine(line)

	if wf.IsDefinitionName(offset) {
		if scope.Start() != line || scope.Parent() == nil || scope.Kind() == model.ScopeGlobal {
			return nil
		}
		return scope.Parent().Names()[word]
	}
	if wf.IsFromStatementModule(offset) {
		start, end := wf.PrimaryRange(offset)
		return moduleBinding(m, src[start:end], dotsBefore(src, start))
	}
	if module, _, ok := scan.FromStatementAt(lines, offset); ok {
		return fromImportBinding(m, scope, wf, offset, module)
	}
	if scan.IsImportStatement(lines, offset) {
		if followsAs(src, wf.WordStart(offset)) {
			b, _ := scope.Lookup(word)
			return b
		}
		return moduleBinding(m, wf.PrimaryAt(offset), 0)
	}
	if wf.IsAssignedHere(offset) {
		b, _ := scope.Lookup(word)
		return b
	}
	return scope.EvaluateString(wf.PrimaryAt(offset))
}

func fromImportBinding(m *model.Module, scope *model.Scope, wf *scan.WordFinder, offset int, module string) *model.Binding {
	word := wf.WordAt(offset)
	if followsAs(m.Source(), wf.WordStart(offset)) {
		b, _ := scope.Lookup(word)
		return b
	}
	trimmed := strings.TrimLeft(module, ".")
	level := len(module) - len(trimmed)
	obj := importObject(m, trimmed, level)
	if obj == nil {
		return nil
	}
	return model.Attribute(obj, word)
}

// moduleBinding stands for a module named in an import statement. Import
// bindings elsewhere locate modules at their first line, so this one does
// too.
func moduleBinding(m *model.Module, dotted string, level int) *model.Binding {
	obj := importObject(m, dotted, level)
	if obj == nil {
		return nil
	}
	return model.NewBinding(obj, model.ModuleOf(obj), 1, true)
}

func importObject(m *model.Module, dotted string, level int) model.Object {
	loader := m.Env().Loader
	if loader == nil {
		return nil
	}
	obj, err := loader.Import(m, dotted, level)
	if err != nil {
		return nil
	}
	return obj
}

func followsAs(src string, start int) bool {
	lineStart := strings.LastIndexByte(src[:start], '\n') + 1
	before := strings.Fields(src[lineStart:start])
	return len(before) > 0 && before[len(before)-1] == "as"
}

func dotsBefore(src string, start int) int {
	n := 0
	for i := start - 1; i >= 0 && src[i] == '.'; i-- {
		n++
	}
	return n
}

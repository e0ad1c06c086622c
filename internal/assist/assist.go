// Package assist computes completion proposals for a cursor in editor text.
package assist

import (
	"errors"
	"sort"
	"strings"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/pyast"
	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/scan"
)

// Where a proposed name is bound, innermost first.
const (
	ScopeLocal     = "local"
	ScopeGlobal    = "global"
	ScopeBuiltin   = "builtin"
	ScopeAttribute = "attribute"
)

var scopeRank = map[string]int{
	ScopeLocal:     0,
	ScopeAttribute: 0,
	ScopeGlobal:    1,
	ScopeBuiltin:   2,
}

// Proposal is one completion candidate.
type Proposal struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Scope string `json:"scope"`
}

// Complete returns the names that can finish the word before offset in
// src. After a dot the attributes of the evaluated prefix are proposed,
// otherwise every name visible from the cursor's scope. path places the
// buffer in the project for imports and may be empty.
//
// Text that does not parse is retried with the cursor's line replaced by
// "pass" at the same indentation. Names starting with an underscore are
// only proposed once the typed word does.
func Complete(core *pycore.Core, src string, offset int, path string) ([]Proposal, error) {
	offset = max(0, min(offset, len(src)))
	m, err := parseTolerant(core, src, offset, path)
	if err != nil {
		return nil, err
	}

	lines := scan.NewLines(src)
	scope := m.Scope().InnerScopeForLine(lines.LineForOffset(offset))
	prefix, partial, _ := scan.NewWordFinder(src).SplitStatementBefore(offset)

	var out []Proposal
	add := func(name string, b *model.Binding, where string) {
		if !strings.HasPrefix(name, partial) {
			return
		}
		if strings.HasPrefix(name, "_") && !strings.HasPrefix(partial, "_") {
			return
		}
		out = append(out, Proposal{Name: name, Kind: b.Object().Kind().String(), Scope: where})
	}

	if prefix != "" {
		b := scope.EvaluateString(prefix)
		if b == nil {
			return nil, nil
		}
		obj := b.Object()
		attrs := obj.Attributes()
		for _, name := range model.AttributeNames(obj) {
			add(name, attrs[name], ScopeAttribute)
		}
		return out, nil
	}

	local := scope.Names()
	global := m.Scope().Names()
	for name, b := range scope.VisibleNames() {
		switch {
		case local[name] == b && scope != m.Scope():
			add(name, b, ScopeLocal)
		case global[name] == b:
			add(name, b, ScopeGlobal)
		default:
			add(name, b, ScopeBuiltin)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := scopeRank[out[i].Scope], scopeRank[out[j].Scope]
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func parseTolerant(core *pycore.Core, src string, offset int, path string) (*model.Module, error) {
	m, err := core.ModuleForSource(src, path)
	var perr *pyast.ParseError
	if err == nil || !errors.As(err, &perr) {
		return m, err
	}
	lines := scan.NewLines(src)
	n := lines.LineForOffset(offset)
	line := lines.Line(n)
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	patched := src[:lines.LineStart(n)] + indent + "pass" + src[lines.LineEnd(n):]
	return core.ModuleForSource(patched, path)
}

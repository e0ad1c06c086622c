package model

import (
	"math"
	"sort"

	"github.com/jward/pysem/internal/pyast"
	"github.com/jward/pysem/internal/scan"
)

// ScopeKind identifies what a scope belongs to.
type ScopeKind uint8

const (
	ScopeBuiltin ScopeKind = iota
	ScopeGlobal
	ScopeClass
	ScopeFunction
)

var scopeKindNames = [...]string{
	ScopeBuiltin:  "builtin",
	ScopeGlobal:   "global",
	ScopeClass:    "class",
	ScopeFunction: "function",
}

func (k ScopeKind) String() string {
	if int(k) < len(scopeKindNames) {
		return scopeKindNames[k]
	}
	return "invalid"
}

// Scope is one level of lexical nesting. Module, class and function objects
// each own exactly one scope.
type Scope struct {
	kind   ScopeKind
	module *Module
	owner  Object
	parent *Scope
	node   *pyast.Node
	start  int
	end    int

	built    bool
	names    map[string]*Binding
	children []*Scope

	memo  map[pyast.NodeKey]*Binding
	exprs map[string]*Binding
}

func (s *Scope) Kind() ScopeKind { return s.kind }

// Owner returns the module, class or function the scope belongs to.
func (s *Scope) Owner() Object { return s.owner }

// Parent returns the enclosing scope; the builtin scope has none.
func (s *Scope) Parent() *Scope { return s.parent }

// Module returns the module holding the scope, nil for the builtin scope.
func (s *Scope) Module() *Module { return s.module }

// Start returns the first line of the scope's definition.
func (s *Scope) Start() int { return s.start }

// End returns the last line of the scope's definition.
func (s *Scope) End() int { return s.end }

// Name returns the owner's name.
func (s *Scope) Name() string {
	if s.kind == ScopeBuiltin {
		return "__builtins__"
	}
	return NameOf(s.owner)
}

// Names returns the names bound directly in this scope.
func (s *Scope) Names() map[string]*Binding {
	s.ensure()
	return s.names
}

// SortedNames returns the names bound directly in this scope in order.
func (s *Scope) SortedNames() []string {
	names := make([]string, 0, len(s.Names()))
	for name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Children returns the scopes of classes and functions defined in this
// scope, ordered by start line.
func (s *Scope) Children() []*Scope {
	s.ensure()
	return s.children
}

func (s *Scope) ensure() {
	if s.built {
		return
	}
	s.built = true
	s.names = make(map[string]*Binding)
	v := &visitor{scope: s, module: s.module, reg: s.module.env.Registry, src: s.module.tree.Source()}
	switch s.kind {
	case ScopeGlobal:
		v.visitBlock(s.node)
	case ScopeClass:
		v.visitBlock(pyast.Field(s.node, "body"))
	case ScopeFunction:
		v.visitParameters(s.owner.(*Function))
		v.visitBlock(pyast.Field(s.node, "body"))
	default:
	}
	sort.SliceStable(s.children, func(i, j int) bool { return s.children[i].start < s.children[j].start })
}

// Lookup finds name in this scope or the enclosing ones. Class scopes are
// only searched when the lookup starts in them. ok is false when no scope
// binds the name, which differs from a binding whose object is Unknown.
func (s *Scope) Lookup(name string) (*Binding, bool) {
	if b, ok := s.Names()[name]; ok {
		return b, true
	}
	for p := s.parent; p != nil; p = p.parent {
		if p.kind == ScopeClass {
			continue
		}
		if b, ok := p.Names()[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// VisibleNames returns every name Lookup would find from this scope.
func (s *Scope) VisibleNames() map[string]*Binding {
	chain := []*Scope{s}
	for p := s.parent; p != nil; p = p.parent {
		if p.kind != ScopeClass {
			chain = append(chain, p)
		}
	}
	visible := make(map[string]*Binding)
	for i := len(chain) - 1; i >= 0; i-- {
		for name, b := range chain[i].Names() {
			visible[name] = b
		}
	}
	return visible
}

// InnerScopeForLine returns the innermost scope containing line. A child
// contains the line when it is the child's header line, or when every
// non-blank line from the header down to it is indented deeper than the
// header. This keeps working while the code below the cursor is still
// half typed. A blank or comment line past the end of the child belongs to
// it only when the next code line, or its own indentation at the end of
// the file, is deeper than the header.
func (s *Scope) InnerScopeForLine(line int) *Scope {
	current := s
	for {
		var next *Scope
		for _, child := range current.Children() {
			if child.start > line {
				break
			}
			if child.containsLine(line) {
				next = child
			}
		}
		if next == nil {
			return current
		}
		current = next
	}
}

func (s *Scope) containsLine(line int) bool {
	if line == s.start {
		return true
	}
	lines := s.module.lines
	header := lines.Indent(s.start)
	last := line
	if line > s.end && line <= lines.Len() && scan.IsBlankOrComment(lines.Line(line)) {
		next := line + 1
		for next <= lines.Len() && scan.IsBlankOrComment(lines.Line(next)) {
			next++
		}
		if next > lines.Len() {
			if lines.Indent(line) <= header {
				return false
			}
		} else {
			last = next
		}
	}
	minIndent := math.MaxInt
	for l := s.start + 1; l <= last && l <= lines.Len(); l++ {
		text := lines.Line(l)
		if scan.IsBlankOrComment(text) {
			continue
		}
		minIndent = min(minIndent, scan.Indent(text))
	}
	return minIndent > header
}

// Evaluate resolves an expression node of this scope's module. The result
// is memoized per node, so repeated calls return the identical binding. nil
// means the expression cannot be resolved.
func (s *Scope) Evaluate(n *pyast.Node) *Binding {
	b, err := s.eval(n)
	if err != nil {
		return nil
	}
	return b
}

// EvaluateObject is Evaluate returning the bound object, Unknown if none.
func (s *Scope) EvaluateObject(n *pyast.Node) Object {
	obj, err := s.evalObject(n)
	if err != nil || obj == nil {
		return s.module.env.Registry.unknown
	}
	return obj
}

func (s *Scope) evaluator() *evaluator {
	if s.memo == nil {
		s.memo = make(map[pyast.NodeKey]*Binding)
	}
	return &evaluator{scope: s, src: s.module.tree.Source(), memo: s.memo}
}

func (s *Scope) eval(n *pyast.Node) (*Binding, error) {
	return s.evaluator().eval(n)
}

func (s *Scope) evalObject(n *pyast.Node) (Object, error) {
	b, err := s.eval(n)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return s.module.env.Registry.unknown, nil
	}
	return b.resolve()
}

package model

import (
	"context"

	"github.com/jward/pysem/internal/pyast"
)

// evaluator resolves expressions to bindings. It is deliberately narrow:
// names, attribute access, calls and literal displays resolve; every other
// expression kind is unresolved.
type evaluator struct {
	scope *Scope
	src   []byte
	memo  map[pyast.NodeKey]*Binding
}

func (e *evaluator) eval(n *pyast.Node) (*Binding, error) {
	if n == nil {
		return nil, nil
	}
	key := pyast.KeyOf(n)
	if b, ok := e.memo[key]; ok {
		return b, nil
	}
	b, err := e.evalNode(n)
	if err != nil {
		return nil, err
	}
	e.memo[key] = b
	return b, nil
}

func (e *evaluator) evalNode(n *pyast.Node) (*Binding, error) {
	reg := e.scope.module.env.Registry
	switch pyast.KindOf(n) {
	case pyast.KindName:
		b, _ := e.scope.Lookup(n.Content(e.src))
		return b, nil
	case pyast.KindAttribute:
		return e.attribute(n)
	case pyast.KindCall:
		return e.call(n)
	case pyast.KindString:
		return e.literal(n, reg.instanceOf("str")), nil
	case pyast.KindList:
		return e.literal(n, reg.instanceOf("list")), nil
	case pyast.KindTuple:
		return e.literal(n, reg.instanceOf("tuple")), nil
	case pyast.KindDict:
		return e.literal(n, reg.instanceOf("dict")), nil
	case pyast.KindSet:
		return e.literal(n, reg.instanceOf("set")), nil
	case pyast.KindParenthesized:
		for _, inner := range pyast.NamedChildren(n) {
			if pyast.KindOf(inner) != pyast.KindComment {
				return e.eval(inner)
			}
		}
		return nil, nil
	case pyast.KindNumber:
		if n.Type() == "float" {
			return e.literal(n, reg.instanceOf("float")), nil
		}
		return e.literal(n, reg.instanceOf("int")), nil
	case pyast.KindConstant:
		if t := n.Type(); t == "true" || t == "false" {
			return e.literal(n, reg.instanceOf("bool")), nil
		}
		return nil, nil
	case pyast.KindComprehension, pyast.KindOperator,
		pyast.KindComparison, pyast.KindSubscript, pyast.KindLambda, pyast.KindConditional,
		pyast.KindAwait:
		return nil, nil
	default:
		return nil, nil
	}
}

func (e *evaluator) literal(n *pyast.Node, obj Object) *Binding {
	return NewBinding(obj, e.scope.module, pyast.Line(n), false)
}

func (e *evaluator) attribute(n *pyast.Node) (*Binding, error) {
	base, err := e.eval(pyast.Field(n, "object"))
	if err != nil || base == nil {
		return nil, err
	}
	obj, err := base.resolve()
	if err != nil {
		return nil, err
	}
	attr := pyast.Field(n, "attribute")
	if attr == nil {
		return nil, nil
	}
	return Attribute(obj, attr.Content(e.src)), nil
}

// call resolves a call: classes produce an instance, functions their
// inferred return value, other objects go through their __call__.
func (e *evaluator) call(n *pyast.Node) (*Binding, error) {
	callee, err := e.eval(pyast.Field(n, "function"))
	if err != nil || callee == nil {
		return nil, err
	}
	obj, err := callee.resolve()
	if err != nil {
		return nil, err
	}
	if b := e.callResult(obj, n); b != nil {
		return b, nil
	}
	call := Attribute(obj, "__call__")
	if call == nil {
		return nil, nil
	}
	target, err := call.resolve()
	if err != nil {
		return nil, err
	}
	if _, isClass := target.(*Class); isClass {
		return nil, nil
	}
	return e.callResult(target, n), nil
}

func (e *evaluator) callResult(obj Object, n *pyast.Node) *Binding {
	module, line := e.scope.module, pyast.Line(n)
	switch callee := obj.(type) {
	case *Class:
		return NewBinding(NewInstance(callee), module, line, false)
	case *Function:
		return newLazyBinding(callee.reg, module, line, callee.returnObject)
	case *BuiltinFunction:
		return NewBinding(callee.Returned(), module, line, false)
	}
	return nil
}

// EvaluateString parses expr and resolves it in this scope. Results are
// memoized per expression text. nil means expr does not parse or cannot be
// resolved.
func (s *Scope) EvaluateString(expr string) *Binding {
	if b, ok := s.exprs[expr]; ok {
		return b
	}
	tree, node, err := pyast.ParseExpression(context.Background(), expr)
	if err != nil {
		return nil
	}
	e := &evaluator{scope: s, src: tree.Source(), memo: make(map[pyast.NodeKey]*Binding)}
	b, err := e.eval(node)
	if err != nil {
		return nil
	}
	if s.exprs == nil {
		s.exprs = make(map[string]*Binding)
	}
	s.exprs[expr] = b
	return b
}

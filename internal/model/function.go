package model

import (
	"errors"

	"github.com/jward/pysem/internal/pyast"
)

// Function is a function or method defined in source.
type Function struct {
	reg       *Registry
	name      string
	module    *Module
	node      *pyast.Node
	scope     *Scope
	class     *Class
	decorated bool

	params []Parameter

	returnStatus Status
	returned     Object
}

// Parameter is one formal parameter. Default is nil when the parameter has
// no default value.
type Parameter struct {
	Name    string
	Line    int
	Default *pyast.Node
}

func (f *Function) Type() Object                    { return f.reg.function }
func (f *Function) Kind() ObjectKind                { return KindFunction }
func (f *Function) Attributes() map[string]*Binding { return emptyAttributes }
func (f *Function) Name() string                    { return f.name }

// Module returns the defining module.
func (f *Function) Module() *Module { return f.module }

// Scope returns the function body scope.
func (f *Function) Scope() *Scope { return f.scope }

// Node returns the function_definition node.
func (f *Function) Node() *pyast.Node { return f.node }

// Line returns the line of the function name.
func (f *Function) Line() int { return pyast.Line(pyast.Field(f.node, "name")) }

// Class returns the class whose body defines f, or nil.
func (f *Function) Class() *Class { return f.class }

// IsMethod reports whether f is defined directly in a class body.
func (f *Function) IsMethod() bool { return f.class != nil }

// Decorated reports whether f carries decorators.
func (f *Function) Decorated() bool { return f.decorated }

// Parameters returns the parameter names in declaration order.
func (f *Function) Parameters() []string {
	params := f.parameterList()
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func (f *Function) parameterList() []Parameter {
	if f.params != nil {
		return f.params
	}
	f.params = []Parameter{}
	src := f.module.tree.Source()
	for _, p := range pyast.NamedChildren(pyast.Field(f.node, "parameters")) {
		var nameNode, def *pyast.Node
		switch pyast.KindOf(p) {
		case pyast.KindName:
			nameNode = p
		case pyast.KindDefaultParameter:
			nameNode, def = pyast.Field(p, "name"), pyast.Field(p, "value")
		case pyast.KindTypedParameter, pyast.KindSplat:
			if p.NamedChildCount() > 0 {
				nameNode = p.NamedChild(0)
			}
		default:
			// Separators and anything unrecognized name nothing.
		}
		if pyast.KindOf(nameNode) == pyast.KindSplat && nameNode.NamedChildCount() > 0 {
			nameNode = nameNode.NamedChild(0)
		}
		if pyast.KindOf(nameNode) != pyast.KindName {
			continue
		}
		f.params = append(f.params, Parameter{Name: nameNode.Content(src), Line: pyast.Line(nameNode), Default: def})
	}
	return f.params
}

// ReturnObject infers what a call to f returns, Unknown if nothing can be
// inferred. The result is computed once.
func (f *Function) ReturnObject() Object {
	obj, err := f.returnObject()
	if err != nil || obj == nil {
		return f.reg.unknown
	}
	return obj
}

func (f *Function) returnObject() (Object, error) {
	switch f.returnStatus {
	case Resolved:
		return f.returned, nil
	case Resolving:
		f.reg.circular()
		return nil, ErrCircularInference
	}
	f.returnStatus = Resolving
	obj, err := f.inferReturn()
	if err != nil {
		f.returnStatus = Failed
		return nil, err
	}
	if IsUnknown(obj) && f.module.env.Oracle != nil {
		if observed := f.module.env.Oracle.ReturnObject(f); observed != nil {
			obj = observed
		}
	}
	f.returned, f.returnStatus = obj, Resolved
	return obj, nil
}

// inferReturn evaluates the return statements of the body in order and
// takes the first that yields something known.
func (f *Function) inferReturn() (Object, error) {
	var returns []*pyast.Node
	collectReturns(pyast.Field(f.node, "body"), &returns)
	circular := false
	for _, ret := range returns {
		if ret.NamedChildCount() == 0 {
			continue
		}
		obj, err := f.Scope().evalObject(ret.NamedChild(0))
		if errors.Is(err, ErrCircularInference) {
			circular = true
			continue
		}
		if err != nil {
			return nil, err
		}
		if !IsUnknown(obj) {
			return obj, nil
		}
	}
	if circular {
		return nil, ErrCircularInference
	}
	return f.reg.unknown, nil
}

func collectReturns(n *pyast.Node, out *[]*pyast.Node) {
	if n == nil {
		return
	}
	for _, c := range pyast.NamedChildren(n) {
		switch pyast.KindOf(c) {
		case pyast.KindReturn:
			*out = append(*out, c)
		case pyast.KindFunction, pyast.KindClass, pyast.KindDecorated, pyast.KindLambda:
			// Returns of nested definitions belong to them.
		default:
			collectReturns(c, out)
		}
	}
}

// parameterObject infers parameter i: the owning class instance for the
// receiver of an undecorated method, else the default value, else what the
// runtime oracle observed.
func (f *Function) parameterObject(i int, p Parameter) (Object, error) {
	if i == 0 && f.class != nil && !f.decorated {
		return NewInstance(f.class), nil
	}
	if p.Default != nil {
		obj, err := f.scope.parent.evalObject(p.Default)
		if err != nil {
			return nil, err
		}
		if !IsUnknown(obj) {
			return obj, nil
		}
	}
	if f.module.env.Oracle != nil {
		if observed := f.module.env.Oracle.ArgumentObject(f, i); observed != nil {
			return observed, nil
		}
	}
	return f.reg.unknown, nil
}

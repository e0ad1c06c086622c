package model

import "github.com/jward/pysem/internal/pyast"

// Class is a class object, either defined in source or builtin.
type Class struct {
	reg    *Registry
	name   string
	module *Module
	node   *pyast.Node
	scope  *Scope

	builtinAttrs map[string]*Binding

	supers     []Object
	supersDone bool

	attrs     map[string]*Binding
	building  bool
	selfAttrs map[string]*Binding
}

func (c *Class) Type() Object     { return c.reg.typ }
func (c *Class) Kind() ObjectKind { return KindClass }
func (c *Class) Name() string     { return c.name }

// Module returns the defining module, nil for builtins.
func (c *Class) Module() *Module { return c.module }

// Scope returns the class body scope, nil for builtins.
func (c *Class) Scope() *Scope { return c.scope }

// Node returns the class_definition node, nil for builtins.
func (c *Class) Node() *pyast.Node { return c.node }

// Line returns the line of the class name, 0 for builtins.
func (c *Class) Line() int {
	if c.node == nil {
		return 0
	}
	return pyast.Line(pyast.Field(c.node, "name"))
}

// IsBuiltin reports whether the class comes from the registry.
func (c *Class) IsBuiltin() bool { return c.node == nil }

// Superclasses evaluates the base class expressions in the enclosing scope.
// Bases that do not resolve to a class are left out.
func (c *Class) Superclasses() []Object {
	if c.supersDone {
		return c.supers
	}
	c.supersDone = true
	args := pyast.Field(c.node, "superclasses")
	if args == nil {
		return nil
	}
	var supers []Object
	for _, arg := range pyast.NamedChildren(args) {
		if arg.Type() == "keyword_argument" || pyast.KindOf(arg) == pyast.KindComment {
			continue
		}
		obj, err := c.scope.parent.evalObject(arg)
		if err != nil {
			continue
		}
		if base, ok := obj.(*Class); ok {
			supers = append(supers, base)
		}
	}
	c.supers = supers
	return supers
}

// Attributes merges inherited attributes, earlier bases winning, with the
// instance attributes assigned in __init__ and the class body on top.
// A class reached again while its own map is being built contributes
// nothing to that build.
func (c *Class) Attributes() map[string]*Binding {
	if c.attrs != nil {
		return c.attrs
	}
	if c.building {
		c.reg.circular()
		return emptyAttributes
	}
	c.building = true
	defer func() { c.building = false }()

	attrs := make(map[string]*Binding)
	supers := c.Superclasses()
	for i := len(supers) - 1; i >= 0; i-- {
		for name, b := range supers[i].Attributes() {
			attrs[name] = b
		}
	}
	for name, b := range c.builtinAttrs {
		attrs[name] = b
	}
	if c.scope != nil {
		for name, b := range c.instanceAttributes() {
			attrs[name] = b
		}
		for name, b := range c.scope.Names() {
			attrs[name] = b
		}
	}
	c.attrs = attrs
	return attrs
}

// IsSubclassOf reports whether other is one of c's direct bases.
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, s := range c.Superclasses() {
		if sameClass(s.(*Class), other) {
			return true
		}
	}
	return false
}

func sameClass(a, b *Class) bool {
	if a == b {
		return true
	}
	if a.node == nil || b.node == nil {
		return false
	}
	return a.name == b.name && a.Line() == b.Line() && SameModule(a.module, b.module)
}

// instanceAttributes collects "self.name = value" assignments made in the
// class's own __init__.
func (c *Class) instanceAttributes() map[string]*Binding {
	if c.selfAttrs != nil {
		return c.selfAttrs
	}
	c.selfAttrs = make(map[string]*Binding)
	init, ok := c.scope.Names()["__init__"]
	if !ok {
		return c.selfAttrs
	}
	fn, ok := init.Object().(*Function)
	if !ok || fn.class != c {
		return c.selfAttrs
	}
	params := fn.Parameters()
	if len(params) == 0 {
		return c.selfAttrs
	}
	v := &selfVisitor{class: c, fn: fn, self: params[0], src: c.module.tree.Source()}
	v.visitBlock(pyast.Field(fn.node, "body"))
	return c.selfAttrs
}

type selfVisitor struct {
	class *Class
	fn    *Function
	self  string
	src   []byte
}

func (v *selfVisitor) visitBlock(n *pyast.Node) {
	if n == nil {
		return
	}
	for _, stmt := range pyast.NamedChildren(n) {
		v.visitStatement(stmt)
	}
}

func (v *selfVisitor) visitStatement(n *pyast.Node) {
	switch pyast.KindOf(n) {
	case pyast.KindExpressionStatement:
		for _, c := range pyast.NamedChildren(n) {
			if pyast.KindOf(c) == pyast.KindAssignment {
				v.assignment(c)
			}
		}
	case pyast.KindIf, pyast.KindElif, pyast.KindElse, pyast.KindFor, pyast.KindWhile,
		pyast.KindTry, pyast.KindExcept, pyast.KindFinally, pyast.KindWith:
		for _, c := range pyast.NamedChildren(n) {
			switch pyast.KindOf(c) {
			case pyast.KindBlock:
				v.visitBlock(c)
			case pyast.KindElif, pyast.KindElse, pyast.KindExcept, pyast.KindFinally:
				v.visitStatement(c)
			}
		}
	default:
		// Nested definitions have their own self.
	}
}

func (v *selfVisitor) assignment(n *pyast.Node) {
	right := pyast.Field(n, "right")
	targets := []*pyast.Node{pyast.Field(n, "left")}
	for pyast.KindOf(right) == pyast.KindAssignment {
		targets = append(targets, pyast.Field(right, "left"))
		right = pyast.Field(right, "right")
	}
	for _, t := range targets {
		if pyast.KindOf(t) != pyast.KindAttribute {
			continue
		}
		obj := pyast.Field(t, "object")
		if pyast.KindOf(obj) != pyast.KindName || obj.Content(v.src) != v.self {
			continue
		}
		attr := pyast.Field(t, "attribute")
		name := attr.Content(v.src)
		b, ok := v.class.selfAttrs[name]
		if !ok {
			b = newAssignedBinding(v.class.reg, v.class.module, pyast.Line(attr))
			v.class.selfAttrs[name] = b
		}
		b.addAssignment(Assignment{Scope: v.fn.Scope(), Node: right, Line: pyast.Line(attr)})
	}
}

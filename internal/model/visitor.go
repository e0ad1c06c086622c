package model

import (
	"strings"

	"github.com/jward/pysem/internal/pyast"
)

// visitor fills a scope's names and child scopes from the statements of
// its body. Statement kinds that bind nothing fall through the default
// branch.
type visitor struct {
	scope  *Scope
	module *Module
	reg    *Registry
	src    []byte
}

func (v *visitor) text(n *pyast.Node) string { return n.Content(v.src) }

func (v *visitor) visitBlock(n *pyast.Node) {
	if n == nil {
		return
	}
	for _, stmt := range pyast.NamedChildren(n) {
		v.visitStatement(stmt)
	}
}

func (v *visitor) visitStatement(n *pyast.Node) {
	switch pyast.KindOf(n) {
	case pyast.KindClass:
		v.defineClass(n)
	case pyast.KindFunction:
		v.defineFunction(n, false)
	case pyast.KindDecorated:
		def := pyast.Field(n, "definition")
		switch pyast.KindOf(def) {
		case pyast.KindClass:
			v.defineClass(def)
		case pyast.KindFunction:
			v.defineFunction(def, true)
		default:
		}
	case pyast.KindExpressionStatement:
		for _, c := range pyast.NamedChildren(n) {
			switch pyast.KindOf(c) {
			case pyast.KindAssignment:
				v.assignment(c)
			case pyast.KindAugmentedAssignment:
				v.augmentedAssignment(c)
			default:
			}
		}
	case pyast.KindImport:
		v.importStatement(n)
	case pyast.KindFromImport:
		v.fromImport(n)
	case pyast.KindFor:
		v.bindTargets(pyast.Field(n, "left"))
		v.visitCompound(n)
	case pyast.KindWith:
		v.withTargets(n)
		v.visitCompound(n)
	case pyast.KindExcept:
		v.exceptTarget(n)
		v.visitCompound(n)
	case pyast.KindIf, pyast.KindElif, pyast.KindElse, pyast.KindWhile, pyast.KindTry, pyast.KindFinally:
		v.visitCompound(n)
	case pyast.KindBlock:
		v.visitBlock(n)
	default:
		// Returns, bare expressions, pass, global and any statement kind
		// not listed above bind nothing.
	}
}

func (v *visitor) visitCompound(n *pyast.Node) {
	for _, c := range pyast.NamedChildren(n) {
		switch pyast.KindOf(c) {
		case pyast.KindBlock:
			v.visitBlock(c)
		case pyast.KindElif, pyast.KindElse, pyast.KindExcept, pyast.KindFinally:
			v.visitStatement(c)
		default:
		}
	}
}

func (v *visitor) childScope(kind ScopeKind, owner Object, def *pyast.Node) *Scope {
	s := &Scope{
		kind:   kind,
		module: v.module,
		owner:  owner,
		parent: v.scope,
		node:   def,
		start:  pyast.Line(def),
		end:    pyast.EndLine(def),
	}
	v.scope.children = append(v.scope.children, s)
	return s
}

func (v *visitor) defineClass(def *pyast.Node) {
	nameNode := pyast.Field(def, "name")
	if nameNode == nil {
		return
	}
	c := &Class{reg: v.reg, name: v.text(nameNode), module: v.module, node: def}
	c.scope = v.childScope(ScopeClass, c, def)
	v.scope.names[c.name] = NewBinding(c, v.module, pyast.Line(nameNode), true)
}

func (v *visitor) defineFunction(def *pyast.Node, decorated bool) {
	nameNode := pyast.Field(def, "name")
	if nameNode == nil {
		return
	}
	fn := &Function{reg: v.reg, name: v.text(nameNode), module: v.module, node: def, decorated: decorated}
	if v.scope.kind == ScopeClass {
		fn.class = v.scope.owner.(*Class)
	}
	fn.scope = v.childScope(ScopeFunction, fn, def)
	v.scope.names[fn.name] = NewBinding(fn, v.module, pyast.Line(nameNode), true)
}

func (v *visitor) visitParameters(fn *Function) {
	for i, p := range fn.parameterList() {
		b := newLazyBinding(v.reg, v.module, p.Line, func() (Object, error) {
			return fn.parameterObject(i, p)
		})
		b.definedHere = true
		v.scope.names[p.Name] = b
	}
}

func (v *visitor) assign(name string, value *pyast.Node, line int) {
	b := v.scope.names[name]
	if b == nil || b.assignments == nil {
		b = newAssignedBinding(v.reg, v.module, line)
		v.scope.names[name] = b
	}
	b.addAssignment(Assignment{Scope: v.scope, Node: value, Line: line})
}

// assignment handles plain and chained assignments, a = b = value.
func (v *visitor) assignment(n *pyast.Node) {
	right := pyast.Field(n, "right")
	targets := []*pyast.Node{pyast.Field(n, "left")}
	for pyast.KindOf(right) == pyast.KindAssignment {
		targets = append(targets, pyast.Field(right, "left"))
		right = pyast.Field(right, "right")
	}
	for _, t := range targets {
		if pyast.KindOf(t) == pyast.KindName {
			v.assign(v.text(t), right, pyast.Line(t))
			continue
		}
		v.bindTargets(t)
	}
}

func (v *visitor) augmentedAssignment(n *pyast.Node) {
	left := pyast.Field(n, "left")
	if pyast.KindOf(left) != pyast.KindName {
		return
	}
	if _, ok := v.scope.names[v.text(left)]; !ok {
		v.assign(v.text(left), nil, pyast.Line(left))
	}
}

// bindTargets binds every name in an unpacking or loop target to an
// unknown value.
func (v *visitor) bindTargets(n *pyast.Node) {
	if n == nil {
		return
	}
	switch pyast.KindOf(n) {
	case pyast.KindName:
		v.assign(v.text(n), nil, pyast.Line(n))
	case pyast.KindPatternList, pyast.KindTuple, pyast.KindList, pyast.KindParenthesized, pyast.KindSplat:
		for _, c := range pyast.NamedChildren(n) {
			v.bindTargets(c)
		}
	case pyast.KindAttribute, pyast.KindSubscript:
		// Stores into objects bind no name here.
	default:
		if n.Type() == "as_pattern_target" {
			if n.NamedChildCount() == 0 {
				v.assign(v.text(n), nil, pyast.Line(n))
				return
			}
			for _, c := range pyast.NamedChildren(n) {
				v.bindTargets(c)
			}
		}
	}
}

func (v *visitor) withTargets(n *pyast.Node) {
	var walk func(*pyast.Node)
	walk = func(c *pyast.Node) {
		for _, child := range pyast.NamedChildren(c) {
			switch pyast.KindOf(child) {
			case pyast.KindBlock:
				continue
			case pyast.KindAsPattern:
				v.bindTargets(pyast.Field(child, "alias"))
			default:
				walk(child)
			}
		}
	}
	walk(n)
}

func (v *visitor) exceptTarget(n *pyast.Node) {
	children := pyast.Children(n)
	for i, c := range children {
		if pyast.KindOf(c) == pyast.KindAsPattern {
			v.bindTargets(pyast.Field(c, "alias"))
			return
		}
		if c.Type() == "as" && i+1 < len(children) {
			v.bindTargets(children[i+1])
			return
		}
	}
}

func (v *visitor) importStatement(n *pyast.Node) {
	for _, c := range pyast.NamedChildren(n) {
		switch pyast.KindOf(c) {
		case pyast.KindDottedName:
			full := v.text(c)
			first, _, _ := strings.Cut(full, ".")
			v.bindModule(first, first, full, pyast.Line(c))
		case pyast.KindAliasedImport:
			name, alias := pyast.Field(c, "name"), pyast.Field(c, "alias")
			if name == nil || alias == nil {
				continue
			}
			v.bindModule(v.text(alias), v.text(name), v.text(name), pyast.Line(alias))
		default:
		}
	}
}

// bindModule binds local to the module called target. full is the whole
// dotted name the statement imports; it is loaded too so every module on
// the path records the importer as a dependant.
func (v *visitor) bindModule(local, target, full string, line int) {
	module, reg := v.module, v.reg
	b := newLazyBinding(reg, module, line, func() (Object, error) {
		loader := module.env.Loader
		if loader == nil {
			return reg.unknown, nil
		}
		if full != target {
			if _, err := loader.Import(module, full, 0); err != nil {
				module.env.logger().Debug("import unresolved", "module", full, "error", err)
			}
		}
		obj, err := loader.Import(module, target, 0)
		if err != nil {
			module.env.logger().Debug("import unresolved", "module", target, "error", err)
			return reg.unknown, nil
		}
		return obj, nil
	})
	b.locate = func() (*Module, int) {
		if m := ModuleOf(b.Object()); m != nil {
			return m, 1
		}
		return module, line
	}
	v.scope.names[local] = b
}

func (v *visitor) fromImport(n *pyast.Node) {
	modNode := pyast.Field(n, "module_name")
	if modNode == nil {
		return
	}
	dotted, level := v.text(modNode), 0
	if pyast.KindOf(modNode) == pyast.KindRelativeImport {
		trimmed := strings.TrimLeft(dotted, ".")
		level, dotted = len(dotted)-len(trimmed), trimmed
	}
	modKey := pyast.KeyOf(modNode)
	for _, c := range pyast.NamedChildren(n) {
		if pyast.KeyOf(c) == modKey {
			continue
		}
		switch pyast.KindOf(c) {
		case pyast.KindDottedName:
			v.bindImportedName(v.text(c), v.text(c), dotted, level, pyast.Line(c))
		case pyast.KindAliasedImport:
			name, alias := pyast.Field(c, "name"), pyast.Field(c, "alias")
			if name == nil || alias == nil {
				continue
			}
			v.bindImportedName(v.text(alias), v.text(name), dotted, level, pyast.Line(alias))
		case pyast.KindWildcardImport:
			v.starImport(dotted, level)
		default:
		}
	}
}

func (v *visitor) importModule(dotted string, level int) Object {
	loader := v.module.env.Loader
	if loader == nil {
		return nil
	}
	obj, err := loader.Import(v.module, dotted, level)
	if err != nil {
		v.module.env.logger().Debug("import unresolved", "module", dotted, "level", level, "error", err)
		return nil
	}
	return obj
}

// bindImportedName binds local to attribute name of the imported module.
// The binding is an alias: its location is the imported binding's.
func (v *visitor) bindImportedName(local, name, dotted string, level, line int) {
	module, reg := v.module, v.reg
	var target *Binding
	looked := false
	find := func() *Binding {
		if !looked {
			looked = true
			if obj := v.importModule(dotted, level); obj != nil {
				target = Attribute(obj, name)
			}
		}
		return target
	}
	b := newLazyBinding(reg, module, line, func() (Object, error) {
		t := find()
		if t == nil {
			return reg.unknown, nil
		}
		return t.resolve()
	})
	b.locate = func() (*Module, int) {
		if t := find(); t != nil {
			return t.Location()
		}
		return module, line
	}
	v.scope.names[local] = b
}

// starImport binds the public names of the imported module. The module is
// loaded while visiting since the names are not known otherwise.
func (v *visitor) starImport(dotted string, level int) {
	obj := v.importModule(dotted, level)
	if obj == nil {
		return
	}
	for name, target := range obj.Attributes() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		b := newLazyBinding(v.reg, v.module, 0, target.resolve)
		b.locate = target.Location
		v.scope.names[name] = b
	}
}

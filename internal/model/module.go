package model

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jward/pysem/internal/pyast"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/internal/scan"
)

// ModuleLoader resolves imports for the model. It is implemented by the
// module cache.
type ModuleLoader interface {
	// Import returns the module or package for a dotted name imported by
	// from. level is the number of leading dots of a relative import.
	Import(from *Module, name string, level int) (Object, error)
	// Load returns the module or package object for res.
	Load(res resource.Resource) (Object, error)
}

// RuntimeOracle supplies objects observed at runtime for functions static
// inference could not type. Both methods return nil when nothing was
// observed.
type RuntimeOracle interface {
	ReturnObject(fn *Function) Object
	ArgumentObject(fn *Function, index int) Object
}

// Env is what modules of one engine share.
type Env struct {
	Registry *Registry
	Loader   ModuleLoader
	Oracle   RuntimeOracle
	Logger   *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Module is a parsed python module.
type Module struct {
	env   *Env
	res   resource.Resource
	path  string
	name  string
	tree  *pyast.Tree
	lines *scan.Lines
	scope *Scope
}

// NewModule parses src as the module stored in res. res may be nil for
// source that lives only in an editor buffer. Syntax errors are returned as
// *pyast.ParseError.
func NewModule(ctx context.Context, env *Env, res resource.Resource, src string) (*Module, error) {
	tree, err := pyast.Parse(ctx, []byte(src))
	if err != nil {
		if perr, ok := err.(*pyast.ParseError); ok && res != nil {
			perr.Path = res.Path()
		}
		return nil, err
	}
	m := &Module{env: env, res: res, tree: tree, lines: scan.NewLines(src)}
	if res != nil {
		m.path = res.Path()
		m.name = moduleName(m.path)
	}
	return m, nil
}

func moduleName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".py")
	if base == "__init__" {
		return filepath.Base(filepath.Dir(path))
	}
	return base
}

func (m *Module) Type() Object     { return m.env.Registry.module }
func (m *Module) Kind() ObjectKind { return KindModule }

// Attributes returns the module's global names.
func (m *Module) Attributes() map[string]*Binding { return m.Scope().Names() }

// Name returns the module name, "" for buffer modules.
func (m *Module) Name() string { return m.name }

// Path returns the file path, "" for buffer modules.
func (m *Module) Path() string { return m.path }

// Resource returns the backing resource, or nil.
func (m *Module) Resource() resource.Resource { return m.res }

// Env returns the environment the module was built in.
func (m *Module) Env() *Env { return m.env }

// Tree returns the syntax tree.
func (m *Module) Tree() *pyast.Tree { return m.tree }

// Lines returns the module source split into lines.
func (m *Module) Lines() *scan.Lines { return m.lines }

// Source returns the module source.
func (m *Module) Source() string { return m.lines.Source() }

// Scope returns the global scope.
func (m *Module) Scope() *Scope {
	if m.scope == nil {
		root := m.tree.Root()
		m.scope = &Scope{
			kind:   ScopeGlobal,
			module: m,
			owner:  m,
			parent: m.env.Registry.scope,
			node:   root,
			start:  1,
			end:    max(m.lines.Len(), 1),
		}
	}
	return m.scope
}

func (m *Module) String() string {
	if m.path == "" {
		return "<buffer>"
	}
	return m.path
}

// Package is a folder holding an __init__.py. Its attributes are those of
// __init__.py together with its submodules and subpackages.
type Package struct {
	env    *Env
	folder resource.Resource
	init   *Module
	attrs  map[string]*Binding
}

// NewPackage returns the package for folder. init is the parsed
// __init__.py, or nil if it does not parse.
func NewPackage(env *Env, folder resource.Resource, init *Module) *Package {
	return &Package{env: env, folder: folder, init: init}
}

func (p *Package) Type() Object     { return p.env.Registry.module }
func (p *Package) Kind() ObjectKind { return KindPackage }
func (p *Package) Name() string     { return p.folder.Name() }

// Resource returns the package folder.
func (p *Package) Resource() resource.Resource { return p.folder }

// Init returns the __init__ module, or nil.
func (p *Package) Init() *Module { return p.init }

// Attributes materializes child bindings lazily through the loader.
func (p *Package) Attributes() map[string]*Binding {
	if p.attrs != nil {
		return p.attrs
	}
	attrs := make(map[string]*Binding)
	children, err := p.folder.Children()
	if err != nil {
		p.env.logger().Warn("cannot list package", "path", p.folder.Path(), "error", err)
	}
	for _, child := range children {
		name, ok := childModuleName(child)
		if !ok {
			continue
		}
		attrs[name] = p.childBinding(child)
	}
	if p.init != nil {
		for name, b := range p.init.Attributes() {
			attrs[name] = b
		}
	}
	p.attrs = attrs
	return attrs
}

func childModuleName(child resource.Resource) (string, bool) {
	name := child.Name()
	if child.IsFolder() {
		f, ok := child.(*resource.Folder)
		if !ok || !f.HasChild("__init__.py") {
			return "", false
		}
		return name, true
	}
	if !strings.HasSuffix(name, ".py") || name == "__init__.py" {
		return "", false
	}
	return strings.TrimSuffix(name, ".py"), true
}

func (p *Package) childBinding(child resource.Resource) *Binding {
	reg := p.env.Registry
	b := newLazyBinding(reg, p.init, 1, func() (Object, error) {
		if p.env.Loader == nil {
			return reg.unknown, nil
		}
		obj, err := p.env.Loader.Load(child)
		if err != nil {
			p.env.logger().Debug("submodule unavailable", "path", child.Path(), "error", err)
			return reg.unknown, nil
		}
		return obj, nil
	})
	b.definedHere = true
	b.locate = func() (*Module, int) {
		return ModuleOf(b.Object()), 1
	}
	return b
}

// ModuleOf returns the module that defines o when o is a module or a
// package, or nil.
func ModuleOf(o Object) *Module {
	switch v := o.(type) {
	case *Module:
		return v
	case *Package:
		return v.init
	}
	return nil
}

// ResourceOf returns the resource backing a module or package object.
func ResourceOf(o Object) resource.Resource {
	switch v := o.(type) {
	case *Module:
		return v.res
	case *Package:
		return v.folder
	}
	return nil
}

// DescribeObject renders o for listings, e.g. "class Box" or "instance of list".
func DescribeObject(o Object) string {
	switch v := o.(type) {
	case *Module:
		return fmt.Sprintf("module %s", v.name)
	case *Package:
		return fmt.Sprintf("package %s", v.Name())
	case *Class:
		return fmt.Sprintf("class %s", v.name)
	case *Function:
		return fmt.Sprintf("function %s", v.name)
	case *BuiltinFunction:
		return fmt.Sprintf("builtin %s", v.name)
	case *Instance:
		return fmt.Sprintf("instance of %s", v.class.name)
	}
	return "unknown"
}

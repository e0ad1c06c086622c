// Package model is the semantic model of python source: objects with lazily
// built attribute maps, bindings that resolve on demand, the lexical scope
// tree and the narrow expression evaluator that connects them.
//
// The model is single threaded. Every cache in it is plain memoization and
// callers sharing one model must serialize access.
package model

import "sort"

// ObjectKind is the closed set of object shapes.
type ObjectKind uint8

const (
	KindUnknown ObjectKind = iota
	KindType
	KindModule
	KindPackage
	KindClass
	KindFunction
	KindInstance
)

var objectKindNames = [...]string{
	KindUnknown:  "unknown",
	KindType:     "type",
	KindModule:   "module",
	KindPackage:  "package",
	KindClass:    "class",
	KindFunction: "function",
	KindInstance: "instance",
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return "unknown"
}

// Object is a semantic value. Every object has exactly one type; the base
// kinds held by a Registry are their own type.
type Object interface {
	Type() Object
	Kind() ObjectKind
	// Attributes returns the attribute map. It is computed on first use and
	// the same map is returned afterwards. Callers must not modify it.
	Attributes() map[string]*Binding
}

// Named is implemented by objects that carry a python name.
type Named interface {
	Name() string
}

// Attribute returns the binding for name on o, or nil.
func Attribute(o Object, name string) *Binding {
	if o == nil {
		return nil
	}
	return o.Attributes()[name]
}

// AttributeNames returns the sorted attribute names of o.
func AttributeNames(o Object) []string {
	if o == nil {
		return nil
	}
	attrs := o.Attributes()
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsUnknown reports whether o carries no usable information.
func IsUnknown(o Object) bool {
	return o == nil || o.Kind() == KindUnknown
}

// NameOf returns o's python name, or "".
func NameOf(o Object) string {
	if n, ok := o.(Named); ok {
		return n.Name()
	}
	return ""
}

// baseKind is one of the registry's four fixed-point types.
type baseKind struct {
	name string
	kind ObjectKind
}

func (b *baseKind) Type() Object                    { return b }
func (b *baseKind) Kind() ObjectKind                { return b.kind }
func (b *baseKind) Attributes() map[string]*Binding { return emptyAttributes }
func (b *baseKind) Name() string                    { return b.name }

var emptyAttributes = map[string]*Binding{}

// Instance is a value whose type is a class.
type Instance struct {
	class *Class
}

// NewInstance returns a fresh instance of c.
func NewInstance(c *Class) *Instance { return &Instance{class: c} }

func (i *Instance) Type() Object                    { return i.class }
func (i *Instance) Kind() ObjectKind                { return KindInstance }
func (i *Instance) Attributes() map[string]*Binding { return i.class.Attributes() }

// Class returns the instance's class.
func (i *Instance) Class() *Class { return i.class }

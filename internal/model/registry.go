package model

import "sort"

// Registry holds the base kinds and builtin namespace of one engine. Each
// engine constructs its own; objects from different registries never mix.
type Registry struct {
	typ      *baseKind
	module   *baseKind
	function *baseKind
	unknown  *baseKind

	classes  map[string]*Class
	builtins map[string]*Binding
	scope    *Scope

	onCircular func()
}

// builtinClasses lists the builtin classes with their methods. A method maps
// to the builtin class its result is an instance of, or "" when unknown.
var builtinClasses = []struct {
	name    string
	base    string
	methods map[string]string
}{
	{"object", "", map[string]string{
		"__init__": "", "__str__": "str", "__repr__": "str", "__eq__": "bool",
		"__ne__": "bool", "__hash__": "int", "__getattribute__": "", "__setattr__": "",
	}},
	{"str", "object", map[string]string{
		"capitalize": "str", "center": "str", "count": "int", "encode": "",
		"endswith": "bool", "find": "int", "format": "str", "index": "int",
		"isalnum": "bool", "isalpha": "bool", "isdigit": "bool", "islower": "bool",
		"isspace": "bool", "isupper": "bool", "join": "str", "ljust": "str",
		"lower": "str", "lstrip": "str", "partition": "tuple", "replace": "str",
		"rfind": "int", "rjust": "str", "rsplit": "list", "rstrip": "str",
		"split": "list", "splitlines": "list", "startswith": "bool", "strip": "str",
		"swapcase": "str", "title": "str", "upper": "str", "zfill": "str",
	}},
	{"list", "object", map[string]string{
		"append": "", "clear": "", "copy": "list", "count": "int", "extend": "",
		"index": "int", "insert": "", "pop": "", "remove": "", "reverse": "",
		"sort": "",
	}},
	{"dict", "object", map[string]string{
		"clear": "", "copy": "dict", "fromkeys": "dict", "get": "", "items": "list",
		"keys": "list", "pop": "", "popitem": "tuple", "setdefault": "",
		"update": "", "values": "list",
	}},
	{"tuple", "object", map[string]string{
		"count": "int", "index": "int",
	}},
	{"set", "object", map[string]string{
		"add": "", "clear": "", "copy": "set", "difference": "set", "discard": "",
		"intersection": "set", "isdisjoint": "bool", "issubset": "bool",
		"issuperset": "bool", "pop": "", "remove": "", "symmetric_difference": "set",
		"union": "set", "update": "",
	}},
	{"int", "object", map[string]string{
		"bit_length": "int", "conjugate": "int", "to_bytes": "",
	}},
	{"float", "object", map[string]string{
		"conjugate": "float", "hex": "str", "is_integer": "bool",
	}},
	{"bool", "int", map[string]string{}},
}

// builtinFunctions maps builtin function names to the builtin class their
// result is an instance of, or "" when unknown.
var builtinFunctions = map[string]string{
	"abs": "", "all": "bool", "any": "bool", "bin": "str", "callable": "bool",
	"chr": "str", "dir": "list", "enumerate": "", "format": "str", "getattr": "",
	"hasattr": "bool", "hash": "int", "hex": "str", "id": "int", "input": "str",
	"isinstance": "bool", "issubclass": "bool", "iter": "", "len": "int",
	"max": "", "min": "", "next": "", "oct": "str", "open": "", "ord": "int",
	"print": "", "range": "list", "repr": "str", "reversed": "", "round": "",
	"setattr": "", "sorted": "list", "sum": "", "super": "", "type": "",
	"vars": "dict", "zip": "",
}

// NewRegistry builds the base kinds and the builtin namespace.
func NewRegistry() *Registry {
	r := &Registry{
		typ:      &baseKind{name: "type", kind: KindType},
		module:   &baseKind{name: "module", kind: KindType},
		function: &baseKind{name: "function", kind: KindType},
		unknown:  &baseKind{name: "unknown", kind: KindUnknown},
		classes:  make(map[string]*Class),
		builtins: make(map[string]*Binding),
	}
	for _, bc := range builtinClasses {
		c := &Class{reg: r, name: bc.name}
		if bc.base != "" {
			c.supers = []Object{r.classes[bc.base]}
			c.supersDone = true
		}
		r.classes[bc.name] = c
		r.builtins[bc.name] = NewBinding(c, nil, 0, true)
	}
	for _, bc := range builtinClasses {
		c := r.classes[bc.name]
		own := make(map[string]*Binding, len(bc.methods))
		for name, returns := range bc.methods {
			own[name] = NewBinding(&BuiltinFunction{reg: r, name: name, returns: returns}, nil, 0, true)
		}
		c.builtinAttrs = own
	}
	for name, returns := range builtinFunctions {
		r.builtins[name] = NewBinding(&BuiltinFunction{reg: r, name: name, returns: returns}, nil, 0, true)
	}
	r.scope = &Scope{kind: ScopeBuiltin, names: r.builtins, built: true}
	return r
}

// Type is the type of classes.
func (r *Registry) Type() Object { return r.typ }

// Module is the type of modules and packages.
func (r *Registry) Module() Object { return r.module }

// Function is the type of functions.
func (r *Registry) Function() Object { return r.function }

// Unknown is the value of anything the model cannot infer.
func (r *Registry) Unknown() Object { return r.unknown }

// OnCircularInference registers fn to run each time a resolution re-enters
// itself.
func (r *Registry) OnCircularInference(fn func()) { r.onCircular = fn }

func (r *Registry) circular() {
	if r.onCircular != nil {
		r.onCircular()
	}
}

// BuiltinClass returns the builtin class called name, or nil.
func (r *Registry) BuiltinClass(name string) *Class { return r.classes[name] }

// BuiltinNames returns the sorted names of the builtin namespace.
func (r *Registry) BuiltinNames() []string {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scope returns the builtin scope every module scope chains to.
func (r *Registry) Scope() *Scope { return r.scope }

func (r *Registry) instanceOf(class string) Object {
	if c := r.classes[class]; c != nil {
		return NewInstance(c)
	}
	return r.unknown
}

// BuiltinFunction is a builtin callable with a fixed result class.
type BuiltinFunction struct {
	reg     *Registry
	name    string
	returns string
}

func (f *BuiltinFunction) Type() Object                    { return f.reg.function }
func (f *BuiltinFunction) Kind() ObjectKind                { return KindFunction }
func (f *BuiltinFunction) Attributes() map[string]*Binding { return emptyAttributes }
func (f *BuiltinFunction) Name() string                    { return f.name }

// Returned returns the object a call produces.
func (f *BuiltinFunction) Returned() Object {
	if f.returns == "" {
		return f.reg.unknown
	}
	return f.reg.instanceOf(f.returns)
}

package model

import (
	"errors"

	"github.com/jward/pysem/internal/pyast"
)

// ErrCircularInference is returned when a binding or function result is
// needed while it is already being resolved. It never escapes the model:
// public accessors substitute Unknown.
var ErrCircularInference = errors.New("model: circular inference")

// Status is the resolution state of a Binding.
type Status uint8

const (
	Unresolved Status = iota
	Resolving
	Resolved
	// Failed bindings hit a cycle; the next access retries.
	Failed
)

var statusNames = [...]string{
	Unresolved: "unresolved",
	Resolving:  "resolving",
	Resolved:   "resolved",
	Failed:     "failed",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "invalid"
}

// Assignment is one expression assigned to a name. A nil Node assigns an
// unknown value, as for loop targets or unpacked tuples.
type Assignment struct {
	Scope *Scope
	Node  *pyast.Node
	Line  int
}

// Binding is a named slot holding an object. It either holds its object
// directly or derives it on first use from assignments or a compute
// function, after which the result is kept.
type Binding struct {
	reg    *Registry
	status Status
	object Object

	assignments []Assignment
	compute     func() (Object, error)

	module      *Module
	line        int
	definedHere bool
	locate      func() (*Module, int)
	locating    bool
}

// NewBinding returns a resolved binding for obj defined at (module, line).
func NewBinding(obj Object, module *Module, line int, definedHere bool) *Binding {
	return &Binding{status: Resolved, object: obj, module: module, line: line, definedHere: definedHere}
}

func newAssignedBinding(reg *Registry, module *Module, line int) *Binding {
	return &Binding{reg: reg, module: module, line: line, definedHere: true}
}

func newLazyBinding(reg *Registry, module *Module, line int, compute func() (Object, error)) *Binding {
	return &Binding{reg: reg, module: module, line: line, compute: compute}
}

// Status returns the resolution state.
func (b *Binding) Status() Status { return b.status }

// DefinedHere reports whether the binding is a definition rather than an
// alias or import of one made elsewhere.
func (b *Binding) DefinedHere() bool { return b.definedHere }

// Assignments returns the recorded assignments in source order.
func (b *Binding) Assignments() []Assignment { return b.assignments }

func (b *Binding) addAssignment(a Assignment) {
	b.assignments = append(b.assignments, a)
}

// Location returns the module and 1-based line where the binding is
// defined. Imported names report the location of what they import.
func (b *Binding) Location() (*Module, int) {
	if b.locate != nil && !b.locating {
		b.locating = true
		defer func() { b.locating = false }()
		return b.locate()
	}
	return b.module, b.line
}

// Object returns the bound object, or Unknown if it cannot be inferred.
func (b *Binding) Object() Object {
	obj, err := b.resolve()
	if err != nil || obj == nil {
		return b.unknown()
	}
	return obj
}

func (b *Binding) unknown() Object {
	if b.reg != nil {
		return b.reg.unknown
	}
	return orphanUnknown
}

var orphanUnknown = &baseKind{name: "unknown", kind: KindUnknown}

// resolve runs the state machine. Entering a Resolving binding is
// ErrCircularInference; the marker is cleared on every exit.
func (b *Binding) resolve() (Object, error) {
	switch b.status {
	case Resolved:
		return b.object, nil
	case Resolving:
		if b.reg != nil {
			b.reg.circular()
		}
		return nil, ErrCircularInference
	}
	b.status = Resolving
	obj, err := b.derive()
	if err != nil {
		b.status = Failed
		return nil, err
	}
	b.object, b.status = obj, Resolved
	return obj, nil
}

func (b *Binding) derive() (Object, error) {
	if b.compute != nil {
		obj, err := b.compute()
		if err != nil {
			return nil, err
		}
		if obj == nil {
			obj = b.unknown()
		}
		return obj, nil
	}
	circular := false
	for i := len(b.assignments) - 1; i >= 0; i-- {
		a := b.assignments[i]
		if a.Node == nil {
			continue
		}
		obj, err := a.Scope.evalObject(a.Node)
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
	return b.unknown(), nil
}

// Equivalent reports whether a and b denote the same thing: the same
// binding, or bindings to the same object defined at the same place.
func Equivalent(a, b *Binding) bool {
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	if a.Object() != b.Object() {
		return false
	}
	am, al := a.Location()
	bm, bl := b.Location()
	return al == bl && SameModule(am, bm)
}

// SameModule reports whether a and b are the same module, comparing file
// backed modules by path so reloaded modules still match.
func SameModule(a, b *Module) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	return a.path != "" && a.path == b.path
}

package pycore

import (
	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/store"
)

// Oracle answers the model's runtime questions from traced call records.
// Records of a file whose content changed since it was traced are ignored.
type Oracle struct {
	core  *Core
	calls store.CallStore
}

// Compile-time check: *Oracle satisfies model.RuntimeOracle.
var _ model.RuntimeOracle = (*Oracle)(nil)

// NewOracle returns an oracle reading calls and resolving the recorded
// definitions through core.
func NewOracle(core *Core, calls store.CallStore) *Oracle {
	return &Oracle{core: core, calls: calls}
}

func (o *Oracle) ReturnObject(fn *model.Function) model.Object {
	rec := o.record(fn)
	if rec == nil {
		return nil
	}
	return o.describe(rec.Return)
}

func (o *Oracle) ArgumentObject(fn *model.Function, index int) model.Object {
	rec := o.record(fn)
	if rec == nil || index < 0 || index >= len(rec.Args) {
		return nil
	}
	return o.describe(rec.Args[index])
}

func (o *Oracle) record(fn *model.Function) *store.CallRecord {
	m := fn.Module()
	if m == nil || m.Path() == "" {
		return nil
	}
	hash, err := o.calls.SourceHash(m.Path())
	if err != nil {
		o.core.log.Debug("call records unavailable", "path", m.Path(), "error", err)
		return nil
	}
	if hash != "" && hash != store.ContentHash(m.Source()) {
		return nil
	}
	rec, err := o.calls.LatestCall(m.Path(), fn.Scope().Start())
	if err != nil {
		o.core.log.Debug("call records unavailable", "path", m.Path(), "error", err)
		return nil
	}
	return rec
}

// describe rebuilds the object a descriptor points at, or nil.
func (o *Oracle) describe(d store.Descriptor) model.Object {
	switch d.Kind {
	case store.DescriptorBuiltin:
		if class := o.core.Registry().BuiltinClass(d.Builtin); class != nil {
			return model.NewInstance(class)
		}
	case store.DescriptorInstance:
		if class, ok := o.core.DefinitionAt(d.Path, d.Line).(*model.Class); ok {
			return model.NewInstance(class)
		}
	case store.DescriptorDefinition:
		return o.core.DefinitionAt(d.Path, d.Line)
	default:
	}
	return nil
}

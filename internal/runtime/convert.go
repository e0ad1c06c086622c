package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/refactor"
	"github.com/jward/pysem/internal/store"
)

// pathAndInt checks the (path, int) argument shape shared by most host
// functions.
func pathAndInt(fn string, args []object.Object) (string, int, object.Object) {
	if len(args) != 2 {
		return "", 0, object.NewArgsError(fn, 2, len(args))
	}
	path, err := toString(args[0])
	if err != nil {
		return "", 0, object.Errorf("%s: path: %v", fn, err)
	}
	n, err := toInt64(args[1])
	if err != nil {
		return "", 0, object.Errorf("%s: %v", fn, err)
	}
	return path, int(n), nil
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

func bindingToMap(b *model.Binding) object.Object {
	obj := b.Object()
	m := map[string]object.Object{
		"name":        object.NewString(model.NameOf(obj)),
		"kind":        object.NewString(obj.Kind().String()),
		"description": object.NewString(model.DescribeObject(obj)),
		"path":        object.Nil,
		"line":        object.Nil,
	}
	if module, line := b.Location(); module != nil {
		m["path"] = object.NewString(module.Path())
		m["line"] = object.NewInt(int64(line))
	}
	return object.NewMap(m)
}

func changeSetToMap(cs *refactor.ChangeSet) object.Object {
	changes := make([]object.Object, 0, len(cs.Changes))
	for _, ch := range cs.Changes {
		changes = append(changes, object.NewMap(map[string]object.Object{
			"path":        object.NewString(ch.Path),
			"occurrences": object.NewInt(int64(ch.Occurrences)),
		}))
	}
	m := map[string]object.Object{
		"old_name": object.NewString(cs.OldName),
		"new_name": object.NewString(cs.NewName),
		"changes":  object.NewList(changes),
		"move":     object.Nil,
	}
	if cs.Move != nil {
		m["move"] = object.NewMap(map[string]object.Object{
			"from": object.NewString(cs.Move.From),
			"to":   object.NewString(cs.Move.To),
		})
	}
	return object.NewMap(m)
}

func descriptorToMap(d store.Descriptor) object.Object {
	m := map[string]object.Object{
		"kind": object.NewString(d.Kind.String()),
	}
	if d.Path != "" {
		m["path"] = object.NewString(d.Path)
		m["line"] = object.NewInt(int64(d.Line))
	}
	if d.Builtin != "" {
		m["builtin"] = object.NewString(d.Builtin)
	}
	return object.NewMap(m)
}

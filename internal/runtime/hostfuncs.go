package runtime

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/pysem/internal/assist"
	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/occurrences"
	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/refactor"
	"github.com/jward/pysem/internal/store"
)

// makeEmitFn creates the "emit" host function. Each value is written as
// one JSON line.
//
// emit(value)
func makeEmitFn(w io.Writer) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		data, err := json.Marshal(args[0].Interface())
		if err != nil {
			return object.Errorf("emit: %v", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return object.Errorf("emit: %v", err)
		}
		return object.Nil
	})
}

// makePythonFilesFn creates the "python_files" host function.
//
// python_files() → [path]
func makePythonFilesFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("python_files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("python_files", 0, len(args))
		}
		files, err := core.Project().PythonFiles()
		if err != nil {
			return object.Errorf("python_files: %v", err)
		}
		results := make([]object.Object, 0, len(files))
		for _, f := range files {
			results = append(results, object.NewString(f.Path()))
		}
		return object.NewList(results)
	})
}

// makeResolveFn creates the "resolve" host function.
//
// resolve(path, offset) → {name, kind, description, path, line} or nil
func makeResolveFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("resolve", func(ctx context.Context, args ...object.Object) object.Object {
		path, offset, errObj := pathAndInt("resolve", args)
		if errObj != nil {
			return errObj
		}
		res, err := core.Project().Get(path)
		if err != nil {
			return object.Errorf("resolve: %v", err)
		}
		b, _, err := occurrences.Target(core, res, offset)
		if err != nil {
			return object.Errorf("resolve: %v", err)
		}
		if b == nil {
			return object.Nil
		}
		return bindingToMap(b)
	})
}

// makeScopeAtFn creates the "scope_at" host function.
//
// scope_at(path, line) → {kind, name, start, end, names}
func makeScopeAtFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("scope_at", func(ctx context.Context, args ...object.Object) object.Object {
		path, line, errObj := pathAndInt("scope_at", args)
		if errObj != nil {
			return errObj
		}
		m, errObj := moduleAt("scope_at", core, path)
		if errObj != nil {
			return errObj
		}
		scope := m.Scope().InnerScopeForLine(line)
		names := make([]object.Object, 0)
		for _, name := range scope.SortedNames() {
			names = append(names, object.NewString(name))
		}
		return object.NewMap(map[string]object.Object{
			"kind":  object.NewString(scope.Kind().String()),
			"name":  object.NewString(scope.Name()),
			"start": object.NewInt(int64(scope.Start())),
			"end":   object.NewInt(int64(scope.End())),
			"names": object.NewList(names),
		})
	})
}

// makeDefinitionsFn creates the "definitions" host function. It lists the
// classes and functions a module defines at top level, with the offset of
// each name for use with occurrences or rename.
//
// definitions(path) → [{name, kind, line, offset}]
func makeDefinitionsFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("definitions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("definitions", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("definitions: %v", err)
		}
		m, errObj := moduleAt("definitions", core, path)
		if errObj != nil {
			return errObj
		}
		results := []object.Object{}
		names := m.Scope().Names()
		for _, name := range m.Scope().SortedNames() {
			var line int
			var keyword string
			switch obj := names[name].Object().(type) {
			case *model.Class:
				if obj.Module() != m {
					continue
				}
				line, keyword = obj.Line(), "class"
			case *model.Function:
				if obj.Module() != m {
					continue
				}
				line, keyword = obj.Line(), "def"
			default:
				continue
			}
			offset := nameOffset(m, line, keyword, name)
			if offset < 0 {
				continue
			}
			results = append(results, object.NewMap(map[string]object.Object{
				"name":   object.NewString(name),
				"kind":   object.NewString(names[name].Object().Kind().String()),
				"line":   object.NewInt(int64(line)),
				"offset": object.NewInt(int64(offset)),
			}))
		}
		return object.NewList(results)
	})
}

// nameOffset returns the offset of name after keyword on line, or -1.
func nameOffset(m *model.Module, line int, keyword, name string) int {
	text := m.Lines().Line(line)
	k := strings.Index(text, keyword+" ")
	if k < 0 {
		return -1
	}
	i := strings.Index(text[k+len(keyword):], name)
	if i < 0 {
		return -1
	}
	return m.Lines().LineStart(line) + k + len(keyword) + i
}

// makeOccurrencesFn creates the "occurrences" host function.
//
// occurrences(path, offset) → [{path, start, end}]
func makeOccurrencesFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("occurrences", func(ctx context.Context, args ...object.Object) object.Object {
		path, offset, errObj := pathAndInt("occurrences", args)
		if errObj != nil {
			return errObj
		}
		res, err := core.Project().Get(path)
		if err != nil {
			return object.Errorf("occurrences: %v", err)
		}
		target, name, err := occurrences.Target(core, res, offset)
		if err != nil {
			return object.Errorf("occurrences: %v", err)
		}
		results := []object.Object{}
		if target == nil {
			return object.NewList(results)
		}
		found, err := occurrences.NewFinder(name, []*model.Binding{target}).FindInProject(core)
		if err != nil {
			return object.Errorf("occurrences: %v", err)
		}
		for _, fo := range found {
			for _, occ := range fo.Occurrences {
				results = append(results, object.NewMap(map[string]object.Object{
					"path":  object.NewString(fo.Path),
					"start": object.NewInt(int64(occ.Start)),
					"end":   object.NewInt(int64(occ.End)),
				}))
			}
		}
		return object.NewList(results)
	})
}

// makeRenameFn creates the "rename" host function. The change set is only
// written when apply is true.
//
// rename(path, offset, new_name[, apply]) → {old_name, new_name, changes, move}
func makeRenameFn(r *refactor.Renamer) *object.Builtin {
	return object.NewBuiltin("rename", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 && len(args) != 4 {
			return object.Errorf("rename: expected 3 or 4 arguments, got %d", len(args))
		}
		path, offset, errObj := pathAndInt("rename", args[:2])
		if errObj != nil {
			return errObj
		}
		newName, err := toString(args[2])
		if err != nil {
			return object.Errorf("rename: %v", err)
		}
		apply := false
		if len(args) == 4 {
			b, ok := args[3].(*object.Bool)
			if !ok {
				return object.Errorf("rename: apply must be a bool, got %s", args[3].Type())
			}
			apply = b.Value()
		}

		res, err := r.Core().Project().Get(path)
		if err != nil {
			return object.Errorf("rename: %v", err)
		}
		var cs *refactor.ChangeSet
		if apply {
			cs, err = r.Rename(res, offset, newName)
		} else {
			cs, err = r.Plan(res, offset, newName)
		}
		if err != nil {
			return object.Errorf("rename: %v", err)
		}
		return changeSetToMap(cs)
	})
}

// makeSubclassesFn creates the "subclasses" host function. The class is
// named by the line of its class statement.
//
// subclasses(path, line) → [{name, path, line}]
func makeSubclassesFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("subclasses", func(ctx context.Context, args ...object.Object) object.Object {
		path, line, errObj := pathAndInt("subclasses", args)
		if errObj != nil {
			return errObj
		}
		class, ok := core.DefinitionAt(path, line).(*model.Class)
		if !ok {
			return object.Errorf("subclasses: no class statement at %s:%d", path, line)
		}
		subs, err := core.Subclasses(class)
		if err != nil {
			return object.Errorf("subclasses: %v", err)
		}
		results := make([]object.Object, 0, len(subs))
		for _, sub := range subs {
			results = append(results, object.NewMap(map[string]object.Object{
				"name": object.NewString(sub.Name()),
				"path": object.NewString(sub.Module().Path()),
				"line": object.NewInt(int64(sub.Line())),
			}))
		}
		return object.NewList(results)
	})
}

// makeCompleteFn creates the "complete" host function over a saved file.
//
// complete(path, offset) → [{name, kind, scope}]
func makeCompleteFn(core *pycore.Core) *object.Builtin {
	return object.NewBuiltin("complete", func(ctx context.Context, args ...object.Object) object.Object {
		path, offset, errObj := pathAndInt("complete", args)
		if errObj != nil {
			return errObj
		}
		res, err := core.Project().Get(path)
		if err != nil {
			return object.Errorf("complete: %v", err)
		}
		src, err := res.Read()
		if err != nil {
			return object.Errorf("complete: %v", err)
		}
		props, err := assist.Complete(core, src, offset, res.Path())
		if err != nil {
			return object.Errorf("complete: %v", err)
		}
		results := make([]object.Object, 0, len(props))
		for _, p := range props {
			results = append(results, object.NewMap(map[string]object.Object{
				"name":  object.NewString(p.Name),
				"kind":  object.NewString(p.Kind),
				"scope": object.NewString(p.Scope),
			}))
		}
		return object.NewList(results)
	})
}

// makeCallsFn creates the "calls" host function over traced call records.
//
// calls(path, line) → {args, return} or nil
func makeCallsFn(calls store.CallStore, abs func(string) string) *object.Builtin {
	return object.NewBuiltin("calls", func(ctx context.Context, args ...object.Object) object.Object {
		path, line, errObj := pathAndInt("calls", args)
		if errObj != nil {
			return errObj
		}
		rec, err := calls.LatestCall(abs(path), line)
		if err != nil {
			return object.Errorf("calls: %v", err)
		}
		if rec == nil {
			return object.Nil
		}
		argList := make([]object.Object, 0, len(rec.Args))
		for _, d := range rec.Args {
			argList = append(argList, descriptorToMap(d))
		}
		return object.NewMap(map[string]object.Object{
			"args":   object.NewList(argList),
			"return": descriptorToMap(rec.Return),
		})
	})
}

func moduleAt(fn string, core *pycore.Core, path string) (*model.Module, object.Object) {
	res, err := core.Project().Get(path)
	if err != nil {
		return nil, object.Errorf("%s: %v", fn, err)
	}
	m, err := core.ModuleFor(res)
	if err != nil {
		return nil, object.Errorf("%s: %v", fn, err)
	}
	return m, nil
}

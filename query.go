package pysem

import (
	"context"
	"fmt"

	"github.com/jward/pysem/internal/assist"
	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/occurrences"
	"github.com/jward/pysem/internal/refactor"
)

// Definition describes the object a name resolves to.
type Definition struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
	Line        int    `json:"line,omitempty"`
}

// ScopeInfo describes one scope of a module.
type ScopeInfo struct {
	Kind  string   `json:"kind"`
	Name  string   `json:"name"`
	Start int      `json:"start"`
	End   int      `json:"end"`
	Names []string `json:"names"`
}

func definitionOf(b *model.Binding) *Definition {
	obj := b.Object()
	d := &Definition{
		Name:        model.NameOf(obj),
		Kind:        obj.Kind().String(),
		Description: model.DescribeObject(obj),
	}
	if m, line := b.Location(); m != nil {
		d.Path, d.Line = m.Path(), line
	}
	return d
}

func (e *Engine) module(path string) (*model.Module, error) {
	res, err := e.project.Get(path)
	if err != nil {
		return nil, err
	}
	return e.core.ModuleFor(res)
}

// ResolveAt returns what the name at offset of the saved file at path
// refers to. It returns nil when the offset is not on a resolvable name.
func (e *Engine) ResolveAt(path string, offset int) (*Definition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.module(path)
	if err != nil {
		return nil, fmt.Errorf("pysem: resolve: %w", err)
	}
	b := occurrences.BindingAt(m, offset)
	if b == nil {
		return nil, nil
	}
	return definitionOf(b), nil
}

// ResolveInSource is ResolveAt over unsaved editor text. path places the
// text in the project for imports and may be empty.
func (e *Engine) ResolveInSource(src, path string, offset int) (*Definition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.core.ModuleForSource(src, path)
	if err != nil {
		return nil, fmt.Errorf("pysem: resolve: %w", err)
	}
	b := occurrences.BindingAt(m, offset)
	if b == nil {
		return nil, nil
	}
	return definitionOf(b), nil
}

// ScopeAt returns the innermost scope holding line.
func (e *Engine) ScopeAt(path string, line int) (*ScopeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.module(path)
	if err != nil {
		return nil, fmt.Errorf("pysem: scope: %w", err)
	}
	s := m.Scope().InnerScopeForLine(line)
	return &ScopeInfo{
		Kind:  s.Kind().String(),
		Name:  s.Name(),
		Start: s.Start(),
		End:   s.End(),
		Names: s.SortedNames(),
	}, nil
}

// FindOccurrences returns every place in the project where the name at
// offset refers to the same object. It returns nil when the offset is not
// on a resolvable name.
func (e *Engine) FindOccurrences(path string, offset int, opts ...OccurrenceOption) ([]FileOccurrences, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.project.Get(path)
	if err != nil {
		return nil, fmt.Errorf("pysem: occurrences: %w", err)
	}
	target, name, err := occurrences.Target(e.core, res, offset)
	if err != nil {
		return nil, fmt.Errorf("pysem: occurrences: %w", err)
	}
	if target == nil {
		return nil, nil
	}
	found, err := occurrences.NewFinder(name, []*model.Binding{target}, opts...).FindInProject(e.core)
	if err != nil {
		return nil, fmt.Errorf("pysem: occurrences: %w", err)
	}
	return found, nil
}

// Subclasses returns the classes of the project that name the class at
// offset as a direct base.
func (e *Engine) Subclasses(path string, offset int) ([]Definition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.module(path)
	if err != nil {
		return nil, fmt.Errorf("pysem: subclasses: %w", err)
	}
	b := occurrences.BindingAt(m, offset)
	if b == nil {
		return nil, ErrNotAClass
	}
	class, ok := b.Object().(*model.Class)
	if !ok || class.IsBuiltin() {
		return nil, ErrNotAClass
	}
	subs, err := e.core.Subclasses(class)
	if err != nil {
		return nil, fmt.Errorf("pysem: subclasses: %w", err)
	}
	out := make([]Definition, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Definition{
			Name:        sub.Name(),
			Kind:        sub.Kind().String(),
			Description: model.DescribeObject(sub),
			Path:        sub.Module().Path(),
			Line:        sub.Line(),
		})
	}
	return out, nil
}

// CodeAssist proposes completions for the word before offset in src.
func (e *Engine) CodeAssist(src string, offset int, path string) ([]Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	props, err := assist.Complete(e.core, src, offset, path)
	if err != nil {
		return nil, fmt.Errorf("pysem: complete: %w", err)
	}
	return props, nil
}

// LocalRename renames the name at offset within src alone and returns the
// new text. Nothing on disk changes.
func (e *Engine) LocalRename(src string, offset int, newName string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return refactor.LocalRename(context.Background(), e.core.Env(), src, offset, newName)
}

// PlanRename computes the project-wide rename of the name at offset
// without writing anything.
func (e *Engine) PlanRename(path string, offset int, newName string) (*ChangeSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.project.Get(path)
	if err != nil {
		return nil, fmt.Errorf("pysem: rename: %w", err)
	}
	return e.renamer.Plan(res, offset, newName)
}

// Rename renames the name at offset across the project and writes the
// changes. A renamed module file or package folder is moved.
func (e *Engine) Rename(path string, offset int, newName string) (*ChangeSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.project.Get(path)
	if err != nil {
		return nil, fmt.Errorf("pysem: rename: %w", err)
	}
	return e.renamer.Rename(res, offset, newName)
}

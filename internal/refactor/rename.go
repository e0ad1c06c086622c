// Package refactor renames python bindings in a single buffer or across a
// whole project.
package refactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/occurrences"
	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/internal/scan"
)

// ErrNoBinding is returned when the rename offset resolves to nothing. No
// file is changed.
var ErrNoBinding = errors.New("refactor: no binding at offset")

// ErrInvalidName is returned for a new name that is not an identifier.
var ErrInvalidName = errors.New("refactor: invalid identifier")

// Change is the new content of one file.
type Change struct {
	Path        string `json:"path"`
	Occurrences int    `json:"occurrences"`
	Old         string `json:"-"`
	New         string `json:"-"`
}

// Move renames a module file or package folder.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangeSet is every edit of one rename, computed before anything is
// written.
type ChangeSet struct {
	OldName string   `json:"old_name"`
	NewName string   `json:"new_name"`
	Changes []Change `json:"changes"`
	Move    *Move    `json:"move,omitempty"`
}

// LocalRename renames the binding at offset within src alone and returns
// the rewritten source.
func LocalRename(ctx context.Context, env *model.Env, src string, offset int, newName string) (string, error) {
	if !isIdentifier(newName) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	m, err := model.NewModule(ctx, env, nil, src)
	if err != nil {
		return "", err
	}
	target := occurrences.BindingAt(m, offset)
	if target == nil {
		return "", ErrNoBinding
	}
	oldName := scan.NewWordFinder(src).WordAt(offset)
	finder := occurrences.NewFinder(oldName, []*model.Binding{target})
	return splice(src, finder.Find(m), newName), nil
}

// Renamer renames bindings across the python files of a project.
type Renamer struct {
	core *pycore.Core
	log  *slog.Logger
}

// Option configures a Renamer.
type Option func(*Renamer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renamer) {
		r.log = l
	}
}

// NewRenamer returns a renamer working through core's module cache.
func NewRenamer(core *pycore.Core, opts ...Option) *Renamer {
	r := &Renamer{core: core, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "refactor")
	return r
}

// Core returns the module cache the renamer works on.
func (r *Renamer) Core() *pycore.Core { return r.core }

// Plan computes the changes renaming the binding at offset of res to
// newName. Files without confirmed occurrences get no change.
func (r *Renamer) Plan(res resource.Resource, offset int, newName string) (*ChangeSet, error) {
	if !isIdentifier(newName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	target, oldName, err := occurrences.Target(r.core, res, offset)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNoBinding
	}
	cs := &ChangeSet{OldName: oldName, NewName: newName}

	found, err := occurrences.NewFinder(oldName, []*model.Binding{target}).FindInProject(r.core)
	if err != nil {
		return nil, err
	}
	for _, fo := range found {
		src := fo.Module.Source()
		cs.Changes = append(cs.Changes, Change{
			Path:        fo.Path,
			Occurrences: len(fo.Occurrences),
			Old:         src,
			New:         splice(src, fo.Occurrences, newName),
		})
	}
	cs.Move = moduleMove(target.Object(), newName)
	return cs, nil
}

// moduleMove returns the resource rename for a module or package binding.
func moduleMove(obj model.Object, newName string) *Move {
	res := model.ResourceOf(obj)
	if res == nil {
		return nil
	}
	dir := filepath.Dir(res.Path())
	to := filepath.Join(dir, newName)
	if !res.IsFolder() {
		to += ".py"
	}
	return &Move{From: res.Path(), To: to}
}

// Apply writes a planned change set, then performs its move. Every write
// fires change notifications, so cached modules are rebuilt on next use.
func (r *Renamer) Apply(cs *ChangeSet) error {
	project := r.core.Project()
	for _, ch := range cs.Changes {
		res, err := project.Get(ch.Path)
		if err != nil {
			return err
		}
		if err := res.Write(ch.New); err != nil {
			return err
		}
		r.log.Debug("file rewritten", "path", ch.Path, "occurrences", ch.Occurrences)
	}
	if cs.Move != nil {
		res, err := project.Get(cs.Move.From)
		if err != nil {
			return err
		}
		if _, err := project.Move(res, cs.Move.To); err != nil {
			return err
		}
		r.log.Debug("module moved", "from", cs.Move.From, "to", cs.Move.To)
	}
	return nil
}

// Rename plans and applies a rename.
func (r *Renamer) Rename(res resource.Resource, offset int, newName string) (*ChangeSet, error) {
	cs, err := r.Plan(res, offset, newName)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(cs); err != nil {
		return cs, fmt.Errorf("refactor: apply rename: %w", err)
	}
	return cs, nil
}

// splice replaces every occurrence with name. Occurrences are ordered and
// do not overlap.
func splice(src string, found []occurrences.Occurrence, name string) string {
	var b strings.Builder
	last := 0
	for _, occ := range found {
		b.WriteString(src[last:occ.Start])
		b.WriteString(name)
		last = occ.End
	}
	b.WriteString(src[last:])
	return b.String()
}

func isIdentifier(name string) bool {
	if name == "" || name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !scan.IsIdentifierChar(name[i]) {
			return false
		}
	}
	return true
}

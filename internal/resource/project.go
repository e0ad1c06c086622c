package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// skipDirs are never descended into when listing project python files.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	"node_modules": true,
}

// Project is the root folder of a python code base together with the
// observer registry shared by every Resource it hands out.
type Project struct {
	root   string
	ignore []glob.Glob
	log    *slog.Logger

	mu        sync.Mutex
	observers map[string][]ChangeObserver
}

// ProjectOption configures a Project.
type ProjectOption func(*Project) error

// WithIgnore excludes project-relative paths matching any of the glob
// patterns from PythonFiles and from the watcher.
func WithIgnore(patterns ...string) ProjectOption {
	return func(p *Project) error {
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return fmt.Errorf("resource: ignore pattern %q: %w", pattern, err)
			}
			p.ignore = append(p.ignore, g)
		}
		return nil
	}
}

// WithLogger sets the logger used for skipped entries.
func WithLogger(l *slog.Logger) ProjectOption {
	return func(p *Project) error {
		p.log = l
		return nil
	}
}

// NewProject opens the folder at root as a project.
func NewProject(root string, opts ...ProjectOption) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resource: project root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("resource: project root %s is not a folder", abs)
	}
	p := &Project{
		root:      abs,
		log:       slog.Default(),
		observers: make(map[string][]ChangeObserver),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Root returns the project root folder.
func (p *Project) Root() *Folder {
	return &Folder{base{project: p, path: p.root}}
}

// Abs turns a project-relative path into an absolute one.
func (p *Project) Abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.root, path)
}

// Relative returns path relative to the project root, with forward slashes.
// Paths outside the project are returned unchanged.
func (p *Project) Relative(path string) string {
	rel, err := filepath.Rel(p.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// Get returns the existing resource at path. Paths outside the project
// root are allowed; they back library search roots.
func (p *Project) Get(path string) (Resource, error) {
	abs := p.Abs(path)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if info.IsDir() {
		return &Folder{base{project: p, path: abs}}, nil
	}
	return &File{base{project: p, path: abs}}, nil
}

// GetFolder is Get restricted to folders.
func (p *Project) GetFolder(path string) (*Folder, error) {
	r, err := p.Get(path)
	if err != nil {
		return nil, err
	}
	f, ok := r.(*Folder)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a folder", ErrNotFound, r.Path())
	}
	return f, nil
}

// CreateFile creates a new file holding content.
func (p *Project) CreateFile(path, content string) (*File, error) {
	abs := p.Abs(path)
	if _, err := os.Stat(abs); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, abs)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("resource: create %s: %w", abs, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("resource: create %s: %w", abs, err)
	}
	p.fire(abs)
	return &File{base{project: p, path: abs}}, nil
}

// CreateFolder creates a new folder.
func (p *Project) CreateFolder(path string) (*Folder, error) {
	abs := p.Abs(path)
	if _, err := os.Stat(abs); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("resource: create %s: %w", abs, err)
	}
	p.fire(abs)
	return &Folder{base{project: p, path: abs}}, nil
}

// Move renames r to newPath. Observers of the old path are notified.
func (p *Project) Move(r Resource, newPath string) (Resource, error) {
	dest := p.Abs(newPath)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dest)
	}
	if err := os.Rename(r.Path(), dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, r.Path())
		}
		return nil, fmt.Errorf("resource: move %s: %w", r.Path(), err)
	}
	p.fire(r.Path())
	p.fire(dest)
	return p.Get(dest)
}

// IsIgnored reports whether the project-relative path matches an ignore pattern.
func (p *Project) IsIgnored(path string) bool {
	rel := p.Relative(path)
	for _, g := range p.ignore {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// PythonFiles walks the project and returns every *.py file, skipping
// hidden folders, __pycache__ and ignored paths.
func (p *Project) PythonFiles() ([]*File, error) {
	var files []*File
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			p.log.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != p.root && (strings.HasPrefix(name, ".") || skipDirs[name] || p.IsIgnored(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".py") && !p.IsIgnored(path) {
			files = append(files, &File{base{project: p, path: path}})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resource: walk %s: %w", p.root, err)
	}
	return files, nil
}

// NotifyChanged fires observers for a path changed outside the Resource API,
// e.g. by an editor or a version-control checkout.
func (p *Project) NotifyChanged(path string) {
	p.fire(p.Abs(path))
}

func (p *Project) addObserver(path string, o ChangeObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers[path] = append(p.observers[path], o)
}

func (p *Project) removeObserver(path string, o ChangeObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.observers[path]
	for i, existing := range list {
		if existing == o {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.observers, path)
		return
	}
	p.observers[path] = list
}

// fire notifies the observers of path and then of its parent folder, whose
// children changed. Callbacks run synchronously, outside the lock.
func (p *Project) fire(path string) {
	parent := filepath.Dir(path)
	for _, target := range []string{path, parent} {
		p.mu.Lock()
		list := append([]ChangeObserver(nil), p.observers[target]...)
		p.mu.Unlock()
		if len(list) == 0 {
			continue
		}
		var r Resource
		if target == parent {
			r = &Folder{base{project: p, path: target}}
		} else if info, err := os.Stat(target); err == nil && info.IsDir() {
			r = &Folder{base{project: p, path: target}}
		} else {
			r = &File{base{project: p, path: target}}
		}
		for _, o := range list {
			o.ResourceChanged(r)
		}
		if parent == path {
			break
		}
	}
}

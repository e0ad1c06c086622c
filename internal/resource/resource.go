// Package resource is the file and folder collaborator the semantic engine
// reads source from. Resources are identified by their absolute path; two
// Resource values with the same path are the same resource and share change
// observers.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a path does not name an existing resource.
	ErrNotFound = errors.New("resource: not found")
	// ErrExists is returned when creating a resource whose path is taken.
	ErrExists = errors.New("resource: already exists")
)

// ChangeObserver is notified after a resource is written, removed or moved.
// Observers are compared by identity, so implementations should be pointers.
type ChangeObserver interface {
	ResourceChanged(r Resource)
}

// Resource is a file or folder inside (or outside) a Project.
type Resource interface {
	Path() string
	Name() string
	IsFolder() bool
	Project() *Project
	Parent() Resource

	Read() (string, error)
	Write(content string) error
	Remove() error
	Children() ([]Resource, error)

	AddChangeObserver(o ChangeObserver)
	RemoveChangeObserver(o ChangeObserver)
}

// Equal reports whether a and b denote the same resource.
func Equal(a, b Resource) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Path() == b.Path()
}

type base struct {
	project *Project
	path    string
}

func (b *base) Path() string      { return b.path }
func (b *base) Name() string      { return filepath.Base(b.path) }
func (b *base) Project() *Project { return b.project }

func (b *base) Parent() Resource {
	dir := filepath.Dir(b.path)
	if dir == b.path {
		return nil
	}
	return &Folder{base{project: b.project, path: dir}}
}

func (b *base) AddChangeObserver(o ChangeObserver) {
	b.project.addObserver(b.path, o)
}

func (b *base) RemoveChangeObserver(o ChangeObserver) {
	b.project.removeObserver(b.path, o)
}

func (b *base) String() string { return b.path }

// File is a regular file resource.
type File struct{ base }

func (f *File) IsFolder() bool { return false }

func (f *File) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, f.path)
		}
		return "", fmt.Errorf("resource: read %s: %w", f.path, err)
	}
	return string(data), nil
}

// Write replaces the file content and notifies observers before returning.
func (f *File) Write(content string) error {
	if err := os.WriteFile(f.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("resource: write %s: %w", f.path, err)
	}
	f.project.fire(f.path)
	return nil
}

func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, f.path)
		}
		return fmt.Errorf("resource: remove %s: %w", f.path, err)
	}
	f.project.fire(f.path)
	return nil
}

func (f *File) Children() ([]Resource, error) { return nil, nil }

// Folder is a directory resource.
type Folder struct{ base }

func (f *Folder) IsFolder() bool { return true }

func (f *Folder) Read() (string, error) {
	return "", fmt.Errorf("resource: read %s: is a folder", f.path)
}

func (f *Folder) Write(string) error {
	return fmt.Errorf("resource: write %s: is a folder", f.path)
}

func (f *Folder) Remove() error {
	if _, err := os.Stat(f.path); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, f.path)
	}
	if err := os.RemoveAll(f.path); err != nil {
		return fmt.Errorf("resource: remove %s: %w", f.path, err)
	}
	f.project.fire(f.path)
	return nil
}

// Children lists the folder's entries sorted by name.
func (f *Folder) Children() ([]Resource, error) {
	entries, err := os.ReadDir(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, f.path)
		}
		return nil, fmt.Errorf("resource: list %s: %w", f.path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	children := make([]Resource, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(f.path, e.Name())
		if e.IsDir() {
			children = append(children, &Folder{base{project: f.project, path: p}})
		} else {
			children = append(children, &File{base{project: f.project, path: p}})
		}
	}
	return children, nil
}

// Child returns the named direct child, or ErrNotFound.
func (f *Folder) Child(name string) (Resource, error) {
	return f.project.Get(filepath.Join(f.path, name))
}

// HasChild reports whether the folder contains an entry called name.
func (f *Folder) HasChild(name string) bool {
	_, err := os.Stat(filepath.Join(f.path, name))
	return err == nil
}

// IsPythonFile reports whether r is a regular *.py file.
func IsPythonFile(r Resource) bool {
	return r != nil && !r.IsFolder() && strings.HasSuffix(r.Name(), ".py")
}

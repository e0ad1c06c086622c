package pycore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/resource"
)

// FindModule resolves a dotted module name to its file or package folder.
// Source roots are searched first, then the python path, then the folder of
// from. The first root matching every segment wins.
func (c *Core) FindModule(from *model.Module, name string) (resource.Resource, error) {
	chain, err := c.find(from, name, 0)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1], nil
}

// find returns the resources of every segment of name, outermost package
// first. A positive level makes the import relative to from's folder.
func (c *Core) find(from *model.Module, name string, level int) ([]resource.Resource, error) {
	var segments []string
	if name != "" {
		segments = strings.Split(name, ".")
	}
	if level > 0 {
		return c.findRelative(from, segments, level)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty name", ErrModuleNotFound)
	}
	for _, root := range c.searchRoots(from) {
		if chain := c.walk(root, segments); chain != nil {
			return chain, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
}

func (c *Core) searchRoots(from *model.Module) []string {
	roots := make([]string, 0, len(c.sourceRoots)+len(c.pythonPath)+1)
	roots = append(roots, c.sourceRoots...)
	for _, p := range c.pythonPath {
		roots = append(roots, c.project.Abs(p))
	}
	if from != nil && from.Path() != "" {
		roots = append(roots, filepath.Dir(from.Path()))
	}
	return roots
}

// findRelative resolves "from ..a import b": level 1 is from's own folder,
// each further level one folder up. The folders passed on the way are not
// part of the chain.
func (c *Core) findRelative(from *model.Module, segments []string, level int) ([]resource.Resource, error) {
	if from == nil || from.Path() == "" {
		return nil, fmt.Errorf("%w: relative import outside a file", ErrModuleNotFound)
	}
	dir := filepath.Dir(from.Path())
	for i := 1; i < level; i++ {
		dir = filepath.Dir(dir)
	}
	display := strings.Repeat(".", level) + strings.Join(segments, ".")
	if len(segments) == 0 {
		folder, err := c.project.GetFolder(dir)
		if err != nil || !folder.HasChild("__init__.py") {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, display)
		}
		return []resource.Resource{folder}, nil
	}
	if chain := c.walk(dir, segments); chain != nil {
		return chain, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, display)
}

// walk matches segments below root. Every segment but the last must be a
// package folder; the last may be a package or a .py file.
func (c *Core) walk(root string, segments []string) []resource.Resource {
	chain := make([]resource.Resource, 0, len(segments))
	dir := root
	for i, seg := range segments {
		last := i == len(segments)-1
		if pkg := c.packageAt(filepath.Join(dir, seg)); pkg != nil {
			chain = append(chain, pkg)
			dir = pkg.Path()
			continue
		}
		if !last {
			return nil
		}
		res, err := c.project.Get(filepath.Join(dir, seg+".py"))
		if err != nil || res.IsFolder() {
			return nil
		}
		chain = append(chain, res)
	}
	return chain
}

func (c *Core) packageAt(path string) *resource.Folder {
	folder, err := c.project.GetFolder(path)
	if err != nil || !folder.HasChild("__init__.py") {
		return nil
	}
	return folder
}

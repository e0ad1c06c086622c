package pycore

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jward/pysem/internal/model"
)

var classHeader = regexp.MustCompile(`(?m)^[ \t]*class[ \t]+\w`)

// Subclasses returns the project classes that list class among their
// direct bases, ordered by path and line. Files are prefiltered by text so
// only modules holding a class statement are parsed.
func (c *Core) Subclasses(class *model.Class) ([]*model.Class, error) {
	files, err := c.project.PythonFiles()
	if err != nil {
		return nil, err
	}
	var found []*model.Class
	for _, f := range files {
		src, err := f.Read()
		if err != nil {
			c.log.Warn("subclass scan skipped file", "path", f.Path(), "error", err)
			continue
		}
		lines := headerLines(src)
		if len(lines) == 0 {
			continue
		}
		module, err := c.ModuleFor(f)
		if err != nil {
			c.log.Debug("subclass scan skipped module", "path", f.Path(), "error", err)
			continue
		}
		for _, line := range lines {
			owner, ok := module.Scope().InnerScopeForLine(line).Owner().(*model.Class)
			if !ok || owner.Scope().Start() != line {
				continue
			}
			if owner.IsSubclassOf(class) {
				found = append(found, owner)
			}
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Module().Path() != found[j].Module().Path() {
			return found[i].Module().Path() < found[j].Module().Path()
		}
		return found[i].Line() < found[j].Line()
	})
	return found, nil
}

// headerLines returns the 1-based lines matching a class statement.
func headerLines(src string) []int {
	matches := classHeader.FindAllStringIndex(src, -1)
	lines := make([]int, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, strings.Count(src[:m[0]], "\n")+1)
	}
	return lines
}

// DefinitionAt returns the class or function whose statement starts at line
// of the file at path, or nil.
func (c *Core) DefinitionAt(path string, line int) model.Object {
	res, err := c.project.Get(path)
	if err != nil {
		return nil
	}
	m, err := c.ModuleFor(res)
	if err != nil {
		return nil
	}
	scope := m.Scope().InnerScopeForLine(line)
	if scope == m.Scope() || scope.Start() != line {
		return nil
	}
	return scope.Owner()
}

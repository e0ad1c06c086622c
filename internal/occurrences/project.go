package occurrences

import (
	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/internal/scan"
)

// FileOccurrences are the confirmed occurrences in one project file.
type FileOccurrences struct {
	Path        string        `json:"path"`
	Module      *model.Module `json:"-"`
	Occurrences []Occurrence  `json:"occurrences"`
}

// Target returns the binding at offset of res and the name written there.
// The binding is nil when the offset resolves to nothing.
func Target(core *pycore.Core, res resource.Resource, offset int) (*model.Binding, string, error) {
	m, err := core.ModuleFor(res)
	if err != nil {
		return nil, "", err
	}
	b := BindingAt(m, offset)
	if b == nil {
		return nil, "", nil
	}
	return b, scan.NewWordFinder(m.Source()).WordAt(offset), nil
}

// FindInProject runs f over every python file of the project. Files that do
// not parse are skipped. Files without occurrences are left out.
func (f *Finder) FindInProject(core *pycore.Core) ([]FileOccurrences, error) {
	files, err := core.Project().PythonFiles()
	if err != nil {
		return nil, err
	}
	var out []FileOccurrences
	for _, file := range files {
		m, err := core.ModuleFor(file)
		if err != nil {
			core.Logger().Warn("occurrence scan skipped unparsable file", "path", file.Path(), "error", err)
			continue
		}
		found := f.Find(m)
		if len(found) == 0 {
			continue
		}
		out = append(out, FileOccurrences{Path: file.Path(), Module: m, Occurrences: found})
	}
	return out, nil
}

package occurrences

import (
	"iter"
	"regexp"
	"slices"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/scan"
)

// Occurrence is a confirmed reference, as byte offsets [Start, End).
type Occurrence struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Option configures a Finder.
type Option func(*Finder)

// WithFunctionCalls keeps only call sites. Def headers are not calls.
func WithFunctionCalls() Option {
	return func(f *Finder) { f.calls = true }
}

// WithWholePrimary reports the whole dotted primary ending in the name
// and skips the names of def and class headers.
func WithWholePrimary() Option {
	return func(f *Finder) { f.wholePrimary = true }
}

// WithoutImports skips occurrences inside import statements.
func WithoutImports() Option {
	return func(f *Finder) { f.skipImports = true }
}

// Finder finds the occurrences of name that resolve to one of its target
// bindings. String literals and comments never match.
type Finder struct {
	name    string
	targets []*model.Binding
	pattern *regexp.Regexp
	group   int

	calls        bool
	wholePrimary bool
	skipImports  bool
}

// quoted matches python string literals, triple-quoted forms first.
const quoted = `'''[\s\S]*?'''|"""[\s\S]*?"""|'(?:[^'\\\n]|\\.)*'|"(?:[^"\\\n]|\\.)*"`

// NewFinder returns a finder for name confirmed against targets.
func NewFinder(name string, targets []*model.Binding, opts ...Option) *Finder {
	f := &Finder{
		name:    name,
		targets: targets,
		pattern: regexp.MustCompile(`(#[^\n]*)|(\b[rRbBuUfF]{1,2}(?:` + quoted + `)|` + quoted + `)|(?P<occurrence>\b` + regexp.QuoteMeta(name) + `\b)`),
	}
	f.group = f.pattern.SubexpIndex("occurrence")
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Occurrences yields the confirmed occurrences in m from left to right.
func (f *Finder) Occurrences(m *model.Module) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		src := m.Source()
		wf := scan.NewWordFinder(src)
		for _, loc := range f.pattern.FindAllStringSubmatchIndex(src, -1) {
			start, end := loc[2*f.group], loc[2*f.group+1]
			if start < 0 {
				continue
			}
			occ, ok := f.confirm(m, wf, start, end)
			if !ok {
				continue
			}
			if !yield(occ) {
				return
			}
		}
	}
}

// Find collects Occurrences.
func (f *Finder) Find(m *model.Module) []Occurrence {
	return slices.Collect(f.Occurrences(m))
}

func (f *Finder) confirm(m *model.Module, wf *scan.WordFinder, start, end int) (Occurrence, bool) {
	if f.calls && (!wf.IsFunctionCall(start) || wf.IsDefinitionName(start)) {
		return Occurrence{}, false
	}
	if f.wholePrimary && wf.IsDefinitionName(start) {
		return Occurrence{}, false
	}
	if f.skipImports && scan.IsImportStatement(m.Lines(), start) {
		return Occurrence{}, false
	}
	b := BindingAt(m, start)
	if b == nil || !f.matches(b) {
		return Occurrence{}, false
	}
	if f.wholePrimary {
		start, end = wf.PrimaryRange(start)
	}
	return Occurrence{Start: start, End: end}, true
}

func (f *Finder) matches(b *model.Binding) bool {
	for _, t := range f.targets {
		if model.Equivalent(t, b) {
			return true
		}
	}
	return false
}

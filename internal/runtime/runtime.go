// Package runtime hosts Risor automation scripts over a project's semantic
// model. Scripts see host functions for resolution, occurrence search,
// renaming, scope inspection, subclass queries and traced call records.
package runtime

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/refactor"
	"github.com/jward/pysem/internal/store"
)

// Runtime embeds a Risor VM and exposes a module cache and its project to
// scripts.
type Runtime struct {
	core       *pycore.Core
	renamer    *refactor.Renamer
	calls      store.CallStore
	scriptsDir string
	fsys       fs.FS
	out        io.Writer
	log        *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts, and the modules they import, from fsys
// rather than scriptsDir.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithCallStore exposes traced call records through the calls function.
func WithCallStore(s store.CallStore) RuntimeOption {
	return func(r *Runtime) {
		r.calls = s
	}
}

// WithOutput sets where emit writes. The default is os.Stdout.
func WithOutput(w io.Writer) RuntimeOption {
	return func(r *Runtime) {
		r.out = w
	}
}

// WithLogger sets the logger behind the log global.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime over core, which may be nil for scripts that
// only need the language itself, loading scripts from scriptsDir.
func NewRuntime(core *pycore.Core, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		core:       core,
		scriptsDir: scriptsDir,
		out:        os.Stdout,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "script")
	if core != nil {
		r.renamer = refactor.NewRenamer(core, refactor.WithLogger(r.log))
	}
	return r
}

// RunScript runs the script at scriptPath. extraGlobals are added to the
// host functions and may shadow them.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource runs source as an unnamed script.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter resolves script imports against the same source as
// LoadScript. It is nil when scripts come from neither.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript returns the source of a .risor file. Names are looked up in
// the configured fs.FS first and fall back to disk, relative to scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err == nil {
			return string(data), nil
		}
		if _, statErr := os.Stat(path); statErr != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals maps host function names to their builtins.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"log":  mustProxy(&logObject{log: r.log}),
		"emit": makeEmitFn(r.out),
	}

	if r.core != nil {
		globals["root"] = object.NewString(r.core.Project().Root().Path())
		globals["python_files"] = makePythonFilesFn(r.core)
		globals["resolve"] = makeResolveFn(r.core)
		globals["scope_at"] = makeScopeAtFn(r.core)
		globals["definitions"] = makeDefinitionsFn(r.core)
		globals["occurrences"] = makeOccurrencesFn(r.core)
		globals["rename"] = makeRenameFn(r.renamer)
		globals["subclasses"] = makeSubclassesFn(r.core)
		globals["complete"] = makeCompleteFn(r.core)
	}
	if r.calls != nil {
		abs := filepath.Clean
		if r.core != nil {
			abs = r.core.Project().Abs
		}
		globals["calls"] = makeCallsFn(r.calls, abs)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log *slog.Logger
}

func (l *logObject) Info(msg string)  { l.log.Info(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg) }
func (l *logObject) Error(msg string) { l.log.Error(msg) }

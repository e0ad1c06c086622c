package pysem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/jward/pysem/internal/config"
	"github.com/jward/pysem/internal/dynamicoi"
	"github.com/jward/pysem/internal/observability"
	"github.com/jward/pysem/internal/pycore"
	"github.com/jward/pysem/internal/refactor"
	"github.com/jward/pysem/internal/resource"
	"github.com/jward/pysem/internal/runtime"
	"github.com/jward/pysem/internal/store"
)

// Engine is the semantic model of one python project: its module cache,
// the call records of traced runs and the script host over both.
//
// The model is single threaded. Engine serializes every entry point, so an
// Engine may be shared between goroutines.
type Engine struct {
	mu sync.Mutex

	project *resource.Project
	core    *pycore.Core
	renamer *refactor.Renamer
	calls   *store.Store
	runtime *runtime.Runtime
	log     *slog.Logger

	sourceRoots []string
	pythonPath  []string
	ignore      []string
	python      string
	dbPath      string
	scriptsDir  string
	scriptsFS   fs.FS
	scriptOut   io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig applies a loaded pysem.toml. Options after it override its
// values.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.sourceRoots = cfg.Project.SourceRoots
		e.pythonPath = cfg.Project.PythonPath
		e.ignore = cfg.Project.Ignore
		e.python = cfg.Dynamic.Python
		e.dbPath = cfg.Dynamic.Database
	}
}

// WithSourceRoots sets the project-relative folders searched first for
// imports. The default is the project root.
func WithSourceRoots(roots ...string) Option {
	return func(e *Engine) {
		e.sourceRoots = roots
	}
}

// WithPythonPath sets the library folders searched after the source roots.
func WithPythonPath(paths ...string) Option {
	return func(e *Engine) {
		e.pythonPath = paths
	}
}

// WithIgnore excludes project paths matching the glob patterns from
// project-wide scans.
func WithIgnore(patterns ...string) Option {
	return func(e *Engine) {
		e.ignore = patterns
	}
}

// WithPython sets the interpreter used for traced runs.
func WithPython(path string) Option {
	return func(e *Engine) {
		e.python = path
	}
}

// WithDatabase stores call records of traced runs in the SQLite file at
// path, relative to the project root unless absolute. The default keeps
// them in memory for the Engine's lifetime.
func WithDatabase(path string) Option {
	return func(e *Engine) {
		e.dbPath = path
	}
}

// WithScriptsFS loads Risor scripts from fsys instead of a folder on disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads Risor scripts from dir.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithScriptOutput sets where scripts emit to.
func WithScriptOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.scriptOut = w
	}
}

// WithLogger sets the logger of the Engine and its subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New opens the project rooted at root.
func New(root string, opts ...Option) (*Engine, error) {
	e := &Engine{
		python: "python3",
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	project, err := resource.NewProject(root, resource.WithIgnore(e.ignore...), resource.WithLogger(e.log))
	if err != nil {
		return nil, fmt.Errorf("pysem: open project: %w", err)
	}
	e.project = project

	dbPath := (&config.Config{Dynamic: config.Dynamic{Database: e.dbPath}}).DatabasePath(project.Root().Path())
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("pysem: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("pysem: migrate: %w", err)
	}
	e.calls = s

	var coreOpts []pycore.Option
	if len(e.sourceRoots) > 0 {
		coreOpts = append(coreOpts, pycore.WithSourceRoots(e.sourceRoots...))
	}
	coreOpts = append(coreOpts, pycore.WithPythonPath(e.pythonPath...), pycore.WithLogger(e.log))
	e.core = pycore.New(project, coreOpts...)
	e.core.SetOracle(pycore.NewOracle(e.core, s))
	e.renamer = refactor.NewRenamer(e.core, refactor.WithLogger(e.log))

	rtOpts := []runtime.RuntimeOption{runtime.WithCallStore(s), runtime.WithLogger(e.log)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	if e.scriptOut != nil {
		rtOpts = append(rtOpts, runtime.WithOutput(e.scriptOut))
	}
	e.runtime = runtime.NewRuntime(e.core, e.scriptsDir, rtOpts...)
	return e, nil
}

// Close drops the module cache and closes the call-record store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.core.Close()
	return e.calls.Close()
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.project.Root().Path() }

// Store returns the call-record store.
func (e *Engine) Store() *Store { return e.calls }

// NotifyChanged drops cached state for a path edited outside the Engine.
func (e *Engine) NotifyChanged(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.project.NotifyChanged(path)
}

// Watch feeds file changes on disk into the module cache until ctx is
// done. onChange, if not nil, sees each debounced batch after it has been
// applied.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, onChange func(paths []string)) error {
	w, err := resource.NewWatcher(e.project, debounce)
	if err != nil {
		return fmt.Errorf("pysem: watch: %w", err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		return fmt.Errorf("pysem: watch: %w", err)
	}
	e.log.Info("watching project", "root", e.Root())
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-w.Changes():
			sort.Strings(paths)
			e.mu.Lock()
			for _, p := range paths {
				e.project.NotifyChanged(p)
			}
			e.mu.Unlock()
			observability.WatcherEventsTotal.Inc()
			e.log.Debug("changes applied", "paths", len(paths))
			if onChange != nil {
				onChange(paths)
			}
		}
	}
}

// TraceResult summarizes a traced run.
type TraceResult struct {
	Records  int      `json:"records"`
	Paths    []string `json:"paths"`
	ExitCode int      `json:"exit_code"`
}

// TraceOption configures one traced run.
type TraceOption func(*traceConfig)

type traceConfig struct {
	stdout, stderr io.Writer
	onCall         func(*Record)
}

// TraceOutput forwards the traced module's standard streams.
func TraceOutput(stdout, stderr io.Writer) TraceOption {
	return func(c *traceConfig) {
		c.stdout, c.stderr = stdout, stderr
	}
}

// OnCall sees every call record as it arrives, on the goroutine reading
// the trace stream.
func OnCall(fn func(*Record)) TraceOption {
	return func(c *traceConfig) {
		c.onCall = fn
	}
}

// RunTraced executes the python module at path under the tracer and keeps
// what its functions received and returned. Modules whose functions were
// traced are rebuilt on next use so the records take effect. A nonzero
// exit of the module is reported in the result, not as an error.
func (e *Engine) RunTraced(ctx context.Context, path string, opts ...TraceOption) (*TraceResult, error) {
	var tc traceConfig
	for _, opt := range opts {
		opt(&tc)
	}
	tracer := dynamicoi.NewTracer(
		dynamicoi.WithPython(e.python),
		dynamicoi.WithStore(e.calls),
		dynamicoi.WithOutput(tc.stdout, tc.stderr),
		dynamicoi.WithLogger(e.log),
	)

	var mu sync.Mutex
	traced := make(map[string]bool)
	proc, err := tracer.Run(ctx, e.project.Abs(path), func(rec *dynamicoi.Record) {
		mu.Lock()
		traced[rec.Path] = true
		mu.Unlock()
		if tc.onCall != nil {
			tc.onCall(rec)
		}
	})
	if err != nil {
		return nil, err
	}

	result := &TraceResult{}
	waitErr := proc.Wait()
	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case waitErr != nil:
		return nil, waitErr
	}
	result.Records = proc.Records()

	mu.Lock()
	for p := range traced {
		result.Paths = append(result.Paths, p)
	}
	mu.Unlock()
	sort.Strings(result.Paths)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range result.Paths {
		e.project.NotifyChanged(p)
	}
	return result, nil
}

// RunScript runs a Risor script with the Engine's host functions.
func (e *Engine) RunScript(ctx context.Context, path string, globals map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.RunScript(ctx, path, globals)
}

// RunSource runs Risor source with the Engine's host functions.
func (e *Engine) RunSource(ctx context.Context, source string, globals map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.RunSource(ctx, source, globals)
}

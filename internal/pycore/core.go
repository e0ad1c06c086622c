// Package pycore resolves python imports to project resources and caches
// the module objects built from them. Cache entries are dropped when their
// resource changes, together with every module that imported through them.
package pycore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/jward/pysem/internal/model"
	"github.com/jward/pysem/internal/observability"
	"github.com/jward/pysem/internal/resource"
)

// ErrModuleNotFound is returned when a dotted name matches no module on any
// search root.
var ErrModuleNotFound = errors.New("pycore: module not found")

// Option configures a Core.
type Option func(*Core)

// WithSourceRoots sets the project folders searched first for imports.
// Relative paths are taken from the project root. The default is the
// project root itself.
func WithSourceRoots(paths ...string) Option {
	return func(c *Core) {
		c.sourceRoots = paths
	}
}

// WithPythonPath sets library folders searched after the source roots.
func WithPythonPath(paths ...string) Option {
	return func(c *Core) {
		c.pythonPath = paths
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) {
		c.log = l
	}
}

// WithRegistry shares a type registry instead of creating one.
func WithRegistry(r *model.Registry) Option {
	return func(c *Core) {
		c.env.Registry = r
	}
}

type entry struct {
	res        resource.Resource
	object     model.Object
	dependants map[string]resource.Resource
	observer   *changeObserver
}

// changeObserver turns resource notifications into invalidation messages.
type changeObserver struct {
	core *Core
	path string
}

func (o *changeObserver) ResourceChanged(resource.Resource) {
	o.core.post(o.path)
}

// Core is the module resolver and cache of one project. Like the model it
// serves, it is not safe for concurrent use.
type Core struct {
	project     *resource.Project
	env         *model.Env
	log         *slog.Logger
	sourceRoots []string
	pythonPath  []string

	entries  map[string]*entry
	queue    []string
	draining bool
}

// Compile-time check: *Core satisfies model.ModuleLoader.
var _ model.ModuleLoader = (*Core)(nil)

// New creates the cache for project.
func New(project *resource.Project, opts ...Option) *Core {
	c := &Core{
		project: project,
		env:     &model.Env{},
		log:     slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.env.Registry == nil {
		c.env.Registry = model.NewRegistry()
	}
	c.env.Registry.OnCircularInference(observability.CircularInference.Inc)
	c.log = c.log.With("component", "pycore")
	c.env.Loader = c
	c.env.Logger = c.log
	if len(c.sourceRoots) == 0 {
		c.sourceRoots = []string{"."}
	}
	for i, root := range c.sourceRoots {
		c.sourceRoots[i] = project.Abs(root)
	}
	return c
}

// Project returns the project the cache serves.
func (c *Core) Project() *resource.Project { return c.project }

// Env returns the model environment shared by every cached module.
func (c *Core) Env() *model.Env { return c.env }

// Logger returns the cache's logger.
func (c *Core) Logger() *slog.Logger { return c.log }

// Registry returns the type registry.
func (c *Core) Registry() *model.Registry { return c.env.Registry }

// SetOracle installs the runtime oracle consulted for unknown results.
func (c *Core) SetOracle(o model.RuntimeOracle) { c.env.Oracle = o }

// Load returns the module object for a file or the package object for a
// folder, parsing it on first access. Parse failures and resource errors
// are returned unchanged.
func (c *Core) Load(res resource.Resource) (model.Object, error) {
	path := res.Path()
	if e, ok := c.entries[path]; ok {
		return e.object, nil
	}
	var (
		obj  model.Object
		init *model.Module
	)
	if res.IsFolder() {
		pkg, err := c.loadPackage(res)
		if err != nil {
			return nil, err
		}
		obj, init = pkg, pkg.Init()
	} else {
		m, err := c.parse(res)
		if err != nil {
			return nil, err
		}
		obj = m
	}
	e := &entry{
		res:        res,
		object:     obj,
		dependants: make(map[string]resource.Resource),
		observer:   &changeObserver{core: c, path: path},
	}
	res.AddChangeObserver(e.observer)
	c.entries[path] = e
	if init != nil {
		// A change below __init__.py reaches the package through it.
		c.addDependant(init.Resource(), res)
	}
	observability.ModulesLoaded.Inc()
	c.log.Debug("module loaded", "path", path)
	return obj, nil
}

func (c *Core) parse(res resource.Resource) (*model.Module, error) {
	src, err := res.Read()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	m, err := model.NewModule(context.Background(), c.env, res, src)
	observability.ParsingDuration.Observe(time.Since(start).Seconds())
	return m, err
}

func (c *Core) loadPackage(folder resource.Resource) (*model.Package, error) {
	f, ok := folder.(*resource.Folder)
	if !ok {
		return nil, fmt.Errorf("pycore: %s is not a folder", folder.Path())
	}
	var init *model.Module
	if f.HasChild("__init__.py") {
		res, err := f.Child("__init__.py")
		if err != nil {
			return nil, err
		}
		init, err = c.ModuleFor(res)
		if err != nil {
			c.log.Warn("package __init__ unusable", "path", res.Path(), "error", err)
			init = nil
		}
	}
	return model.NewPackage(c.env, folder, init), nil
}

// ModuleFor returns the module for a python file.
func (c *Core) ModuleFor(res resource.Resource) (*model.Module, error) {
	obj, err := c.Load(res)
	if err != nil {
		return nil, err
	}
	m, ok := obj.(*model.Module)
	if !ok {
		return nil, fmt.Errorf("pycore: %s is not a module", res.Path())
	}
	return m, nil
}

// ModuleForSource parses editor text that is not backed by a saved file.
// The module is not cached. Imports resolve from path's folder when path is
// set, else from the project root.
func (c *Core) ModuleForSource(src string, path string) (*model.Module, error) {
	var res resource.Resource
	if path != "" {
		res = &bufferResource{Resource: c.project.Root(), path: c.project.Abs(path)}
	}
	return model.NewModule(context.Background(), c.env, res, src)
}

// Import resolves a dotted name for the module from and records from as a
// dependant of every module on the resolved path.
func (c *Core) Import(from *model.Module, name string, level int) (model.Object, error) {
	chain, err := c.find(from, name, level)
	if err != nil {
		return nil, err
	}
	var obj model.Object
	for _, res := range chain {
		obj, err = c.Load(res)
		if err != nil {
			return nil, fmt.Errorf("pycore: import %s: %w", name, err)
		}
		if from != nil && isSaved(from.Resource()) {
			c.addDependant(res, from.Resource())
		}
	}
	return obj, nil
}

func (c *Core) addDependant(target, dependant resource.Resource) {
	e, ok := c.entries[target.Path()]
	if !ok || resource.Equal(target, dependant) {
		return
	}
	e.dependants[dependant.Path()] = dependant
}

// IsCached reports whether res has a live cache entry.
func (c *Core) IsCached(res resource.Resource) bool {
	_, ok := c.entries[res.Path()]
	return ok
}

// Dependants returns the sorted paths recorded as importing through res.
func (c *Core) Dependants(res resource.Resource) []string {
	e, ok := c.entries[res.Path()]
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(e.dependants))
	for p := range e.dependants {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Invalidate drops the entry for res and everything depending on it.
func (c *Core) Invalidate(res resource.Resource) {
	c.post(res.Path())
}

// post queues an invalidation message and drains the queue unless a drain
// is already running further up the stack, in which case that drain picks
// the message up. Each path is dropped at most once per drain, so import
// cycles terminate.
func (c *Core) post(path string) {
	c.queue = append(c.queue, path)
	if c.draining {
		return
	}
	c.draining = true
	defer func() { c.draining = false }()

	seen := make(map[string]bool)
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		c.drop(next)
	}
}

func (c *Core) drop(path string) {
	e, ok := c.entries[path]
	if !ok {
		return
	}
	delete(c.entries, path)
	e.res.RemoveChangeObserver(e.observer)
	observability.ModuleInvalidations.Inc()
	c.log.Debug("module invalidated", "path", path, "dependants", len(e.dependants))
	for dep := range e.dependants {
		c.queue = append(c.queue, dep)
	}
}

// Close unregisters every change observer and empties the cache.
func (c *Core) Close() {
	for path, e := range c.entries {
		e.res.RemoveChangeObserver(e.observer)
		delete(c.entries, path)
	}
}

// bufferResource stands in for an unsaved editor buffer: it has a path for
// relative imports but cannot be read or observed.
type bufferResource struct {
	resource.Resource
	path string
}

func (b *bufferResource) Path() string   { return b.path }
func (b *bufferResource) Name() string   { return filepath.Base(b.path) }
func (b *bufferResource) IsFolder() bool { return false }

func (b *bufferResource) Parent() resource.Resource {
	parent, err := b.Project().Get(filepath.Dir(b.path))
	if err != nil {
		return nil
	}
	return parent
}

func (b *bufferResource) AddChangeObserver(resource.ChangeObserver)    {}
func (b *bufferResource) RemoveChangeObserver(resource.ChangeObserver) {}

func isSaved(res resource.Resource) bool {
	if res == nil {
		return false
	}
	_, buffer := res.(*bufferResource)
	return !buffer
}

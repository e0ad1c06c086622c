package dynamicoi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jward/pysem/internal/observability"
	"github.com/jward/pysem/internal/store"
)

//go:embed tracer.py
var tracerSource []byte

// connectGrace is how long a finished child's pending connection may take
// to be accepted.
const connectGrace = 200 * time.Millisecond

// Tracer starts traced runs of python modules.
type Tracer struct {
	python string
	store  *store.Store
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithPython sets the interpreter. The default is python3 on PATH.
func WithPython(path string) Option {
	return func(t *Tracer) {
		t.python = path
	}
}

// WithStore persists the records of each run. Records are buffered per
// run and committed when the run is waited for.
func WithStore(s *store.Store) Option {
	return func(t *Tracer) {
		t.store = s
	}
}

// WithOutput forwards the child's standard streams.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(t *Tracer) {
		t.stdout, t.stderr = stdout, stderr
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) {
		t.log = l
	}
}

// NewTracer returns a Tracer.
func NewTracer(opts ...Option) *Tracer {
	t := &Tracer{python: "python3", log: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("component", "dynamicoi")
	return t
}

// Process is a running traced child.
type Process struct {
	cmd      *exec.Cmd
	listener *Listener
	script   string
	batch    *store.BatchedStore
	store    *store.Store
	runID    int64
	log      *slog.Logger

	waitOnce sync.Once
	waitErr  error
}

// Run executes the module at path under the tracer. onCall, if not nil,
// sees every record as it arrives; the newest record of a call site
// replaces older ones in the store. A child that dies or never connects
// yields no records.
func (t *Tracer) Run(ctx context.Context, path string, onCall CallFunc) (*Process, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("dynamicoi: %w", err)
	}
	script, err := writeTracer()
	if err != nil {
		return nil, err
	}
	p := &Process{script: script, store: t.store, log: t.log}
	if t.store != nil {
		p.batch = store.NewBatchedStore(t.store)
		p.runID, err = t.store.InsertRun(&store.Run{ModulePath: abs})
		if err != nil {
			os.Remove(script)
			return nil, err
		}
	}
	ln, err := Listen(p.handler(onCall), t.log)
	if err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("dynamicoi: listen: %w", err)
	}
	p.listener = ln

	cmd := exec.CommandContext(ctx, t.python, script, strconv.Itoa(ln.Port()), abs)
	cmd.Dir = filepath.Dir(abs)
	cmd.Stdout, cmd.Stderr = t.stdout, t.stderr
	if err := cmd.Start(); err != nil {
		ln.Stop(0)
		ln.Wait()
		os.Remove(script)
		return nil, fmt.Errorf("dynamicoi: start %s: %w", t.python, err)
	}
	p.cmd = cmd
	t.log.Debug("traced run started", "module", abs, "pid", cmd.Process.Pid, "port", ln.Port())
	return p, nil
}

func writeTracer() (string, error) {
	f, err := os.CreateTemp("", "pysem-tracer-*.py")
	if err != nil {
		return "", fmt.Errorf("dynamicoi: tracer script: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(tracerSource); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("dynamicoi: tracer script: %w", err)
	}
	return f.Name(), nil
}

func (p *Process) handler(onCall CallFunc) CallFunc {
	return func(rec *Record) {
		observability.TracedCalls.Inc()
		p.log.Debug("call traced", "path", rec.Path, "line", rec.Line, "args", len(rec.Args))
		if p.batch != nil {
			cr := rec.CallRecord()
			cr.RunID = p.runID
			if err := p.batch.PutCall(cr); err != nil {
				p.log.Warn("call record dropped", "path", rec.Path, "line", rec.Line, "error", err)
			}
		}
		if onCall != nil {
			onCall(rec)
		}
	}
}

// Calls returns the records of this run, buffered ones included, or nil
// when the tracer has no store.
func (p *Process) Calls() store.CallStore {
	if p.batch == nil {
		return nil
	}
	return p.batch
}

// Pid returns the child's process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Records returns the number of records received so far.
func (p *Process) Records() int { return p.listener.Records() }

// Kill stops the child. Its connection closes and the listener drains.
func (p *Process) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Wait waits for the child to exit, then joins the listener and commits the
// run's records. The child's exit status is returned as *exec.ExitError.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		exitErr := p.cmd.Wait()
		p.listener.Stop(connectGrace)
		if err := p.listener.Wait(); err != nil {
			p.log.Warn("trace stream ended early", "error", err)
		}
		os.Remove(p.script)
		if err := p.commit(); err != nil {
			p.waitErr = err
			return
		}
		p.waitErr = exitErr
	})
	return p.waitErr
}

func (p *Process) commit() error {
	if p.store == nil {
		return nil
	}
	// Records of an older version of a file no longer match its lines.
	hashes := make(map[string]string)
	for _, path := range p.batch.Paths() {
		src, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		hashes[path] = store.ContentHash(string(src))
		if _, err := p.store.PurgeStale(path, hashes[path]); err != nil {
			return err
		}
	}
	n, err := p.store.CommitBatch(p.batch)
	if err != nil {
		return err
	}
	for path, hash := range hashes {
		if err := p.store.SetSourceHash(path, hash); err != nil {
			return err
		}
	}
	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.log.Debug("traced run finished", "records", n, "exit", exitCode)
	return p.store.FinishRun(p.runID, exitCode, n)
}

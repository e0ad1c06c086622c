package pysem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/jward/pysem/internal/pyast"
)

// SyntaxError is a project file the parser rejects.
type SyntaxError struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Check parses every python file of the project and reports the ones that
// do not parse, ordered by path. Files are parsed in parallel outside the
// module cache, so Check neither fills nor invalidates it.
func (e *Engine) Check(ctx context.Context) ([]SyntaxError, error) {
	files, err := e.project.PythonFiles()
	if err != nil {
		return nil, fmt.Errorf("pysem: check: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	numWorkers := max(min(runtime.NumCPU(), len(files)), 1)
	workCh := make(chan string, len(files))
	for _, f := range files {
		workCh <- f.Path()
	}
	close(workCh)

	type result struct {
		path string
		perr *pyast.ParseError
		err  error
	}
	resultCh := make(chan result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range workCh {
				if ctx.Err() != nil {
					resultCh <- result{path: path, err: ctx.Err()}
					continue
				}
				perr, err := parseFile(ctx, path)
				resultCh <- result{path: path, perr: perr, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var out []SyntaxError
	var errs []error
	for res := range resultCh {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", res.path, res.err))
			continue
		}
		if res.perr != nil {
			out = append(out, SyntaxError{Path: res.path, Line: res.perr.Line, Column: res.perr.Column})
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("pysem: check had %d error(s): %w", len(errs), errors.Join(errs...))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	e.log.Debug("project checked", "files", len(files), "syntax_errors", len(out))
	return out, nil
}

func parseFile(ctx context.Context, path string) (*pyast.ParseError, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree, err := pyast.Parse(ctx, src)
	var perr *pyast.ParseError
	if errors.As(err, &perr) {
		return perr, nil
	}
	if err != nil {
		return nil, err
	}
	tree.Close()
	return nil, nil
}

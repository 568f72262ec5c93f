// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package pycache

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of compiling one source.
type Result struct {
	Source string
	// Path is the artifact path, empty on error.
	Path string
	Err  error
}

// CompileAll compiles sources with at most jobs concurrent compilations, jobs
// less than 1 means GOMAXPROCS. Sources naming the same file are compiled
// once. Results are in the order of the first occurrence of each source, the
// returned error joins the errors of failed sources or is the context error.
func CompileAll(ctx context.Context, sources []string, opts Options,
	jobs int) ([]Result, error) {

	if jobs < 1 {
		jobs = runtime.GOMAXPROCS(0)
	}
	opts = opts.withDefaults()

	seen := make(map[string]struct{}, len(sources))
	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		id := filepath.Clean(src)
		if abs, err := filepath.Abs(src); err == nil {
			id = abs
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, Result{Source: src})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i := range results {
		if gctx.Err() != nil {
			break
		}
		r := &results[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				r.Err = err
				return err
			}
			r.Path, r.Err = Compile(r.Source, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Resolver runs the full pipeline: normalize, interpret, build page
// models, stabilize selectors, emit.
type Resolver struct {
	normalizer   *Normalizer
	interpreter  *Interpreter
	stabilizer   *Stabilizer
	probeFactory ProbeFactory
	emitter      Emitter
	logger       *RunLogger
	workers      int
	modelName    string
}

// ResolverOptions configures a Resolver. Zero values fall back to
// classifier-only interpretation, no stabilization and no emission.
type ResolverOptions struct {
	Provider     LLMProvider
	ProbeFactory ProbeFactory
	Emitter      Emitter
	Logger       *RunLogger
	Workers      int
	Temperature  float64
	MaxTokens    int
}

// NewResolver wires the pipeline components together
func NewResolver(opts ResolverOptions) *Resolver {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = discardEmitter{}
	}
	modelName := ""
	if opts.Provider != nil {
		modelName = opts.Provider.ModelInfo().Name
	}
	return &Resolver{
		normalizer:   NewNormalizer(opts.Logger),
		interpreter:  NewInterpreter(opts.Provider, opts.Logger, opts.Temperature, opts.MaxTokens),
		stabilizer:   NewStabilizer(opts.Logger),
		probeFactory: opts.ProbeFactory,
		emitter:      emitter,
		logger:       opts.Logger,
		workers:      opts.Workers,
		modelName:    modelName,
	}
}

// Resolve runs one raw test case document through the pipeline. The
// returned result always carries a status; a normalization failure is
// reported through Status and Error rather than a Go error.
func (r *Resolver) Resolve(ctx context.Context, raw []byte) *ResolutionResult {
	result := NewResolutionResult(nil)
	result.Model = r.modelName

	tc, err := r.normalizer.Normalize(raw)
	if err != nil {
		result.Error = err.Error()
		result.finishStatus()
		return result
	}
	result.TestCase = tc

	r.logger.CaseStart(tc.ID, tc.DisplayTitle())

	// The normalized steps stay as parsed; interpreted copies live on the
	// result so the cleared action/target/value fields remain auditable.
	steps := make([]CanonicalStep, len(tc.Steps))
	for i, step := range tc.Steps {
		steps[i] = r.interpreter.Interpret(ctx, step, tc)
	}
	result.InterpretedSteps = steps

	pages := BuildPageModels(steps)
	for _, page := range pages {
		pr := r.stabilizePage(ctx, page)
		if pr.Degraded {
			result.AddWarning(fmt.Sprintf("page %s: selector stabilization degraded to identity", page.Identity))
		}
		result.Pages = append(result.Pages, pr)
	}

	if err := r.emitter.Emit(result); err != nil {
		result.AddWarning(fmt.Sprintf("emit failed: %v", err))
	}

	result.finishStatus()
	r.logger.CaseEnd(tc.ID, result.Status != StatusFailed, len(result.Pages))
	return result
}

// stabilizePage acquires a fresh browsing context for one page, runs the
// stabilization cascade, and releases the context whatever happens.
func (r *Resolver) stabilizePage(ctx context.Context, page *PageModel) PageResult {
	if r.probeFactory == nil || page.URL == "" {
		return PageResult{Page: page}
	}

	r.logger.StabilizeStart(page.Identity, page.URL)

	probe, release, err := r.probeFactory(ctx)
	if err != nil {
		r.logger.Warnf("page %s: probe unavailable: %v", page.Identity, err)
		r.logger.StabilizeEnd(page.Identity, 0, true)
		return PageResult{Page: page, Degraded: true}
	}
	defer release()

	res := r.stabilizer.StabilizePage(ctx, probe, page)
	page.ApplySelectors(res.Improved)

	improved := 0
	for from, to := range res.Improved {
		if from != to {
			improved++
		}
	}
	r.logger.StabilizeEnd(page.Identity, improved, res.Degraded)

	return PageResult{Page: page, Probes: res.Probes, Degraded: res.Degraded}
}

// ResolveBatch resolves many raw documents concurrently with a bounded
// worker pool. Results come back in input order.
func (r *Resolver) ResolveBatch(ctx context.Context, inputs [][]byte) []*ResolutionResult {
	results := make([]*ResolutionResult, len(inputs))
	if len(inputs) == 0 {
		return results
	}

	workers := r.workers
	if workers > len(inputs) {
		workers = len(inputs)
	}

	work := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i] = r.Resolve(ctx, inputs[i])
			}
		}()
	}

	for i := range inputs {
		select {
		case work <- i:
		case <-ctx.Done():
			close(work)
			wg.Wait()
			for j := range results {
				if results[j] == nil {
					res := NewResolutionResult(nil)
					res.Error = ctx.Err().Error()
					res.finishStatus()
					results[j] = res
				}
			}
			return results
		}
	}
	close(work)
	wg.Wait()

	return results
}

// ResolveDirectory resolves every *.json file in dir, in name order.
func (r *Resolver) ResolveDirectory(ctx context.Context, dir string) ([]*ResolutionResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no test case files found in %s", dir)
	}
	sort.Strings(paths)

	inputs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		inputs = append(inputs, data)
	}

	r.logger.RunStart(dir, len(inputs))
	results := r.ResolveBatch(ctx, inputs)

	failed := 0
	for _, res := range results {
		if res.Status == StatusFailed {
			failed++
		}
	}
	r.logger.RunEnd(failed == 0, fmt.Sprintf("%d/%d cases resolved", len(results)-failed, len(results)))

	return results, nil
}

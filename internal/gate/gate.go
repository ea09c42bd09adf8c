package gate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ak125/contentgate/internal/policy"
)

// #region engine
// Engine runs the hard safety gates. It holds only read-only configuration.
type Engine struct {
	config   Config
	patterns *policy.Patterns
}

// NewEngine creates a hard gate engine.
func NewEngine(config Config, patterns *policy.Patterns) *Engine {
	return &Engine{config: config, patterns: patterns}
}

// Config returns the engine thresholds.
func (e *Engine) Config() Config { return e.config }

// Check runs a single hard gate.
func (e *Engine) Check(name Name, in Input) (Result, error) {
	switch name {
	case Attribution:
		return e.Attribution(in), nil
	case NoGuess:
		return e.NoGuess(in), nil
	case ScopeLeakage:
		return e.ScopeLeakage(in), nil
	case Contradiction:
		return e.Contradiction(in), nil
	case Structural:
		return e.Structural(in), nil
	}
	return Result{}, fmt.Errorf("unknown hard gate %q", name)
}

// Run evaluates the named gates concurrently over one snapshot; with no names it
// runs every hard gate. Results come back in the order the names were given.
func (e *Engine) Run(ctx context.Context, in Input, names ...Name) ([]Result, error) {
	if len(names) == 0 {
		names = HardGates
	}
	results := make([]Result, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := e.Check(name, in)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run hard gates: %w", err)
	}
	return results, nil
}

// #endregion engine

// #region helpers
func grade(name Name, t Thresholds, measured float64, higherIsWorse bool) Result {
	verdict := t.Above(measured)
	if !higherIsWorse {
		verdict = t.Below(measured)
	}
	return Result{Gate: name, Verdict: verdict, Measured: measured, Warn: t.Warn, Fail: t.Fail}
}

// #endregion helpers

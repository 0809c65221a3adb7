package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/tracersim/internal/params"
)

// GridSearch evaluates every combination of candidate values for a few
// named parameters. Values are in storage units.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(names []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: names, ranges: ranges}
}

// Search returns the parameters with the lowest value of evaluate, starting
// from p0. Combinations whose evaluation fails are skipped.
func (g *GridSearch) Search(
	ctx context.Context,
	p0 *params.Params[float64],
	evaluate func(ctx context.Context, p *params.Params[float64]) (float64, error),
) (*params.Params[float64], float64, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, fmt.Errorf("optim: %d names for %d ranges", len(g.paramNames), len(g.ranges))
	}
	for _, name := range g.paramNames {
		if _, err := p0.Field(name); err != nil {
			return nil, 0, err
		}
	}

	best := math.Inf(1)
	var bestParams *params.Params[float64]
	if err := g.searchRecursive(ctx, 0, p0.Clone(), evaluate, &best, &bestParams); err != nil {
		return bestParams, best, err
	}
	if bestParams == nil {
		return nil, best, fmt.Errorf("optim: every grid point failed")
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current *params.Params[float64],
	evaluate func(context.Context, *params.Params[float64]) (float64, error),
	best *float64,
	bestParams **params.Params[float64],
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		val, err := evaluate(ctx, current)
		if err != nil {
			return nil
		}
		if val < *best {
			*best = val
			*bestParams = current.Clone()
		}
		return nil
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := current.Clone()
		if err := next.SetField(name, val); err != nil {
			return err
		}
		if err := g.searchRecursive(ctx, depth+1, next, evaluate, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}

package solve

import (
	"context"

	"github.com/spinwheel/spinwheel/internal/iterate"
)

// GradientStepper walks the hub's iterate toward the probability-weighted
// centroid of the scenario targets with diminishing gradient steps. It is
// the demo binary's stand-in for a real decomposition update.
type GradientStepper struct {
	centroid iterate.Values
	lower    float64
	cur      iterate.Values
	step     float64
	k        int
}

// NewGradientStepper starts at start (missing variables default to 0) and
// takes steps scaled by step/k at iteration k. step 0 or below falls back to
// a default of 0.5.
func NewGradientStepper(prob *Quadratic, start iterate.Values, step float64) *GradientStepper {
	if step <= 0 {
		step = 0.5
	}
	cur := make(iterate.Values, len(prob.Variables()))
	for _, k := range prob.Variables() {
		cur[k] = start[k]
	}
	return &GradientStepper{
		centroid: prob.Centroid(),
		lower:    prob.LowerBound(),
		cur:      cur,
		step:     step,
	}
}

// Step produces the next iterate values.
func (g *GradientStepper) Step(ctx context.Context) (iterate.Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.k++
	alpha := g.step / float64(g.k)
	for k, c := range g.centroid {
		g.cur[k] -= alpha * 2 * (g.cur[k] - c)
	}
	return g.cur.Clone(), nil
}

// OuterBound certifies the problem's lower bound. Only meaningful when the
// run minimizes.
func (g *GradientStepper) OuterBound() (float64, bool) {
	return g.lower, true
}

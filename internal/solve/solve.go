// Package solve defines the evaluation contract bound spokes drive, plus a
// synthetic scenario problem used by the demo binary and the tests.
package solve

import (
	"context"

	"github.com/spinwheel/spinwheel/internal/iterate"
)

// Status classifies the outcome of evaluating one candidate.
type Status int

const (
	Feasible Status = iota
	Infeasible
)

func (s Status) String() string {
	if s == Infeasible {
		return "infeasible"
	}
	return "feasible"
}

// Result of evaluating one candidate against one iterate. Objective is only
// meaningful when Status is Feasible.
type Result struct {
	Status    Status
	Objective float64
}

// Evaluator scores a candidate against the current iterate values. An error
// means the evaluation machinery itself broke; candidate infeasibility is a
// normal Result, not an error.
type Evaluator interface {
	Evaluate(ctx context.Context, candidate string, values iterate.Values) (Result, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, candidate string, values iterate.Values) (Result, error)

func (f Func) Evaluate(ctx context.Context, candidate string, values iterate.Values) (Result, error) {
	return f(ctx, candidate, values)
}

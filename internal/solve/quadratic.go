package solve

import (
	"context"
	"fmt"
	"sort"

	"github.com/spinwheel/spinwheel/internal/iterate"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

// Scenario is one realization of the synthetic quadratic problem: a target
// point for the first-stage variables, a fixed cost offset and a weight.
// Infeasible marks scenarios whose trial points can never be certified,
// which exercises the skip path in sampling spokes.
type Scenario struct {
	Name        string
	Probability float64
	Target      iterate.Values
	Offset      float64
	Infeasible  bool
}

// Quadratic is a two-stage minimization toy: fixing the first stage to x
// costs offset_s + sum_i (x_i - target_si)^2 under scenario s. Evaluating a
// candidate takes that scenario's proximal response to the current iterate
// as the trial point and prices it against every scenario.
type Quadratic struct {
	order     []string
	scenarios map[string]Scenario
	variables []iterate.Key
	rho       float64
}

// NewQuadratic validates the scenario list and builds the problem. All
// scenarios must target the same variable set.
func NewQuadratic(scenarios []Scenario, rho float64) (*Quadratic, error) {
	if len(scenarios) == 0 {
		return nil, pkgerrors.ErrNoCandidates
	}
	if rho < 0 {
		return nil, fmt.Errorf("rho must be non-negative, got %v", rho)
	}

	q := &Quadratic{
		order:     make([]string, 0, len(scenarios)),
		scenarios: make(map[string]Scenario, len(scenarios)),
		rho:       rho,
	}

	for k := range scenarios[0].Target {
		q.variables = append(q.variables, k)
	}
	sort.Slice(q.variables, func(i, j int) bool { return q.variables[i] < q.variables[j] })

	for _, s := range scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("scenario with empty name")
		}
		if _, dup := q.scenarios[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scenario %q", s.Name)
		}
		if len(s.Target) != len(q.variables) {
			return nil, fmt.Errorf("scenario %q targets %d variables, want %d",
				s.Name, len(s.Target), len(q.variables))
		}
		for _, k := range q.variables {
			if _, ok := s.Target[k]; !ok {
				return nil, fmt.Errorf("scenario %q missing variable %q", s.Name, k)
			}
		}
		q.order = append(q.order, s.Name)
		q.scenarios[s.Name] = s
	}
	return q, nil
}

// Names returns the scenario names in declaration order.
func (q *Quadratic) Names() []string {
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}

// Variables returns the problem's variable keys in sorted order.
func (q *Quadratic) Variables() []iterate.Key {
	out := make([]iterate.Key, len(q.variables))
	copy(out, q.variables)
	return out
}

// TrialPoint is candidate's first-stage decision given the current iterate:
// per variable the scenario target blended with the iterate value under the
// proximal weight rho. With rho 0 the trial point is the target itself.
func (q *Quadratic) TrialPoint(candidate string, values iterate.Values) (iterate.Values, error) {
	s, ok := q.scenarios[candidate]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownCandidate, candidate)
	}
	x := make(iterate.Values, len(q.variables))
	for _, k := range q.variables {
		x[k] = (2*s.Target[k] + q.rho*values[k]) / (2 + q.rho)
	}
	return x, nil
}

// ExpectedObjective prices fixing the first stage to x across all scenarios.
func (q *Quadratic) ExpectedObjective(x iterate.Values) float64 {
	total := 0.0
	for _, name := range q.order {
		s := q.scenarios[name]
		cost := s.Offset
		for _, k := range q.variables {
			d := x[k] - s.Target[k]
			cost += d * d
		}
		total += s.Probability * cost
	}
	return total
}

// Evaluate implements Evaluator.
func (q *Quadratic) Evaluate(ctx context.Context, candidate string, values iterate.Values) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s, ok := q.scenarios[candidate]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownCandidate, candidate)
	}
	if s.Infeasible {
		return Result{Status: Infeasible}, nil
	}
	x, err := q.TrialPoint(candidate, values)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: Feasible, Objective: q.ExpectedObjective(x)}, nil
}

// LowerBound is the probability-weighted sum of scenario offsets. Every
// scenario attains its offset at its own target, and no shared first stage
// can beat letting each scenario have its way, so this bounds the optimum
// from below.
func (q *Quadratic) LowerBound() float64 {
	total := 0.0
	for _, name := range q.order {
		s := q.scenarios[name]
		total += s.Probability * s.Offset
	}
	return total
}

// Centroid is the probability-weighted mean of the scenario targets, the
// minimizer of the expected objective.
func (q *Quadratic) Centroid() iterate.Values {
	c := make(iterate.Values, len(q.variables))
	for _, name := range q.order {
		s := q.scenarios[name]
		for _, k := range q.variables {
			c[k] += s.Probability * s.Target[k]
		}
	}
	return c
}

package spoke

import (
	"context"
	"errors"
	"testing"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/solve"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

func newTestFixedSet(t *testing.T, sense bound.Sense, candidates []string, eval solve.Evaluator, rep Reporter) *FixedSet {
	t.Helper()
	f, err := NewFixedSet(FixedSetConfig{
		ID:         "f1",
		Sense:      sense,
		Candidates: candidates,
		Evaluator:  eval,
		Reporter:   rep,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("NewFixedSet: %v", err)
	}
	return f
}

func TestNewFixedSetRequiresCandidates(t *testing.T) {
	_, err := NewFixedSet(FixedSetConfig{Logger: testLogger()})
	if !errors.Is(err, pkgerrors.ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestFixedSetEvaluatesWholeListPerIterate(t *testing.T) {
	eval := &tableEvaluator{objectives: map[string]float64{"a": 9, "b": 4, "c": 7}}
	rep := &memReporter{}
	f := newTestFixedSet(t, bound.Minimize, []string{"a", "b", "c"}, eval, rep)

	adopt(t, f, 1, iterate.Values{})

	if len(eval.tried) != 3 {
		t.Fatalf("tried %v, want all three candidates", eval.tried)
	}
	if len(rep.reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(rep.reports))
	}
	r := rep.reports[0]
	if r.Value != 4 || r.BasedOnVersion != 1 || r.Direction != bound.Inner || r.SpokeID != "f1" {
		t.Errorf("report = %+v, want value 4 from f1 based on version 1", r)
	}
}

func TestFixedSetReportsOnlyWhenListBestImproves(t *testing.T) {
	// Every candidate's objective drops by the iterate's "drop" value, so a
	// later version can improve the same fixed list.
	base := map[string]float64{"a": 9, "b": 4}
	eval := solve.Func(func(ctx context.Context, candidate string, values iterate.Values) (solve.Result, error) {
		return solve.Result{Status: solve.Feasible, Objective: base[candidate] - values["drop"]}, nil
	})
	rep := &memReporter{}
	f := newTestFixedSet(t, bound.Minimize, []string{"a", "b"}, eval, rep)

	adopt(t, f, 1, iterate.Values{"drop": 0}) // best 4, reported
	adopt(t, f, 2, iterate.Values{"drop": 0}) // best 4 again, no report
	adopt(t, f, 3, iterate.Values{"drop": 2}) // best 2, reported

	if len(rep.reports) != 2 {
		t.Fatalf("got %d reports, want 2: %+v", len(rep.reports), rep.reports)
	}
	if rep.reports[0].Value != 4 || rep.reports[1].Value != 2 {
		t.Errorf("report values = %v, %v, want 4, 2", rep.reports[0].Value, rep.reports[1].Value)
	}
	if rep.reports[1].BasedOnVersion != 3 {
		t.Errorf("second report based on version %d, want 3", rep.reports[1].BasedOnVersion)
	}
	if best, ok := f.Best(); !ok || best != 2 {
		t.Errorf("Best = %v, %v, want 2, true", best, ok)
	}
}

func TestFixedSetSkipsInfeasibleCandidates(t *testing.T) {
	eval := &tableEvaluator{
		objectives: map[string]float64{"b": 5},
		infeasible: map[string]bool{"a": true},
	}
	rep := &memReporter{}
	f := newTestFixedSet(t, bound.Minimize, []string{"a", "b"}, eval, rep)
	adopt(t, f, 1, iterate.Values{})

	if len(rep.reports) != 1 || rep.reports[0].Value != 5 {
		t.Fatalf("reports = %+v, want one with value 5", rep.reports)
	}
}

func TestFixedSetAllInfeasibleReportsNothing(t *testing.T) {
	eval := &tableEvaluator{infeasible: map[string]bool{"a": true, "b": true}}
	rep := &memReporter{}
	f := newTestFixedSet(t, bound.Minimize, []string{"a", "b"}, eval, rep)
	adopt(t, f, 1, iterate.Values{})

	if len(rep.reports) != 0 {
		t.Fatalf("reports = %+v, want none", rep.reports)
	}
	if _, ok := f.Best(); ok {
		t.Error("Best reported a value with no feasible candidate")
	}
}

func TestFixedSetMaximizePicksLargest(t *testing.T) {
	eval := &tableEvaluator{objectives: map[string]float64{"a": 1, "b": 5, "c": 3}}
	rep := &memReporter{}
	f := newTestFixedSet(t, bound.Maximize, []string{"a", "b", "c"}, eval, rep)
	adopt(t, f, 1, iterate.Values{})

	if len(rep.reports) != 1 || rep.reports[0].Value != 5 {
		t.Fatalf("reports = %+v, want one with value 5", rep.reports)
	}
}

func TestFixedSetStepOnlyFlushesParkedReports(t *testing.T) {
	eval := &tableEvaluator{objectives: map[string]float64{"a": 5}}
	rep := &memReporter{failures: 1}
	f := newTestFixedSet(t, bound.Minimize, []string{"a"}, eval, rep)

	// Idle step with nothing parked.
	work, err := f.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if work {
		t.Error("Step reported work with nothing to do")
	}

	// The report from this iterate fails to deliver and parks.
	adopt(t, f, 1, iterate.Values{})
	if len(rep.reports) != 0 {
		t.Fatalf("report delivered despite failure: %+v", rep.reports)
	}

	work, err = f.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !work {
		t.Error("flush of a parked report should count as work")
	}
	if len(rep.reports) != 1 || rep.reports[0].Value != 5 {
		t.Fatalf("reports = %+v, want one with value 5", rep.reports)
	}
}

func TestFixedSetCopiesCandidateList(t *testing.T) {
	eval := &tableEvaluator{objectives: map[string]float64{"a": 1, "b": 2}}
	rep := &memReporter{}
	candidates := []string{"a", "b"}
	f := newTestFixedSet(t, bound.Minimize, candidates, eval, rep)
	candidates[0] = "z"

	adopt(t, f, 1, iterate.Values{})
	if len(eval.tried) != 2 || eval.tried[0] != "a" {
		t.Errorf("tried = %v, want [a b]", eval.tried)
	}
}

func TestFixedSetEvaluatorErrorPropagates(t *testing.T) {
	boom := errors.New("scenario data missing")
	eval := solve.Func(func(ctx context.Context, candidate string, values iterate.Values) (solve.Result, error) {
		return solve.Result{}, boom
	})
	f := newTestFixedSet(t, bound.Minimize, []string{"a"}, eval, &memReporter{})

	err := f.OnNewIterate(context.Background(), &iterate.Snapshot{Version: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("OnNewIterate error = %v, want wrapped %v", err, boom)
	}
}

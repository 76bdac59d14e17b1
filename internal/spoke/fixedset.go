package spoke

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/metrics"
	"github.com/spinwheel/spinwheel/internal/solve"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

// FixedSetConfig configures a fixed-set variant.
type FixedSetConfig struct {
	ID         string
	Sense      bound.Sense
	Candidates []string // the fixed list, re-evaluated on every new iterate
	Evaluator  solve.Evaluator
	Reporter   Reporter
	Verbose    bool
	Logger     *slog.Logger
}

// FixedSet re-evaluates its whole candidate list against every new iterate
// and reports when the best of the list improves the prior report. What to
// try never changes; the data behind it does.
type FixedSet struct {
	id         string
	sense      bound.Sense
	candidates []string
	eval       solve.Evaluator
	tracker    *bound.Tracker
	sink       *reportSink
	verbose    bool
	log        *slog.Logger
}

// NewFixedSet validates the candidate list and builds the variant.
func NewFixedSet(cfg FixedSetConfig) (*FixedSet, error) {
	if len(cfg.Candidates) == 0 {
		return nil, pkgerrors.ErrNoCandidates
	}
	candidates := make([]string, len(cfg.Candidates))
	copy(candidates, cfg.Candidates)
	return &FixedSet{
		id:         cfg.ID,
		sense:      cfg.Sense,
		candidates: candidates,
		eval:       cfg.Evaluator,
		tracker:    bound.NewTracker(cfg.Sense, bound.Inner),
		sink:       &reportSink{reporter: cfg.Reporter, log: cfg.Logger},
		verbose:    cfg.Verbose,
		log:        cfg.Logger,
	}, nil
}

func (f *FixedSet) Kind() string { return "fixedset" }
func (f *FixedSet) Tag() string  { return "F" }

// Best returns the spoke's best bound so far.
func (f *FixedSet) Best() (float64, bool) {
	return f.tracker.Best()
}

// OnNewIterate evaluates every candidate in the fixed list and reports if
// the best feasible result improves the previous report.
func (f *FixedSet) OnNewIterate(ctx context.Context, snap *iterate.Snapshot) error {
	f.log.Debug("adopted iterate", "version", snap.Version, "candidates", len(f.candidates))

	best := 0.0
	bestName := ""
	found := false

	for _, name := range f.candidates {
		res, err := f.eval.Evaluate(ctx, name, snap.Values)
		if err != nil {
			return fmt.Errorf("evaluate %q: %w", name, err)
		}
		if res.Status == solve.Infeasible {
			metrics.RecordEvaluation("infeasible")
			f.vlog("infeasible candidate", "candidate", name)
			continue
		}
		metrics.RecordEvaluation("feasible")
		if !found || bound.Better(f.sense, bound.Inner, res.Objective, best) {
			best = res.Objective
			bestName = name
			found = true
		}
	}

	if !found {
		f.vlog("no feasible candidate in list", "version", snap.Version)
		return nil
	}
	if !f.tracker.Offer(best) {
		f.vlog("best of list does not improve", "objective", best, "candidate", bestName)
		return nil
	}

	f.log.Info("new personal best bound",
		"candidate", bestName,
		"objective", best,
		"version", snap.Version)
	f.sink.send(bound.Report{
		SpokeID:        f.id,
		Direction:      bound.Inner,
		Value:          best,
		BasedOnVersion: snap.Version,
	})
	return nil
}

// Step only retries a parked report; all real work happens on new iterates.
func (f *FixedSet) Step(ctx context.Context) (bool, error) {
	if f.sink.pending != nil {
		return f.sink.flush(), nil
	}
	return false, nil
}

func (f *FixedSet) vlog(msg string, args ...any) {
	if f.verbose {
		f.log.Info(msg, args...)
	} else {
		f.log.Debug(msg, args...)
	}
}

package spoke

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/cycler"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/metrics"
	"github.com/spinwheel/spinwheel/internal/solve"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

// SamplingConfig configures a sampling variant.
type SamplingConfig struct {
	ID        string
	Sense     bound.Sense
	Order     []string // pre-shuffled candidate order, shared across spokes
	Evaluator solve.Evaluator
	Reporter  Reporter
	Verbose   bool
	Logger    *slog.Logger
}

// Sampling walks candidates in cycler order, evaluates each against the
// current iterate and reports strict improvements. One candidate per Step
// keeps the loop responsive to the kill signal.
type Sampling struct {
	id      string
	cyc     *cycler.Cycler
	eval    solve.Evaluator
	tracker *bound.Tracker
	sink    *reportSink
	verbose bool
	log     *slog.Logger

	local   iterate.Values
	version uint64
}

// NewSampling validates the candidate order and builds the variant.
func NewSampling(cfg SamplingConfig) (*Sampling, error) {
	if len(cfg.Order) == 0 {
		return nil, pkgerrors.ErrNoCandidates
	}
	return &Sampling{
		id:      cfg.ID,
		cyc:     cycler.New(cfg.Order),
		eval:    cfg.Evaluator,
		tracker: bound.NewTracker(cfg.Sense, bound.Inner),
		sink:    &reportSink{reporter: cfg.Reporter, log: cfg.Logger},
		verbose: cfg.Verbose,
		log:     cfg.Logger,
	}, nil
}

func (s *Sampling) Kind() string { return "sampling" }
func (s *Sampling) Tag() string  { return "S" }

// Best returns the spoke's best bound so far.
func (s *Sampling) Best() (float64, bool) {
	return s.tracker.Best()
}

// OnNewIterate copies the published values locally. The cycler keeps its
// place; a new iterate does not restart the epoch.
func (s *Sampling) OnNewIterate(ctx context.Context, snap *iterate.Snapshot) error {
	s.local = snap.Values.Clone()
	s.version = snap.Version
	s.log.Debug("adopted iterate", "version", snap.Version)
	return nil
}

// Step evaluates the cycler's next candidate. An exhausted epoch starts a
// fresh one, with the incumbent marked visited so it is not re-evaluated.
func (s *Sampling) Step(ctx context.Context) (bool, error) {
	if s.sink.pending != nil {
		return s.sink.flush(), nil
	}
	if s.version == 0 {
		return false, nil
	}

	name, ok := s.cyc.Next()
	if !ok {
		if !s.cyc.Exhausted() {
			// Cursor landed on the already-visited incumbent; the next
			// step picks up at the slot after it.
			return false, nil
		}
		s.cyc.BeginEpoch()
		if best := s.cyc.Best(); best != "" {
			s.vlog("starting fresh epoch", "incumbent", best)
		} else {
			s.vlog("starting fresh epoch")
		}
		return false, nil
	}

	s.vlog("trying candidate", "candidate", name, "version", s.version)
	res, err := s.eval.Evaluate(ctx, name, s.local)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", name, err)
	}

	if res.Status == solve.Infeasible {
		metrics.RecordEvaluation("infeasible")
		s.vlog("infeasible candidate", "candidate", name)
		return true, nil
	}
	metrics.RecordEvaluation("feasible")
	s.vlog("feasible candidate", "candidate", name, "objective", res.Objective)

	if !s.tracker.Offer(res.Objective) {
		return true, nil
	}

	s.cyc.SetBest(name)
	s.log.Info("new personal best bound",
		"candidate", name,
		"objective", res.Objective,
		"version", s.version)
	s.sink.send(bound.Report{
		SpokeID:        s.id,
		Direction:      bound.Inner,
		Value:          res.Objective,
		BasedOnVersion: s.version,
	})
	return true, nil
}

func (s *Sampling) vlog(msg string, args ...any) {
	if s.verbose {
		s.log.Info(msg, args...)
	} else {
		s.log.Debug(msg, args...)
	}
}

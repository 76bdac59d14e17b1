package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/metrics"
	"github.com/spinwheel/spinwheel/internal/state"
)

// Stepper produces the next iterate values. Implementations own the numeric
// method; the driver only publishes what they return.
type Stepper interface {
	Step(ctx context.Context) (iterate.Values, error)
}

// OuterBounder is implemented by steppers that can certify a bound from the
// relaxation side.
type OuterBounder interface {
	OuterBound() (float64, bool)
}

// Termination bundles the driver's stop criteria. A zero value disables its
// criterion, except MaxIterations.
type Termination struct {
	MaxIterations int
	AbsGap        float64
	RelGap        float64
	MaxWallclock  time.Duration
}

// DriverConfig configures a driver.
type DriverConfig struct {
	Board       *Board
	Stepper     Stepper
	Termination Termination
	Interval    time.Duration  // pacing between iterations, 0 for none
	Checkpoint  *state.Manager // optional
	Verbose     bool
	Logger      *slog.Logger
}

// Driver runs the hub loop: step, publish, fold the stepper's outer bound,
// check termination, repeat. Spoke reports arrive concurrently through the
// board; the driver never waits on any spoke.
type Driver struct {
	board   *Board
	stepper Stepper
	term    Termination
	tick    time.Duration
	ckpt    *state.Manager
	verbose bool
	log     *slog.Logger
}

// NewDriver builds a driver.
func NewDriver(cfg DriverConfig) *Driver {
	return &Driver{
		board:   cfg.Board,
		stepper: cfg.Stepper,
		term:    cfg.Termination,
		tick:    cfg.Interval,
		ckpt:    cfg.Checkpoint,
		verbose: cfg.Verbose,
		log:     cfg.Logger,
	}
}

// Run loops until the kill signal is raised, a termination criterion fires
// or ctx is canceled. The kill signal is always raised by the time Run
// returns, so polling spokes drain within one poll interval.
func (d *Driver) Run(ctx context.Context) error {
	start := time.Now()
	it := d.board.Version()

	d.log.Info("hub driver started",
		"sense", d.board.Sense().String(),
		"from_version", it,
		"max_iterations", d.term.MaxIterations)

	for {
		if d.board.Killed() {
			return nil
		}
		if ctx.Err() != nil {
			d.board.Kill("hub shutdown")
			return nil
		}

		values, err := d.stepper.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.board.Kill("hub shutdown")
				return nil
			}
			d.board.Kill("hub step failed: " + err.Error())
			return fmt.Errorf("step: %w", err)
		}

		it++
		version := d.board.Publish(values)
		metrics.IterationsTotal.Inc()

		if ob, ok := d.outerBound(); ok {
			d.board.OfferOuter(ob)
		}
		if d.ckpt != nil {
			d.ckpt.MarkDirty()
		}

		d.logProgress(it, version)

		if reason, done := d.terminal(it, start); done {
			d.board.Kill(reason)
			return nil
		}

		if d.tick > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(d.tick):
			}
		}
	}
}

func (d *Driver) outerBound() (float64, bool) {
	ob, ok := d.stepper.(OuterBounder)
	if !ok {
		return 0, false
	}
	return ob.OuterBound()
}

func (d *Driver) logProgress(it uint64, version uint64) {
	inner, hasInner := d.board.BestInner()
	outer, hasOuter := d.board.BestOuter()

	attrs := []any{"iteration", it, "version", version}
	if hasInner {
		attrs = append(attrs, "best_inner", inner)
	}
	if hasOuter {
		attrs = append(attrs, "best_outer", outer)
	}
	if gap, ok := d.board.Gap(); ok {
		attrs = append(attrs, "abs_gap", gap.Abs, "rel_gap", gap.Rel)
	}

	if d.verbose {
		d.log.Info("published", attrs...)
	} else {
		d.log.Debug("published", attrs...)
	}
}

func (d *Driver) terminal(it uint64, start time.Time) (string, bool) {
	if gap, ok := d.board.Gap(); ok {
		if d.term.AbsGap > 0 && gap.Abs <= d.term.AbsGap {
			return fmt.Sprintf("converged: absolute gap %.6g within %.6g", gap.Abs, d.term.AbsGap), true
		}
		if d.term.RelGap > 0 && gap.Rel <= d.term.RelGap {
			return fmt.Sprintf("converged: relative gap %.6g within %.6g", gap.Rel, d.term.RelGap), true
		}
	}
	if d.term.MaxIterations > 0 && it >= uint64(d.term.MaxIterations) {
		return fmt.Sprintf("iteration limit reached: %d", d.term.MaxIterations), true
	}
	if d.term.MaxWallclock > 0 && time.Since(start) >= d.term.MaxWallclock {
		return fmt.Sprintf("wallclock limit reached: %s", d.term.MaxWallclock), true
	}
	return "", false
}

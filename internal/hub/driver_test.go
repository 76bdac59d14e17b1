package hub

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
)

type fakeStepper struct {
	steps int
	fail  error
	outer float64
	hasOB bool
}

func (f *fakeStepper) Step(ctx context.Context) (iterate.Values, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.steps++
	return iterate.Values{"x": float64(f.steps)}, nil
}

func (f *fakeStepper) OuterBound() (float64, bool) {
	return f.outer, f.hasOB
}

func TestDriverStopsAtIterationLimit(t *testing.T) {
	b := newTestBoard()
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     &fakeStepper{},
		Termination: Termination{MaxIterations: 5},
		Logger:      testLogger(),
	})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !b.Killed() {
		t.Fatal("board not killed after run")
	}
	if got := b.KillReason(); !strings.Contains(got, "iteration limit") {
		t.Errorf("reason = %q, want iteration limit", got)
	}
	if got := b.Version(); got != 5 {
		t.Errorf("published versions = %d, want 5", got)
	}
}

func TestDriverStopsOnAbsGap(t *testing.T) {
	b := newTestBoard()
	stepper := &fakeStepper{outer: 2.0, hasOB: true}
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     stepper,
		Termination: Termination{MaxIterations: 1000, AbsGap: 0.5},
		Logger:      testLogger(),
	})

	// An inner bound within the gap of the stepper's outer bound arrives
	// before the loop starts, as if a spoke reported between iterations.
	b.HandleReport(bound.Report{SpokeID: "s1", Direction: bound.Inner, Value: 2.25})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := b.KillReason(); !strings.Contains(got, "absolute gap") {
		t.Errorf("reason = %q, want absolute gap convergence", got)
	}
	if b.Version() != 1 {
		t.Errorf("versions published = %d, want 1", b.Version())
	}
}

func TestDriverReturnsWhenKilledExternally(t *testing.T) {
	b := newTestBoard()
	b.Kill("killed from console")
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     &fakeStepper{},
		Termination: Termination{MaxIterations: 1000},
		Logger:      testLogger(),
	})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not notice the kill")
	}
	if b.Version() != 0 {
		t.Errorf("driver published %d versions after kill, want 0", b.Version())
	}
}

func TestDriverKillsOnContextCancel(t *testing.T) {
	b := newTestBoard()
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     &fakeStepper{},
		Termination: Termination{MaxIterations: 1 << 30},
		Interval:    time.Millisecond,
		Logger:      testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop on cancel")
	}
	if got := b.KillReason(); got != "hub shutdown" {
		t.Errorf("reason = %q, want hub shutdown", got)
	}
}

func TestDriverKillsOnStepFailure(t *testing.T) {
	b := newTestBoard()
	stepErr := errors.New("solver exploded")
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     &fakeStepper{fail: stepErr},
		Termination: Termination{MaxIterations: 10},
		Logger:      testLogger(),
	})

	err := d.Run(context.Background())
	if !errors.Is(err, stepErr) {
		t.Fatalf("Run err = %v, want wrapped step error", err)
	}
	if !b.Killed() {
		t.Fatal("board not killed after step failure")
	}
	if got := b.KillReason(); !strings.Contains(got, "hub step failed") {
		t.Errorf("reason = %q", got)
	}
}

func TestDriverFoldsStepperOuterBound(t *testing.T) {
	b := newTestBoard()
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     &fakeStepper{outer: 3.5, hasOB: true},
		Termination: Termination{MaxIterations: 2},
		Logger:      testLogger(),
	})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	outer, ok := b.BestOuter()
	if !ok || outer != 3.5 {
		t.Errorf("BestOuter = (%v, %v), want (3.5, true)", outer, ok)
	}
}

func TestDriverWallclockLimit(t *testing.T) {
	b := newTestBoard()
	d := NewDriver(DriverConfig{
		Board:       b,
		Stepper:     &fakeStepper{},
		Termination: Termination{MaxIterations: 1 << 30, MaxWallclock: 30 * time.Millisecond},
		Interval:    time.Millisecond,
		Logger:      testLogger(),
	})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := b.KillReason(); !strings.Contains(got, "wallclock") {
		t.Errorf("reason = %q, want wallclock limit", got)
	}
}

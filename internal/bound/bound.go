// Package bound defines bound reports and the monotonic improvement rules
// shared by spokes and the hub.
package bound

import (
	"fmt"
	"math"
)

// Sense is the optimization direction of the run.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// ParseSense maps a configuration string to a Sense.
func ParseSense(s string) (Sense, error) {
	switch s {
	case "minimize", "min":
		return Minimize, nil
	case "maximize", "max":
		return Maximize, nil
	default:
		return Minimize, fmt.Errorf("unknown sense %q", s)
	}
}

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Direction tells which side of the optimum a bound constrains. Inner bounds
// are attained by feasible solutions; Outer bounds come from relaxations.
type Direction int

const (
	Inner Direction = iota
	Outer
)

func (d Direction) String() string {
	if d == Outer {
		return "outer"
	}
	return "inner"
}

// Report is one spoke's claim of a new personal-best bound. BasedOnVersion
// records which iterate version the evaluation used; a stale version never
// disqualifies a report, only the improvement rule decides.
type Report struct {
	SpokeID        string
	Direction      Direction
	Value          float64
	BasedOnVersion uint64
}

// Better reports whether a strictly improves on b for the given sense and
// direction. Inner bounds improve toward the optimum (smaller when
// minimizing, larger when maximizing); outer bounds tighten from the far
// side, so the rule inverts.
func Better(sense Sense, dir Direction, a, b float64) bool {
	if (sense == Minimize) == (dir == Inner) {
		return a < b
	}
	return a > b
}

// Worst returns the starting value any real bound strictly improves on.
func Worst(sense Sense, dir Direction) float64 {
	if (sense == Minimize) == (dir == Inner) {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// Tracker keeps one spoke's personal best and admits only strict
// improvements. Not safe for concurrent use; each spoke owns its tracker.
type Tracker struct {
	sense Sense
	dir   Direction
	best  float64
	has   bool
}

// NewTracker returns a tracker starting at the worst value for the sense and
// direction, so the first real value always improves.
func NewTracker(sense Sense, dir Direction) *Tracker {
	return &Tracker{sense: sense, dir: dir, best: Worst(sense, dir)}
}

// Offer proposes v as a new personal best. It records v and returns true
// only when v strictly improves the current best; ties and regressions leave
// the tracker untouched.
func (t *Tracker) Offer(v float64) bool {
	if !Better(t.sense, t.dir, v, t.best) {
		return false
	}
	t.best = v
	t.has = true
	return true
}

// Best returns the current best and whether any value has been accepted.
func (t *Tracker) Best() (float64, bool) {
	return t.best, t.has
}

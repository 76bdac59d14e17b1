package bound

import (
	"math"
	"sort"
	"sync"
)

// Gap is the distance between the group's best inner and outer bounds,
// oriented so that smaller means tighter.
type Gap struct {
	Abs float64
	Rel float64
}

// Aggregate is the hub-side fold of every report received from the group.
// It keeps the best value per spoke and the group-wide best per direction
// and never regresses any of them. Reports based on stale iterate versions
// are folded like any other.
//
// Aggregate is safe for concurrent use; listener goroutines fold while the
// driver and console read.
type Aggregate struct {
	mu    sync.RWMutex
	sense Sense

	spokes map[string]Report

	inner    float64
	hasInner bool
	innerBy  string

	outer    float64
	hasOuter bool
	outerBy  string

	accepted uint64
	rejected uint64
}

// NewAggregate returns an empty aggregate for the given sense.
func NewAggregate(sense Sense) *Aggregate {
	return &Aggregate{
		sense:  sense,
		spokes: make(map[string]Report),
	}
}

// Sense returns the optimization sense the aggregate folds under.
func (a *Aggregate) Sense() Sense {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sense
}

// Fold merges r into the aggregate and reports whether r improved the
// group-wide best for its direction.
func (a *Aggregate) Fold(r Report) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, seen := a.spokes[r.SpokeID]
	if !seen || prev.Direction != r.Direction ||
		Better(a.sense, r.Direction, r.Value, prev.Value) {
		a.spokes[r.SpokeID] = r
	}

	improved := false
	switch r.Direction {
	case Inner:
		if !a.hasInner || Better(a.sense, Inner, r.Value, a.inner) {
			a.inner = r.Value
			a.hasInner = true
			a.innerBy = r.SpokeID
			improved = true
		}
	case Outer:
		if !a.hasOuter || Better(a.sense, Outer, r.Value, a.outer) {
			a.outer = r.Value
			a.hasOuter = true
			a.outerBy = r.SpokeID
			improved = true
		}
	}

	if improved {
		a.accepted++
	} else {
		a.rejected++
	}
	return improved
}

// BestInner returns the group's best inner bound and whether one exists.
func (a *Aggregate) BestInner() (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inner, a.hasInner
}

// BestOuter returns the group's best outer bound and whether one exists.
func (a *Aggregate) BestOuter() (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.outer, a.hasOuter
}

// Holders returns the spoke ids holding the group bests, "" where absent.
func (a *Aggregate) Holders() (inner, outer string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.innerBy, a.outerBy
}

// Gap returns the current inner/outer gap. ok is false until both sides
// have reported at least once.
func (a *Aggregate) Gap() (Gap, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.hasInner || !a.hasOuter {
		return Gap{}, false
	}
	abs := a.inner - a.outer
	if a.sense == Maximize {
		abs = a.outer - a.inner
	}
	rel := abs / math.Max(1, math.Abs(a.inner))
	return Gap{Abs: abs, Rel: rel}, true
}

// Reports returns a copy of the best report per spoke, sorted by spoke id.
func (a *Aggregate) Reports() []Report {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Report, 0, len(a.spokes))
	for _, r := range a.spokes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpokeID < out[j].SpokeID })
	return out
}

// Counts returns how many folds improved a group best and how many did not.
func (a *Aggregate) Counts() (accepted, rejected uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accepted, a.rejected
}

// Package state persists run progress so a restarted hub resumes a run
// instead of starting over.
package state

import (
	"time"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
)

// CurrentStateVersion is the checkpoint format version.
const CurrentStateVersion = 1

// RunState is the persisted view of a run: the last published iterate plus
// the best bound seen from every reporter.
type RunState struct {
	Version        int            `json:"version"`
	RunID          string         `json:"run_id"`
	Sense          string         `json:"sense"`
	IterateVersion uint64         `json:"iterate_version"`
	Values         iterate.Values `json:"values"`
	Bests          []bound.Report `json:"bests"`
	SavedAt        time.Time      `json:"saved_at"`
}

// RunStateProvider supplies and restores run state. Implemented by the hub
// board.
type RunStateProvider interface {
	RunState() *RunState
	RestoreState(state *RunState) error
}

// Package hub implements the privileged process of a run: the board that
// owns the iterate, the kill signal and the bound aggregate, and the driver
// that publishes new versions until termination.
package hub

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/kill"
	"github.com/spinwheel/spinwheel/internal/metrics"
	"github.com/spinwheel/spinwheel/internal/state"
)

// SpokeInfo describes one joined spoke. Rank 0 is the hub itself; spokes get
// 1..N in join order.
type SpokeInfo struct {
	ID          string
	Kind        string
	Rank        int
	JoinedAt    time.Time
	LastContact time.Time
	LastSeen    uint64
	Reports     uint64
}

// BoardConfig configures a board.
type BoardConfig struct {
	RunID       string // fresh uuid when empty
	Sense       bound.Sense
	Fingerprint string
	Logger      *slog.Logger
}

// Board is the hub's authoritative run state. It serves group exchanges on
// listener goroutines while the driver publishes; all of it is safe for
// concurrent use.
type Board struct {
	runID       string
	sense       bound.Sense
	fingerprint string
	log         *slog.Logger

	slot *iterate.Slot
	kill *kill.Signal
	agg  *bound.Aggregate

	mu       sync.RWMutex
	spokes   map[string]*SpokeInfo
	nextRank int

	started time.Time
}

// NewBoard builds an empty board.
func NewBoard(cfg BoardConfig) *Board {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Board{
		runID:       runID,
		sense:       cfg.Sense,
		fingerprint: cfg.Fingerprint,
		log:         cfg.Logger,
		slot:        iterate.NewSlot(),
		kill:        kill.New(),
		agg:         bound.NewAggregate(cfg.Sense),
		spokes:      make(map[string]*SpokeInfo),
		started:     time.Now(),
	}
}

// HandleJoin implements group.Handler. Rejoining with a known id returns the
// previously assigned rank, so a restarted spoke keeps its place.
func (b *Board) HandleJoin(id, kind, fingerprint string) (int, string, string) {
	if id == "" {
		return 0, b.runID, "empty spoke id"
	}
	if fingerprint != b.fingerprint {
		b.log.Warn("join rejected", "spoke", id, "kind", kind, "why", "fingerprint mismatch")
		return 0, b.runID, "configuration fingerprint mismatch"
	}
	if b.kill.Raised() {
		return 0, b.runID, "run killed: " + b.kill.Reason()
	}

	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if info, ok := b.spokes[id]; ok {
		info.LastContact = now
		b.log.Info("spoke rejoined", "spoke", id, "kind", kind, "rank", info.Rank)
		return info.Rank, b.runID, ""
	}

	b.nextRank++
	info := &SpokeInfo{
		ID:          id,
		Kind:        kind,
		Rank:        b.nextRank,
		JoinedAt:    now,
		LastContact: now,
	}
	b.spokes[id] = info
	b.log.Info("spoke joined", "spoke", id, "kind", kind, "rank", info.Rank)
	return info.Rank, b.runID, ""
}

// HandleFetch implements group.Handler.
func (b *Board) HandleFetch(id string, lastSeen uint64) (*iterate.Snapshot, bool, string) {
	b.mu.Lock()
	if info, ok := b.spokes[id]; ok {
		info.LastContact = time.Now()
		info.LastSeen = lastSeen
	}
	b.mu.Unlock()

	return b.slot.Read(), b.kill.Raised(), b.kill.Reason()
}

// HandleReport implements group.Handler.
func (b *Board) HandleReport(r bound.Report) (bool, bool, string) {
	improved := b.agg.Fold(r)
	metrics.RecordReport(r.Direction.String(), improved)

	b.mu.Lock()
	if info, ok := b.spokes[r.SpokeID]; ok {
		info.LastContact = time.Now()
		info.Reports++
	}
	b.mu.Unlock()

	if improved {
		b.log.Info("new group best bound",
			"direction", r.Direction.String(),
			"value", r.Value,
			"spoke", r.SpokeID,
			"based_on", r.BasedOnVersion)
	} else {
		b.log.Debug("bound report kept",
			"direction", r.Direction.String(),
			"value", r.Value,
			"spoke", r.SpokeID)
	}

	return improved, b.kill.Raised(), b.kill.Reason()
}

// HandleAbort implements group.Handler. Any spoke can take the whole run
// down when it detects a group-consistency violation.
func (b *Board) HandleAbort(id, reason string) {
	b.log.Error("run aborted by spoke", "spoke", id, "reason", reason)
	b.Kill(fmt.Sprintf("aborted by %s: %s", id, reason))
}

// Publish installs values as the next iterate version.
func (b *Board) Publish(values iterate.Values) uint64 {
	return b.slot.Publish(values)
}

// OfferOuter folds an outer bound certified by the hub's own stepper.
func (b *Board) OfferOuter(value float64) bool {
	improved := b.agg.Fold(bound.Report{
		SpokeID:        "hub",
		Direction:      bound.Outer,
		Value:          value,
		BasedOnVersion: b.slot.Version(),
	})
	metrics.RecordReport(bound.Outer.String(), improved)
	if improved {
		b.log.Info("new group best bound", "direction", "outer", "value", value, "spoke", "hub")
	}
	return improved
}

// Kill raises the kill signal. First reason wins.
func (b *Board) Kill(reason string) {
	if !b.kill.Raised() {
		b.log.Info("kill signal raised", "reason", reason)
	}
	b.kill.Raise(reason)
}

// Killed reports whether the run is terminal.
func (b *Board) Killed() bool {
	return b.kill.Raised()
}

// KillReason returns the recorded termination reason.
func (b *Board) KillReason() string {
	return b.kill.Reason()
}

// Snapshot returns the current iterate snapshot.
func (b *Board) Snapshot() *iterate.Snapshot {
	return b.slot.Read()
}

// Version returns the current iterate version.
func (b *Board) Version() uint64 {
	return b.slot.Version()
}

// BestInner returns the group's best inner bound.
func (b *Board) BestInner() (float64, bool) {
	return b.agg.BestInner()
}

// BestOuter returns the group's best outer bound.
func (b *Board) BestOuter() (float64, bool) {
	return b.agg.BestOuter()
}

// Gap returns the current bound gap.
func (b *Board) Gap() (bound.Gap, bool) {
	return b.agg.Gap()
}

// Holders returns the spoke ids holding the group best bounds.
func (b *Board) Holders() (string, string) {
	return b.agg.Holders()
}

// Reports returns the best report per reporter.
func (b *Board) Reports() []bound.Report {
	return b.agg.Reports()
}

// Spokes returns a copy of the registry sorted by rank.
func (b *Board) Spokes() []SpokeInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SpokeInfo, 0, len(b.spokes))
	for _, info := range b.spokes {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// RunID returns the run identifier.
func (b *Board) RunID() string {
	return b.runID
}

// Sense returns the optimization sense.
func (b *Board) Sense() bound.Sense {
	return b.sense
}

// Uptime returns how long the board has existed.
func (b *Board) Uptime() time.Duration {
	return time.Since(b.started)
}

// Stats implements metrics.Source.
func (b *Board) Stats() metrics.Stats {
	inner, hasInner := b.agg.BestInner()
	outer, hasOuter := b.agg.BestOuter()
	gap, hasGap := b.agg.Gap()

	b.mu.RLock()
	spokes := len(b.spokes)
	b.mu.RUnlock()

	return metrics.Stats{
		Version:   b.slot.Version(),
		BestInner: inner,
		HasInner:  hasInner,
		BestOuter: outer,
		HasOuter:  hasOuter,
		AbsGap:    gap.Abs,
		RelGap:    gap.Rel,
		HasGap:    hasGap,
		Spokes:    spokes,
	}
}

// RunState implements state.RunStateProvider.
func (b *Board) RunState() *state.RunState {
	snap := b.slot.Read()
	return &state.RunState{
		RunID:          b.runID,
		Sense:          b.sense.String(),
		IterateVersion: snap.Version,
		Values:         snap.Values.Clone(),
		Bests:          b.agg.Reports(),
	}
}

// RestoreState implements state.RunStateProvider. The checkpointed iterate
// and bests are re-seeded; publishing continues from the restored version.
func (b *Board) RestoreState(st *state.RunState) error {
	if st.Sense != b.sense.String() {
		return fmt.Errorf("checkpoint sense %q does not match run sense %q", st.Sense, b.sense)
	}
	if st.RunID != "" {
		b.runID = st.RunID
	}
	b.slot.Reset(st.IterateVersion, st.Values)
	for _, r := range st.Bests {
		b.agg.Fold(r)
	}
	b.log.Info("resumed from checkpoint",
		"run_id", b.runID,
		"iterate_version", st.IterateVersion,
		"bests", len(st.Bests),
		"saved_at", st.SavedAt.Format(time.RFC3339))
	return nil
}

package hub

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	"github.com/spinwheel/spinwheel/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBoard() *Board {
	return NewBoard(BoardConfig{
		Sense:       bound.Minimize,
		Fingerprint: "fp",
		Logger:      testLogger(),
	})
}

func TestHandleJoinAssignsIncreasingRanks(t *testing.T) {
	b := newTestBoard()

	rank1, runID, reject := b.HandleJoin("s1", "sampling", "fp")
	if reject != "" {
		t.Fatalf("join rejected: %s", reject)
	}
	if rank1 != 1 {
		t.Errorf("first rank = %d, want 1", rank1)
	}
	if runID != b.RunID() {
		t.Errorf("runID = %q, want %q", runID, b.RunID())
	}

	rank2, _, _ := b.HandleJoin("s2", "fixedset", "fp")
	if rank2 != 2 {
		t.Errorf("second rank = %d, want 2", rank2)
	}
}

func TestHandleJoinRejoinKeepsRank(t *testing.T) {
	b := newTestBoard()
	first, _, _ := b.HandleJoin("s1", "sampling", "fp")
	b.HandleJoin("s2", "sampling", "fp")

	again, _, reject := b.HandleJoin("s1", "sampling", "fp")
	if reject != "" {
		t.Fatalf("rejoin rejected: %s", reject)
	}
	if again != first {
		t.Errorf("rejoin rank = %d, want %d", again, first)
	}
	if got := len(b.Spokes()); got != 2 {
		t.Errorf("registry size = %d, want 2", got)
	}
}

func TestHandleJoinRejectsFingerprintMismatch(t *testing.T) {
	b := newTestBoard()

	_, _, reject := b.HandleJoin("s1", "sampling", "other-fp")
	if !strings.Contains(reject, "fingerprint") {
		t.Errorf("reject = %q, want fingerprint mismatch", reject)
	}
	if got := len(b.Spokes()); got != 0 {
		t.Errorf("rejected spoke registered, registry size = %d", got)
	}
}

func TestHandleJoinRejectsAfterKill(t *testing.T) {
	b := newTestBoard()
	b.Kill("converged")

	_, _, reject := b.HandleJoin("late", "sampling", "fp")
	if reject == "" {
		t.Error("join accepted after kill")
	}
}

func TestHandleJoinRejectsEmptyID(t *testing.T) {
	b := newTestBoard()
	if _, _, reject := b.HandleJoin("", "sampling", "fp"); reject == "" {
		t.Error("join accepted with empty id")
	}
}

func TestHandleFetchReturnsLatestAndTracksSpoke(t *testing.T) {
	b := newTestBoard()
	b.HandleJoin("s1", "sampling", "fp")
	b.Publish(iterate.Values{"x": 1})
	b.Publish(iterate.Values{"x": 2})

	snap, killed, _ := b.HandleFetch("s1", 1)
	if killed {
		t.Error("killed before any kill")
	}
	if snap.Version != 2 || snap.Values["x"] != 2 {
		t.Errorf("snapshot = %+v, want version 2", snap)
	}

	spokes := b.Spokes()
	if len(spokes) != 1 || spokes[0].LastSeen != 1 {
		t.Errorf("registry LastSeen = %+v, want 1", spokes)
	}
}

func TestHandleReportFoldsAndCounts(t *testing.T) {
	b := newTestBoard()
	b.HandleJoin("s1", "sampling", "fp")

	improved, _, _ := b.HandleReport(bound.Report{SpokeID: "s1", Direction: bound.Inner, Value: 9})
	if !improved {
		t.Error("first report did not improve")
	}
	improved, _, _ = b.HandleReport(bound.Report{SpokeID: "s1", Direction: bound.Inner, Value: 20})
	if improved {
		t.Error("worse report improved")
	}

	if best, ok := b.BestInner(); !ok || best != 9 {
		t.Errorf("BestInner = (%v, %v), want (9, true)", best, ok)
	}
	if spokes := b.Spokes(); spokes[0].Reports != 2 {
		t.Errorf("report count = %d, want 2", spokes[0].Reports)
	}
}

func TestHandleAbortKillsRun(t *testing.T) {
	b := newTestBoard()
	b.HandleAbort("s1", "probabilities sum to 1.25")

	if !b.Killed() {
		t.Fatal("board not killed after abort")
	}
	reason := b.KillReason()
	if !strings.Contains(reason, "s1") || !strings.Contains(reason, "1.25") {
		t.Errorf("kill reason = %q, want spoke id and cause", reason)
	}
}

func TestKillFirstReasonWins(t *testing.T) {
	b := newTestBoard()
	b.Kill("converged")
	b.Kill("later reason")

	if got := b.KillReason(); got != "converged" {
		t.Errorf("KillReason = %q, want converged", got)
	}
}

func TestOfferOuterFoldsAsHub(t *testing.T) {
	b := newTestBoard()
	if !b.OfferOuter(2.0) {
		t.Error("first outer bound did not improve")
	}
	if b.OfferOuter(1.0) {
		t.Error("looser outer bound improved")
	}

	_, outerBy := b.Holders()
	if outerBy != "hub" {
		t.Errorf("outer holder = %q, want hub", outerBy)
	}
}

func TestStats(t *testing.T) {
	b := newTestBoard()
	b.HandleJoin("s1", "sampling", "fp")
	b.Publish(iterate.Values{"x": 1})
	b.HandleReport(bound.Report{SpokeID: "s1", Direction: bound.Inner, Value: 8})
	b.OfferOuter(2)

	st := b.Stats()
	if st.Version != 1 || !st.HasInner || !st.HasOuter || !st.HasGap {
		t.Errorf("Stats = %+v", st)
	}
	if st.AbsGap != 6 {
		t.Errorf("AbsGap = %v, want 6", st.AbsGap)
	}
	if st.Spokes != 1 {
		t.Errorf("Spokes = %d, want 1", st.Spokes)
	}
}

func TestRunStateRoundTrip(t *testing.T) {
	b := newTestBoard()
	b.Publish(iterate.Values{"x": 3})
	b.HandleReport(bound.Report{SpokeID: "s1", Direction: bound.Inner, Value: 7})

	st := b.RunState()
	if st.IterateVersion != 1 || st.Values["x"] != 3 || len(st.Bests) != 1 {
		t.Fatalf("RunState = %+v", st)
	}

	b2 := newTestBoard()
	if err := b2.RestoreState(st); err != nil {
		t.Fatalf("RestoreState: %v", err)
	}
	if b2.Version() != 1 {
		t.Errorf("restored version = %d, want 1", b2.Version())
	}
	if best, ok := b2.BestInner(); !ok || best != 7 {
		t.Errorf("restored best = (%v, %v), want (7, true)", best, ok)
	}
	if b2.RunID() != b.RunID() {
		t.Errorf("restored run id = %q, want %q", b2.RunID(), b.RunID())
	}

	// Publishing resumes after the restored version.
	if v := b2.Publish(iterate.Values{"x": 4}); v != 2 {
		t.Errorf("publish after restore = %d, want 2", v)
	}
}

func TestRestoreStateRejectsSenseMismatch(t *testing.T) {
	b := newTestBoard()
	err := b.RestoreState(&state.RunState{Sense: "maximize"})
	if err == nil {
		t.Error("restore accepted a checkpoint with a different sense")
	}
}

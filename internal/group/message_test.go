package group

import (
	"errors"
	"testing"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

func roundTrip(t *testing.T, m *Message) *Message {
	t.Helper()
	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode(%s): %v", m.Type, err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s): %v", m.Type, err)
	}
	return got
}

func TestJoinRoundTrip(t *testing.T) {
	got := roundTrip(t, NewJoinMessage("spoke-1", "sampling", "fp-abc"))

	if got.Type != MsgJoin {
		t.Errorf("Type = %s, want JOIN", got.Type)
	}
	if got.Sender != "spoke-1" || got.Kind != "sampling" || got.Fingerprint != "fp-abc" {
		t.Errorf("fields = (%q, %q, %q)", got.Sender, got.Kind, got.Fingerprint)
	}
}

func TestJoinAckRoundTrip(t *testing.T) {
	got := roundTrip(t, NewJoinAck("run-7", 3, ""))
	if got.RunID != "run-7" || got.Rank != 3 || got.Reject != "" {
		t.Errorf("ack = (%q, %d, %q)", got.RunID, got.Rank, got.Reject)
	}

	rej := roundTrip(t, NewJoinAck("", 0, "fingerprint mismatch"))
	if rej.Reject != "fingerprint mismatch" {
		t.Errorf("Reject = %q", rej.Reject)
	}
}

func TestIterateRoundTrip(t *testing.T) {
	snap := &iterate.Snapshot{Version: 12, Values: iterate.Values{"x": 1.5, "y": -2}}
	got := roundTrip(t, NewIterateMessage(snap, true, "converged"))

	if got.Type != MsgIterate {
		t.Errorf("Type = %s, want ITERATE", got.Type)
	}
	if got.Version != 12 {
		t.Errorf("Version = %d, want 12", got.Version)
	}
	if got.Values["x"] != 1.5 || got.Values["y"] != -2 {
		t.Errorf("Values = %v", got.Values)
	}
	if !got.Killed || got.Reason != "converged" {
		t.Errorf("kill piggyback = (%v, %q)", got.Killed, got.Reason)
	}
}

func TestReportRoundTrip(t *testing.T) {
	r := bound.Report{SpokeID: "spoke-2", Direction: bound.Inner, Value: 4.25, BasedOnVersion: 9}
	got := roundTrip(t, NewReportMessage("spoke-2", r))

	if got.Report == nil {
		t.Fatal("Report = nil after round trip")
	}
	if *got.Report != r {
		t.Errorf("Report = %+v, want %+v", *got.Report, r)
	}
}

func TestDecodeRejectsShortData(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, pkgerrors.ErrInvalidMessage) {
		t.Errorf("Decode(nil) err = %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeTypeByteWins(t *testing.T) {
	// The leading byte, not the gob payload, decides the message type.
	data, err := NewFetchMessage("s", 5).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[0] = byte(MsgAbort)

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != MsgAbort {
		t.Errorf("Type = %s, want ABORT", got.Type)
	}
}

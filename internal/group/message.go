// Package group carries the wire protocol between the hub and its spokes:
// type-tagged gob messages behind 4-byte length-prefixed TCP frames, one
// request/response exchange per connection.
package group

import (
	"bytes"
	"encoding/gob"

	"github.com/spinwheel/spinwheel/internal/bound"
	"github.com/spinwheel/spinwheel/internal/iterate"
	pkgerrors "github.com/spinwheel/spinwheel/pkg/errors"
)

type MessageType uint8

const (
	MsgJoin MessageType = iota + 1
	MsgJoinAck
	MsgFetch
	MsgIterate
	MsgReport
	MsgReportAck
	MsgAbort
	MsgAbortAck
)

func (t MessageType) String() string {
	switch t {
	case MsgJoin:
		return "JOIN"
	case MsgJoinAck:
		return "JOINACK"
	case MsgFetch:
		return "FETCH"
	case MsgIterate:
		return "ITERATE"
	case MsgReport:
		return "REPORT"
	case MsgReportAck:
		return "REPORTACK"
	case MsgAbort:
		return "ABORT"
	case MsgAbortAck:
		return "ABORTACK"
	default:
		return "UNKNOWN"
	}
}

// Identity names one process in the run group.
type Identity struct {
	ID   string
	Kind string
	Rank int
}

// Message is the single wire envelope. Fields are populated per type; gob
// keeps unset ones cheap.
type Message struct {
	Type   MessageType
	Sender string

	// join
	Kind        string
	Fingerprint string

	// join ack
	RunID  string
	Rank   int
	Reject string

	// fetch / iterate
	LastSeen uint64
	Version  uint64
	Values   iterate.Values

	// kill piggyback on iterate, report ack and abort ack
	Killed bool
	Reason string

	// report / report ack
	Report   *bound.Report
	Accepted bool
}

// Encode renders the message as a type byte followed by the gob payload.
func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Type))

	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Message, error) {
	if len(data) < 1 {
		return nil, pkgerrors.ErrInvalidMessage
	}

	buf := bytes.NewBuffer(data[1:])
	var m Message
	dec := gob.NewDecoder(buf)
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}

	m.Type = MessageType(data[0])
	return &m, nil
}

func NewJoinMessage(id, kind, fingerprint string) *Message {
	return &Message{
		Type:        MsgJoin,
		Sender:      id,
		Kind:        kind,
		Fingerprint: fingerprint,
	}
}

func NewJoinAck(runID string, rank int, reject string) *Message {
	return &Message{
		Type:   MsgJoinAck,
		RunID:  runID,
		Rank:   rank,
		Reject: reject,
	}
}

func NewFetchMessage(id string, lastSeen uint64) *Message {
	return &Message{
		Type:     MsgFetch,
		Sender:   id,
		LastSeen: lastSeen,
	}
}

func NewIterateMessage(snap *iterate.Snapshot, killed bool, reason string) *Message {
	return &Message{
		Type:    MsgIterate,
		Version: snap.Version,
		Values:  snap.Values,
		Killed:  killed,
		Reason:  reason,
	}
}

func NewReportMessage(id string, r bound.Report) *Message {
	return &Message{
		Type:   MsgReport,
		Sender: id,
		Report: &r,
	}
}

func NewReportAck(accepted, killed bool, reason string) *Message {
	return &Message{
		Type:     MsgReportAck,
		Accepted: accepted,
		Killed:   killed,
		Reason:   reason,
	}
}

func NewAbortMessage(id, reason string) *Message {
	return &Message{
		Type:   MsgAbort,
		Sender: id,
		Reason: reason,
	}
}

func NewAbortAck() *Message {
	return &Message{Type: MsgAbortAck}
}

// Package iterate implements the shared iterate channel: a single-writer,
// many-reader broadcast slot carrying a versioned map of variable values.
package iterate

import "sync/atomic"

// Key identifies one variable of the shared iterate.
type Key string

// Values maps variable keys to their current real value.
type Values map[Key]float64

// Clone returns an independent copy of v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Snapshot is one published version of the iterate. Snapshots are immutable
// after publication; readers share them without copying.
type Snapshot struct {
	Version uint64
	Values  Values
}

// Slot is the broadcast cell the hub publishes iterates into. Exactly one
// writer may call Publish or Reset; any number of readers may call Read
// concurrently. A reader always observes a version together with the values
// published under that version.
type Slot struct {
	cur atomic.Pointer[Snapshot]
}

// NewSlot returns a slot holding version 0 with empty values.
func NewSlot() *Slot {
	s := &Slot{}
	s.cur.Store(&Snapshot{Version: 0, Values: Values{}})
	return s
}

// Publish installs a copy of values under the next version number and
// returns that version.
func (s *Slot) Publish(values Values) uint64 {
	prev := s.cur.Load()
	next := &Snapshot{Version: prev.Version + 1, Values: values.Clone()}
	s.cur.Store(next)
	return next.Version
}

// Reset installs a copy of values under an explicit version. Used when a
// restarted hub resumes a checkpointed run; the next Publish continues from
// version+1.
func (s *Slot) Reset(version uint64, values Values) {
	s.cur.Store(&Snapshot{Version: version, Values: values.Clone()})
}

// Read returns the most recently published snapshot. Never nil.
func (s *Slot) Read() *Snapshot {
	return s.cur.Load()
}

// Changed reports whether a version newer than lastSeen has been published.
func (s *Slot) Changed(lastSeen uint64) bool {
	return s.cur.Load().Version > lastSeen
}

// Version returns the current version without touching the values.
func (s *Slot) Version() uint64 {
	return s.cur.Load().Version
}

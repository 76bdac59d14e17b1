// Package kill implements the cooperative termination flag shared by every
// process in a run.
package kill

import "sync"

// Signal is a write-once terminal flag. The first Raise wins and records its
// reason; every later Raise is a no-op. Once raised the signal never clears.
type Signal struct {
	mu     sync.RWMutex
	raised bool
	reason string
}

// New returns an unraised signal.
func New() *Signal {
	return &Signal{}
}

// Raise marks the signal terminal with the given reason. Only the first
// caller's reason is kept.
func (s *Signal) Raise(reason string) {
	s.mu.Lock()
	if !s.raised {
		s.raised = true
		s.reason = reason
	}
	s.mu.Unlock()
}

// Raised reports whether the signal has been raised.
func (s *Signal) Raised() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raised
}

// Reason returns the reason recorded by the first Raise, or "" if the signal
// has not been raised.
func (s *Signal) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

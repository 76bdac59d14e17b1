// Package errors defines sentinel errors used across the spinwheel project.
package errors

import "errors"

// Sentinel errors for run configuration.
var (
	// ErrNoCandidates indicates an empty candidate set where one is required.
	ErrNoCandidates = errors.New("candidate set is empty")

	// ErrUnknownCandidate indicates a candidate that is not a declared scenario.
	ErrUnknownCandidate = errors.New("candidate is not a declared scenario")

	// ErrMultiStage indicates a problem with more than two stages.
	ErrMultiStage = errors.New("bound spokes support two-stage problems only")

	// ErrBundling indicates scenario bundling was requested.
	ErrBundling = errors.New("bound spokes do not support scenario bundles")

	// ErrGroupConsistency indicates the scenario probabilities do not sum to one.
	ErrGroupConsistency = errors.New("scenario probabilities do not sum to one")

	// ErrFingerprint indicates the joining process was built from a different
	// configuration than the hub.
	ErrFingerprint = errors.New("configuration fingerprint mismatch")
)

// Sentinel errors for the group wire protocol.
var (
	// ErrInvalidMessage indicates a frame that does not decode to a message.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrFrameTooLarge indicates a frame above the wire size limit.
	ErrFrameTooLarge = errors.New("frame exceeds size limit")

	// ErrJoinRejected indicates the hub refused a spoke's join request.
	ErrJoinRejected = errors.New("join rejected by hub")

	// ErrHubUnreachable indicates repeated exchange failures against the hub.
	ErrHubUnreachable = errors.New("hub unreachable")
)

// Sentinel errors for lifecycle.
var (
	// ErrClosed indicates the resource has been closed.
	ErrClosed = errors.New("resource is closed")

	// ErrKilled indicates the run was terminated by the kill signal.
	ErrKilled = errors.New("run killed")
)

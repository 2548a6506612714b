package constants

import "strings"

// Phase is the execution phase reported by a UWS job.
type Phase string

// Phases defined by UWS 1.0. Any other value, including a different spelling
// of these, is terminal.
const (
	PhasePending   Phase = "PENDING"
	PhaseQueued    Phase = "QUEUED"
	PhaseExecuting Phase = "EXECUTING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseError     Phase = "ERROR"
	PhaseAborted   Phase = "ABORTED"
	PhaseHeld      Phase = "HELD"
	PhaseSuspended Phase = "SUSPENDED"
	PhaseUnknown   Phase = "UNKNOWN"
)

// ParsePhase trims the text of a uws:phase node. Case is kept, so only the
// exact UWS spellings are recognised.
func ParsePhase(s string) Phase {
	return Phase(strings.TrimSpace(s))
}

// IsTerminal reports whether polling should stop. Only PENDING, QUEUED and
// EXECUTING keep a job alive; unrecognised phases are terminal.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhasePending, PhaseQueued, PhaseExecuting:
		return false
	default:
		return true
	}
}

// IsSuccessful reports whether the job finished and produced results.
func (p Phase) IsSuccessful() bool {
	return p == PhaseCompleted
}

func (p Phase) String() string { return string(p) }

// RequestStatus is the canonical status for rows in stage_request.
type RequestStatus string

// Stable values (store these exact strings in DB).
const (
	RequestStatusQueued    RequestStatus = "QUEUED"    // accepted, waiting for a worker
	RequestStatusResolving RequestStatus = "RESOLVING" // fetching datalink documents
	RequestStatusStaging   RequestStatus = "STAGING"   // remote job created and running
	RequestStatusCompleted RequestStatus = "COMPLETED" // job COMPLETED, urls stored
	RequestStatusRemoteErr RequestStatus = "REMOTE_ERROR"
	RequestStatusFailed    RequestStatus = "FAILED" // terminal local failure
)

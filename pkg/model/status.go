package model

// Status represents the lifecycle state of a queued request.
type Status string

const (
	// StatusPending means the request is queued and waiting for a
	// dispatch slot. Requests re-enter this state after a retryable
	// failure or after being preempted by a higher-priority request.
	StatusPending Status = "PENDING"
	// StatusSending means a transport attempt is in flight.
	StatusSending Status = "SENDING"
	// StatusFailed means the request exhausted its retry budget or hit
	// a non-retryable error. Terminal.
	StatusFailed Status = "FAILED"
	// StatusDone means the request completed with a success status and
	// its payload decoded cleanly. Terminal.
	StatusDone Status = "DONE"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the request is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed:
		return true
	}
	return false
}

// ValidStatusTransitions defines the allowed status transitions for requests.
// SENDING -> PENDING covers both retry after a retryable failure and
// preemption of an in-flight attempt.
var ValidStatusTransitions = map[Status][]Status{
	StatusPending: {StatusSending},
	StatusSending: {StatusDone, StatusFailed, StatusPending},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range ValidStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

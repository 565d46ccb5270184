package runs

import "github.com/wardentools/warden/pkg/snapshot"

// DeriveStatus computes a run's status from what has been observed so far.
// It is a pure function of its inputs so the same observations always
// produce the same answer.
func DeriveStatus(snap *snapshot.Snapshot, session *SessionInfo, eventCount int64) Status {
	if snap == nil {
		if session != nil {
			return StatusDispatching
		}
		if eventCount > 0 {
			// Journal output without a snapshot: the agent started
			// writing but has not reported a lifecycle yet.
			return StatusDispatching
		}
		return StatusDiscovered
	}

	switch snap.Lifecycle {
	case "running":
		return StatusRunning
	case "awaiting_input":
		return StatusAwaitingInput
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

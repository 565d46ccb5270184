// Package runs defines the supervisor's view of an agent run: the on-disk
// directory, the identifier convention, the derived status, and the
// accumulated read state (journal cursor, last good snapshot, recent
// events).
package runs

import (
	"time"

	"github.com/wardentools/warden/pkg/journal"
	"github.com/wardentools/warden/pkg/snapshot"
)

// Status is the supervisor's derived view of where a run is in its life.
// It is computed, never stored by the agent.
type Status string

const (
	// StatusDiscovered: the directory exists but nothing has been
	// observed yet, no snapshot, no live session.
	StatusDiscovered Status = "discovered"
	// StatusDispatching: a session was spawned but the agent has not yet
	// written a snapshot.
	StatusDispatching Status = "dispatching"
	// StatusRunning: the agent reports it is executing.
	StatusRunning Status = "running"
	// StatusAwaitingInput: the agent is blocked on operator input.
	StatusAwaitingInput Status = "awaiting_input"
	// StatusCompleted: the agent reports success.
	StatusCompleted Status = "completed"
	// StatusFailed: the agent reports failure.
	StatusFailed Status = "failed"
	// StatusUnknown: the snapshot carries a lifecycle the supervisor
	// does not recognize.
	StatusUnknown Status = "unknown"
)

// SessionInfo is the registry's record of a process session attached to a
// run. It is a plain value so registry consumers never touch the live
// controller.
type SessionInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	// Resumed reports whether the session was started against an
	// existing run rather than a fresh dispatch.
	Resumed bool `json:"resumed"`
}

// Run is the registry entry for one run directory.
type Run struct {
	ID     string `json:"id"`
	Dir    string `json:"dir"`
	Status Status `json:"status"`

	// Snapshot is the last successfully parsed state file, nil until one
	// parses. A torn read never clears it.
	Snapshot *snapshot.Snapshot `json:"snapshot,omitempty"`

	// Cursor marks journal progress; it only moves forward except on an
	// observed truncation.
	Cursor journal.Cursor `json:"cursor"`

	// LatestEvents is a bounded tail of recent journal events, newest
	// last.
	LatestEvents []journal.Event `json:"latest_events,omitempty"`

	// EventCount is the total number of events observed over the run's
	// lifetime, unbounded even though LatestEvents is not.
	EventCount int64 `json:"event_count"`

	// Malformed counts journal lines that failed to parse.
	Malformed int `json:"malformed,omitempty"`

	Session *SessionInfo `json:"session,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// LastError is the most recent per-run refresh failure, cleared on
	// the next successful refresh. Failures here never poison other runs.
	LastError string `json:"last_error,omitempty"`
}

// Clone returns a deep enough copy for handing to other goroutines: slices
// and nested pointers are duplicated, immutable payloads are shared.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	if r.Snapshot != nil {
		snap := *r.Snapshot
		out.Snapshot = &snap
	}
	if r.Session != nil {
		sess := *r.Session
		out.Session = &sess
	}
	if r.LatestEvents != nil {
		out.LatestEvents = make([]journal.Event, len(r.LatestEvents))
		copy(out.LatestEvents, r.LatestEvents)
	}
	return &out
}

// AppendEvents adds newly read events to the bounded tail, trimming from
// the front once limit is exceeded.
func (r *Run) AppendEvents(events []journal.Event, limit int) {
	if len(events) == 0 {
		return
	}
	r.EventCount += int64(len(events))
	r.LatestEvents = append(r.LatestEvents, events...)
	if limit > 0 && len(r.LatestEvents) > limit {
		r.LatestEvents = r.LatestEvents[len(r.LatestEvents)-limit:]
	}
}

// Package daemon provides a client interface for interacting with the
// warden daemon (wardend). It implements a transparent fallback pattern:
// if the daemon is running, use its unix-socket API; if not, fall back to
// direct read-only library calls against the runs root.
package daemon

import (
	"context"

	"github.com/wardentools/warden/pkg/runs"
)

// Client defines the interface for interacting with the warden daemon.
// Both RemoteClient (unix socket) and LocalClient (direct reads) implement
// this interface. Session operations require the daemon: sessions live in
// its process.
type Client interface {
	// GetRuns returns the current run registry, sorted by run ID.
	GetRuns(ctx context.Context) ([]*runs.Run, error)

	// GetRun returns one run record.
	GetRun(ctx context.Context, id string) (*runs.Run, error)

	// Dispatch creates a fresh run and spawns the agent against it,
	// returning the new run ID.
	Dispatch(ctx context.Context, prompt string) (string, error)

	// Resume re-invokes the agent against an existing run.
	Resume(ctx context.Context, id, prompt string) error

	// Control sends a named control ("interrupt" or "confirm") to a
	// run's live session.
	Control(ctx context.Context, id, control string) error

	// StreamState subscribes to real-time run updates from the daemon.
	// For LocalClient this returns an error since streaming is only
	// available via the daemon.
	StreamState(ctx context.Context) (<-chan StateUpdate, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// StateUpdate represents an update pushed from the daemon to subscribers.
type StateUpdate struct {
	Runs       []*runs.Run `json:"runs,omitempty"`
	Run        *runs.Run   `json:"run,omitempty"`
	RemovedID  string      `json:"removed_id,omitempty"`
	UpdateType string      `json:"update_type"` // "initial", "run", "run_set", "run_removed", "config_reload"
	Source     string      `json:"source,omitempty"`
	ConfigFile string      `json:"config_file,omitempty"`
}

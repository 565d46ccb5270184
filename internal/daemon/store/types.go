// Package store provides the in-memory run registry for the warden daemon.
package store

import (
	"github.com/wardentools/warden/pkg/runs"
)

// State represents the complete world view of the daemon.
type State struct {
	Runs map[string]*runs.Run `json:"runs"` // Keyed by run ID
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	// UpdateRunSet replaces the whole run set after a discovery pass.
	UpdateRunSet UpdateType = "run_set"
	// UpdateRun upserts a single run record after a refresh.
	UpdateRun UpdateType = "run"
	// UpdateRunRemoved drops a run whose directory disappeared during an
	// explicit rescan.
	UpdateRunRemoved UpdateType = "run_removed"
	// UpdateConfigReload notifies clients that the config file changed.
	UpdateConfigReload UpdateType = "config_reload"
)

// Update represents a change to the state.
type Update struct {
	Type    UpdateType
	Source  string // Which component sent this update (e.g., "discovery", "refresh", "session")
	Payload interface{}
}

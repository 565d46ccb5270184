package errors

import (
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *WardenError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *WardenError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// RunsRootUnreadable creates an error for an unreadable runs root directory.
func RunsRootUnreadable(path string, err error) *WardenError {
	return Wrap(err, ErrCodeRunsRootUnreadable, fmt.Sprintf("runs root not readable: %s", path)).
		WithDetail("path", path)
}

// ExecutableMissing creates an error for a missing agent executable.
func ExecutableMissing(path string) *WardenError {
	return New(ErrCodeExecutableMissing, fmt.Sprintf("agent executable not found: %s", path)).
		WithDetail("path", path)
}

// SpawnFailed creates a process spawn failure error.
func SpawnFailed(executable string, err error) *WardenError {
	wardenErr := Wrap(err, ErrCodeSpawnFailed, fmt.Sprintf("failed to spawn: %s", executable)).
		WithDetail("executable", executable)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		wardenErr = wardenErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return wardenErr
}

// NoLiveSession creates an error for a control operation against a run
// with no attached process. The caller is an interactive user action, so
// this is always reported, never swallowed.
func NoLiveSession(runID string) *WardenError {
	return New(ErrCodeNoLiveSession, fmt.Sprintf("no live session for run '%s'", runID)).
		WithDetail("runId", runID)
}

// SessionBusy creates an error for dispatching onto a run that already
// has an attached process.
func SessionBusy(runID string) *WardenError {
	return New(ErrCodeSessionBusy, fmt.Sprintf("run '%s' already has a live session", runID)).
		WithDetail("runId", runID)
}

// RunNotFound creates a run not found error.
func RunNotFound(runID string) *WardenError {
	return New(ErrCodeRunNotFound, fmt.Sprintf("run '%s' not found", runID)).
		WithDetail("runId", runID)
}

// DaemonNotRunning creates an error for commands that require the daemon.
func DaemonNotRunning() *WardenError {
	return New(ErrCodeDaemonNotRunning, "warden daemon is not running")
}

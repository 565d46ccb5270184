package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	wardenerrors "github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/pkg/journal"
	"github.com/wardentools/warden/pkg/runs"
	"github.com/wardentools/warden/pkg/snapshot"
)

// LocalClient implements Client by reading the runs root directly.
// This is used when the daemon is not running: listing and inspection work
// the same, but session operations error because sessions live in the
// daemon's process.
type LocalClient struct {
	runsRoot    string
	eventBuffer int
}

// NewLocalClient creates a LocalClient over the given runs root.
func NewLocalClient(runsRoot string, eventBuffer int) *LocalClient {
	if eventBuffer <= 0 {
		eventBuffer = 50
	}
	return &LocalClient{runsRoot: runsRoot, eventBuffer: eventBuffer}
}

// GetRuns discovers and reads every run fresh from disk.
func (c *LocalClient) GetRuns(ctx context.Context) ([]*runs.Run, error) {
	ids, err := runs.Discover(c.runsRoot)
	if err != nil {
		return nil, err
	}

	result := make([]*runs.Run, 0, len(ids))
	for _, id := range ids {
		run, err := c.readRun(id)
		if err != nil {
			// One broken run must not hide the rest.
			run = &runs.Run{
				ID:        id,
				Dir:       filepath.Join(c.runsRoot, id),
				Status:    runs.StatusUnknown,
				LastError: err.Error(),
			}
		}
		result = append(result, run)
	}
	return result, nil
}

// GetRun reads one run fresh from disk.
func (c *LocalClient) GetRun(ctx context.Context, id string) (*runs.Run, error) {
	ids, err := runs.Discover(c.runsRoot)
	if err != nil {
		return nil, err
	}
	for _, found := range ids {
		if found == id {
			return c.readRun(id)
		}
	}
	return nil, wardenerrors.RunNotFound(id)
}

func (c *LocalClient) readRun(id string) (*runs.Run, error) {
	dir := filepath.Join(c.runsRoot, id)
	rec := &runs.Run{
		ID:        id,
		Dir:       dir,
		UpdatedAt: time.Now(),
	}

	result, err := journal.ReadAll(runs.JournalPath(dir))
	if err != nil {
		return nil, err
	}
	rec.Cursor = result.Cursor
	rec.Malformed = result.Malformed
	rec.AppendEvents(result.Events, c.eventBuffer)

	snap, err := snapshot.Read(runs.StatePath(dir))
	if err != nil && !errors.Is(err, snapshot.ErrUnparsable) {
		return nil, err
	}
	rec.Snapshot = snap

	// No session view without the daemon.
	rec.Status = runs.DeriveStatus(rec.Snapshot, nil, rec.EventCount)
	return rec, nil
}

// Dispatch requires the daemon; a local spawn would die with the CLI.
func (c *LocalClient) Dispatch(ctx context.Context, prompt string) (string, error) {
	return "", wardenerrors.DaemonNotRunning()
}

// Resume requires the daemon.
func (c *LocalClient) Resume(ctx context.Context, id, prompt string) error {
	return wardenerrors.DaemonNotRunning()
}

// Control requires the daemon.
func (c *LocalClient) Control(ctx context.Context, id, control string) error {
	return wardenerrors.DaemonNotRunning()
}

// StreamState returns an error for LocalClient since streaming is only
// available via the daemon.
func (c *LocalClient) StreamState(ctx context.Context) (<-chan StateUpdate, error) {
	return nil, errors.New("streaming not available in local mode; start the daemon for real-time updates")
}

// IsRunning always reports false for the local fallback.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)

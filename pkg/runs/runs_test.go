package runs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardentools/warden/pkg/journal"
	"github.com/wardentools/warden/pkg/snapshot"
)

func TestNewIDRoundTrip(t *testing.T) {
	at := time.Date(2024, 6, 15, 9, 45, 30, 0, time.UTC)
	id := NewID(at)
	assert.Equal(t, "run-20240615-094530", id)

	parsed, err := ParseID(id)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(at))
}

func TestIsID(t *testing.T) {
	assert.True(t, IsID("run-20240101-120000"))
	assert.False(t, IsID("run-bad-name"))
	assert.False(t, IsID("run-2024010-120000"))
	assert.False(t, IsID("run-20240101-1200000"))
	assert.False(t, IsID("prefix-run-20240101-120000"))
	assert.False(t, IsID("run-20240101-120000-suffix"))
}

func TestParseIDRejectsImpossibleDates(t *testing.T) {
	_, err := ParseID("run-20241301-120000")
	assert.Error(t, err)
}

func TestDiscoverSkipsNonRuns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "run-20240101-120000"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "run-bad-name"), 0755))

	ids, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-20240101-120000"}, ids)
}

func TestDiscoverSkipsFilesNamedLikeRuns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "run-20240101-120000"), []byte("x"), 0644))

	ids, err := Discover(root)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDiscoverMissingRoot(t *testing.T) {
	ids, err := Discover(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDiscoverSortsChronologically(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"run-20240301-000000", "run-20240101-000000", "run-20240201-000000"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, id), 0755))
	}

	ids, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-20240101-000000", "run-20240201-000000", "run-20240301-000000"}, ids)
}

func TestDeriveStatus(t *testing.T) {
	session := &SessionInfo{PID: 123}

	assert.Equal(t, StatusDiscovered, DeriveStatus(nil, nil, 0))
	assert.Equal(t, StatusDispatching, DeriveStatus(nil, session, 0))
	assert.Equal(t, StatusDispatching, DeriveStatus(nil, nil, 3))
	assert.Equal(t, StatusRunning, DeriveStatus(&snapshot.Snapshot{Lifecycle: "running"}, nil, 0))
	assert.Equal(t, StatusAwaitingInput, DeriveStatus(&snapshot.Snapshot{Lifecycle: "awaiting_input"}, session, 9))
	assert.Equal(t, StatusCompleted, DeriveStatus(&snapshot.Snapshot{Lifecycle: "completed"}, nil, 9))
	assert.Equal(t, StatusFailed, DeriveStatus(&snapshot.Snapshot{Lifecycle: "failed"}, nil, 9))
	assert.Equal(t, StatusUnknown, DeriveStatus(&snapshot.Snapshot{Lifecycle: "daydreaming"}, nil, 9))
}

func TestCloneIsIndependent(t *testing.T) {
	run := &Run{
		ID:       "run-20240101-120000",
		Status:   StatusRunning,
		Snapshot: &snapshot.Snapshot{Lifecycle: "running"},
		Session:  &SessionInfo{PID: 42},
		LatestEvents: []journal.Event{
			{Sequence: 1, Kind: "start"},
		},
	}

	clone := run.Clone()
	clone.Snapshot.Lifecycle = "failed"
	clone.Session.PID = 99
	clone.LatestEvents[0].Kind = "mutated"

	assert.Equal(t, "running", run.Snapshot.Lifecycle)
	assert.Equal(t, 42, run.Session.PID)
	assert.Equal(t, "start", run.LatestEvents[0].Kind)
}

func TestAppendEventsBoundsTail(t *testing.T) {
	run := &Run{}
	for i := 1; i <= 7; i++ {
		run.AppendEvents([]journal.Event{{Sequence: int64(i)}}, 3)
	}

	assert.Equal(t, int64(7), run.EventCount)
	require.Len(t, run.LatestEvents, 3)
	assert.Equal(t, int64(5), run.LatestEvents[0].Sequence)
	assert.Equal(t, int64(7), run.LatestEvents[2].Sequence)
}

func TestRunPaths(t *testing.T) {
	dir := "/tmp/runs/run-20240101-120000"
	assert.Equal(t, filepath.Join(dir, "run", "state.json"), StatePath(dir))
	assert.Equal(t, filepath.Join(dir, "run", "journal.jsonl"), JournalPath(dir))
}

package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardentools/warden/config"
	wardenerrors "github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/internal/daemon/store"
	"github.com/wardentools/warden/logging"
	"github.com/wardentools/warden/pkg/runs"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		RunsRoot: root,
		Agent:    config.AgentConfig{Executable: "echo"},
	}
	cfg.SetDefaults()

	st := store.New()
	e, err := New(cfg, st, logging.NewLogger("engine-test"))
	require.NoError(t, err)
	t.Cleanup(func() {
		e.sessions.Close()
		e.watcher.Close()
	})
	return e, root
}

func makeRunDir(t *testing.T, root, id string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, runs.ControlDirName), 0755))
	return dir
}

func writeJournal(t *testing.T, dir string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(runs.JournalPath(dir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, line := range lines {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
}

func writeState(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(runs.StatePath(dir), []byte(content), 0644))
}

func TestRescanPopulatesRegistry(t *testing.T) {
	e, root := newTestEngine(t)

	dir := makeRunDir(t, root, "run-20240101-120000")
	writeJournal(t, dir, `{"timestamp":"2024-01-01T12:00:01Z","kind":"start"}`)
	writeState(t, dir, `{"lifecycle":"running"}`)

	makeRunDir(t, root, "run-20240102-090000")
	require.NoError(t, os.Mkdir(filepath.Join(root, "not-a-run"), 0755))

	e.Rescan()

	all := e.Store().GetRuns()
	require.Len(t, all, 2)

	first := e.Store().GetRun("run-20240101-120000")
	require.NotNil(t, first)
	assert.Equal(t, runs.StatusRunning, first.Status)
	assert.Equal(t, int64(1), first.EventCount)

	second := e.Store().GetRun("run-20240102-090000")
	require.NotNil(t, second)
	assert.Equal(t, runs.StatusDiscovered, second.Status)
}

func TestRescanPublishesRunSet(t *testing.T) {
	e, root := newTestEngine(t)
	makeRunDir(t, root, "run-20240101-120000")
	makeRunDir(t, root, "run-20240102-090000")

	ch := e.Store().Subscribe()
	defer e.Store().Unsubscribe(ch)

	e.Rescan()

	// Per-run updates stream first; the reconcile ends with one
	// consolidated run-set frame.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Type != store.UpdateRunSet {
				continue
			}
			set, ok := u.Payload.(map[string]*runs.Run)
			require.True(t, ok)
			assert.Len(t, set, 2)
			assert.Contains(t, set, "run-20240101-120000")
			assert.Contains(t, set, "run-20240102-090000")
			return
		case <-deadline:
			t.Fatal("no run-set update observed after rescan")
		}
	}
}

func TestRefreshAdvancesCursorMonotonically(t *testing.T) {
	e, root := newTestEngine(t)
	id := "run-20240101-120000"
	dir := makeRunDir(t, root, id)

	writeJournal(t, dir, `{"timestamp":"2024-01-01T12:00:01Z","kind":"a"}`)
	e.Refresh(id)
	rec := e.Store().GetRun(id)
	require.NotNil(t, rec)
	firstOffset := rec.Cursor.Offset
	assert.Equal(t, int64(1), rec.EventCount)

	writeJournal(t, dir, `{"timestamp":"2024-01-01T12:00:02Z","kind":"b"}`)
	e.Refresh(id)
	rec = e.Store().GetRun(id)
	assert.Greater(t, rec.Cursor.Offset, firstOffset)
	assert.Equal(t, int64(2), rec.EventCount)

	// Refresh without new bytes must not move anything backward.
	e.Refresh(id)
	rec2 := e.Store().GetRun(id)
	assert.Equal(t, rec.Cursor, rec2.Cursor)
	assert.Equal(t, int64(2), rec2.EventCount)
}

func TestRefreshResetsOnTruncation(t *testing.T) {
	e, root := newTestEngine(t)
	id := "run-20240101-120000"
	dir := makeRunDir(t, root, id)

	writeJournal(t, dir,
		`{"timestamp":"2024-01-01T12:00:01Z","kind":"a"}`,
		`{"timestamp":"2024-01-01T12:00:02Z","kind":"b"}`)
	e.Refresh(id)

	require.NoError(t, os.WriteFile(runs.JournalPath(dir),
		[]byte(`{"timestamp":"2024-01-01T12:00:03Z","kind":"fresh"}`+"\n"), 0644))
	e.Refresh(id)

	rec := e.Store().GetRun(id)
	assert.Equal(t, int64(1), rec.EventCount)
	require.Len(t, rec.LatestEvents, 1)
	assert.Equal(t, "fresh", rec.LatestEvents[0].Kind)
}

func TestCorruptStateKeepsLastGoodSnapshot(t *testing.T) {
	e, root := newTestEngine(t)
	id := "run-20240101-120000"
	dir := makeRunDir(t, root, id)

	writeState(t, dir, `{"lifecycle":"awaiting_input"}`)
	e.Refresh(id)
	assert.Equal(t, runs.StatusAwaitingInput, e.Store().GetRun(id).Status)

	// Simulate a torn write.
	writeState(t, dir, `{"lifecycle":"comp`)
	e.Refresh(id)

	rec := e.Store().GetRun(id)
	require.NotNil(t, rec.Snapshot)
	assert.Equal(t, "awaiting_input", rec.Snapshot.Lifecycle)
	assert.Equal(t, runs.StatusAwaitingInput, rec.Status)
	assert.Empty(t, rec.LastError)
}

func TestUnrecognizedLifecycleIsUnknown(t *testing.T) {
	e, root := newTestEngine(t)
	id := "run-20240101-120000"
	dir := makeRunDir(t, root, id)

	writeState(t, dir, `{"lifecycle":"meditating"}`)
	e.Refresh(id)

	assert.Equal(t, runs.StatusUnknown, e.Store().GetRun(id).Status)
}

func TestRescanRemovesDeletedRun(t *testing.T) {
	e, root := newTestEngine(t)
	id := "run-20240101-120000"
	dir := makeRunDir(t, root, id)
	e.Rescan()
	require.NotNil(t, e.Store().GetRun(id))

	require.NoError(t, os.RemoveAll(dir))
	e.Rescan()
	assert.Nil(t, e.Store().GetRun(id))
}

func TestDispatchCreatesRunDirAndSpawns(t *testing.T) {
	e, _ := newTestEngine(t)

	id, err := e.Dispatch("do the thing")
	require.NoError(t, err)
	assert.True(t, runs.IsID(id))

	rec := e.Store().GetRun(id)
	require.NotNil(t, rec)

	info, err := os.Stat(filepath.Join(rec.Dir, runs.ControlDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	select {
	case exit := <-e.Sessions().Exits():
		assert.Equal(t, id, exit.RunID)
		assert.Equal(t, 0, exit.ExitCode)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatched session to exit")
	}
}

func TestResumePreservesJournal(t *testing.T) {
	e, _ := newTestEngine(t)

	id, err := e.Dispatch("first prompt")
	require.NoError(t, err)

	select {
	case <-e.Sessions().Exits():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatched session to exit")
	}

	rec := e.Store().GetRun(id)
	require.NotNil(t, rec)
	writeJournal(t, rec.Dir,
		`{"timestamp":"2024-01-01T12:00:01Z","kind":"start"}`,
		`{"timestamp":"2024-01-01T12:00:02Z","kind":"progress"}`)
	e.Refresh(id)
	require.Equal(t, int64(2), e.Store().GetRun(id).EventCount)

	require.NoError(t, e.Resume(id, "keep going"))

	select {
	case <-e.Sessions().Exits():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resumed session to exit")
	}

	e.Refresh(id)
	rec = e.Store().GetRun(id)
	assert.GreaterOrEqual(t, rec.EventCount, int64(2))
	require.GreaterOrEqual(t, len(rec.LatestEvents), 2)
	assert.Equal(t, "start", rec.LatestEvents[0].Kind)
	assert.Equal(t, "progress", rec.LatestEvents[1].Kind)
}

func TestResumeUnknownRun(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Resume("run-20990101-000000", "again")
	assert.Equal(t, wardenerrors.ErrCodeRunNotFound, wardenerrors.GetCode(err))
}

func TestControlValidation(t *testing.T) {
	e, root := newTestEngine(t)
	id := "run-20240101-120000"
	makeRunDir(t, root, id)
	e.Refresh(id)

	err := e.Control("run-20990101-000000", ControlInterrupt)
	assert.Equal(t, wardenerrors.ErrCodeRunNotFound, wardenerrors.GetCode(err))

	err = e.Control(id, "poke")
	assert.Equal(t, wardenerrors.ErrCodeInvalidInput, wardenerrors.GetCode(err))

	// Known run, known control, but nothing attached.
	err = e.Control(id, ControlConfirm)
	assert.Equal(t, wardenerrors.ErrCodeNoLiveSession, wardenerrors.GetCode(err))
}

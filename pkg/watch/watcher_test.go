package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan string, window time.Duration) []string {
	t.Helper()
	var got []string
	deadline := time.After(window)
	for {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-deadline:
			return got
		}
	}
}

func TestBurstCoalescesToOneNotification(t *testing.T) {
	dir := t.TempDir()
	w, err := New(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchRun("run-20240101-120000", dir))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "journal.jsonl"), []byte("x"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	got := collect(t, w.Changed(), 500*time.Millisecond)
	assert.Equal(t, []string{"run-20240101-120000"}, got)
}

func TestSeparatedBurstsNotifySeparately(t *testing.T) {
	dir := t.TempDir()
	w, err := New(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchRun("run-20240101-120000", dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("x"), 0644))

	got := collect(t, w.Changed(), 500*time.Millisecond)
	assert.Equal(t, []string{"run-20240101-120000", "run-20240101-120000"}, got)
}

func TestRootChangeEmitsRootMarker(t *testing.T) {
	root := t.TempDir()
	w, err := New(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchRoot(root))
	require.NoError(t, os.Mkdir(filepath.Join(root, "run-20240101-120000"), 0755))

	got := collect(t, w.Changed(), 500*time.Millisecond)
	require.NotEmpty(t, got)
	assert.Equal(t, RootChanged, got[0])
}

func TestIgnoredPatternsProduceNoNotification(t *testing.T) {
	dir := t.TempDir()
	w, err := New(30*time.Millisecond, []string{"*.tmp"})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchRun("run-20240101-120000", dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0644))

	got := collect(t, w.Changed(), 300*time.Millisecond)
	assert.Empty(t, got)
}

func TestUnwatchedRunStopsNotifying(t *testing.T) {
	dir := t.TempDir()
	w, err := New(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchRun("run-20240101-120000", dir))
	w.UnwatchRun("run-20240101-120000")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0644))

	got := collect(t, w.Changed(), 300*time.Millisecond)
	assert.Empty(t, got)
}

func TestWritesInNewSubdirectoryAreSeen(t *testing.T) {
	dir := t.TempDir()
	w, err := New(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchRun("run-20240101-120000", dir))

	sub := filepath.Join(dir, "run")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(100 * time.Millisecond)
	drainTimer := time.After(200 * time.Millisecond)
	for {
		select {
		case <-w.Changed():
			continue
		case <-drainTimer:
		}
		break
	}

	require.NoError(t, os.WriteFile(filepath.Join(sub, "journal.jsonl"), []byte("x"), 0644))

	got := collect(t, w.Changed(), 500*time.Millisecond)
	assert.Contains(t, got, "run-20240101-120000")
}

package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "journal.jsonl")
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line)
	require.NoError(t, err)
}

func eventLine(kind string, n int) string {
	return fmt.Sprintf(`{"timestamp":"2024-01-01T12:00:%02dZ","kind":"%s","n":%d}`+"\n", n, kind, n)
}

func TestReadMissingFile(t *testing.T) {
	result, err := Read(filepath.Join(t.TempDir(), "absent.jsonl"), Cursor{})
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Equal(t, Cursor{}, result.Cursor)
}

func TestIncrementalMatchesFullRead(t *testing.T) {
	path := journalPath(t)

	var incremental []Event
	cur := Cursor{}
	for i := 0; i < 10; i++ {
		appendLine(t, path, eventLine("step", i))
		if i == 4 {
			appendLine(t, path, "this is not json\n")
		}

		result, err := Read(path, cur)
		require.NoError(t, err)
		incremental = append(incremental, result.Events...)
		cur = result.Cursor
	}

	full, err := ReadAll(path)
	require.NoError(t, err)

	require.Equal(t, len(full.Events), len(incremental))
	for i := range full.Events {
		assert.Equal(t, full.Events[i].Sequence, incremental[i].Sequence)
		assert.Equal(t, full.Events[i].Kind, incremental[i].Kind)
		assert.Equal(t, string(full.Events[i].Payload), string(incremental[i].Payload))
	}
	assert.Equal(t, 1, full.Malformed)
}

func TestUnterminatedLineIsWithheld(t *testing.T) {
	path := journalPath(t)
	appendLine(t, path, eventLine("start", 0))
	appendLine(t, path, `{"timestamp":"2024-01-01T12:00:01Z","kind":"partial"`)

	result, err := Read(path, Cursor{})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "start", result.Events[0].Kind)
	assert.Zero(t, result.Malformed)

	// Completing the line exposes exactly one new event on the next pass.
	appendLine(t, path, ",\"n\":1}\n")
	result, err = Read(path, result.Cursor)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "partial", result.Events[0].Kind)
	assert.Equal(t, int64(2), result.Events[0].Sequence)
}

func TestMalformedCompleteLineIsSkippedOnce(t *testing.T) {
	path := journalPath(t)
	appendLine(t, path, "{broken\n")
	appendLine(t, path, eventLine("ok", 1))

	result, err := Read(path, Cursor{})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "ok", result.Events[0].Kind)
	assert.Equal(t, 1, result.Malformed)

	// The cursor advanced past the garbage: re-reading from it yields
	// nothing new, so a malformed line cannot cause infinite retries.
	again, err := Read(path, result.Cursor)
	require.NoError(t, err)
	assert.Empty(t, again.Events)
	assert.Zero(t, again.Malformed)
}

func TestBlankLinesProduceNoEventsAndNoDiagnostics(t *testing.T) {
	path := journalPath(t)
	appendLine(t, path, "\n")
	appendLine(t, path, eventLine("ok", 1))
	appendLine(t, path, "\n")

	result, err := Read(path, Cursor{})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Zero(t, result.Malformed)
}

func TestShrunkFileResetsCursor(t *testing.T) {
	path := journalPath(t)
	appendLine(t, path, eventLine("first", 0))
	appendLine(t, path, eventLine("second", 1))

	result, err := Read(path, Cursor{})
	require.NoError(t, err)
	require.Len(t, result.Events, 2)

	// Rotate: replace with a shorter file.
	require.NoError(t, os.WriteFile(path, []byte(eventLine("rotated", 0)), 0644))

	result, err = Read(path, result.Cursor)
	require.NoError(t, err)
	assert.True(t, result.Reset)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "rotated", result.Events[0].Kind)
	assert.Equal(t, int64(1), result.Events[0].Sequence)
}

func TestSequenceNumbersAreLinePositions(t *testing.T) {
	path := journalPath(t)
	appendLine(t, path, eventLine("a", 0))
	appendLine(t, path, "garbage\n")
	appendLine(t, path, eventLine("b", 2))

	result, err := Read(path, Cursor{})
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	assert.Equal(t, int64(1), result.Events[0].Sequence)
	assert.Equal(t, int64(3), result.Events[1].Sequence)
}

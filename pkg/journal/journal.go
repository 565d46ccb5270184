// Package journal reads the append-only, line-delimited event log that the
// supervised agent process writes while a run executes. The file is read
// concurrently with the writer, so the reader only ever consumes whole,
// newline-terminated lines and leaves a partially written trailing line for
// the next pass.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"time"
)

// Cursor marks how much of a journal file has been consumed.
// Offset is the byte position of the first unread byte; Line counts the
// complete lines consumed so far and doubles as the next event's sequence
// base.
type Cursor struct {
	Offset int64 `json:"offset"`
	Line   int64 `json:"line"`
}

// Event is one parsed journal line. Events are immutable once parsed.
type Event struct {
	// Sequence is the 1-based line number of the event in the file.
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	// Payload is the full original line. The core does not fix the
	// event schema beyond timestamp and kind.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReadResult is the outcome of one incremental read pass.
type ReadResult struct {
	Events []Event
	Cursor Cursor
	// Malformed counts complete lines that failed to parse in this pass.
	// They are skipped, not retried: the cursor advances past them.
	Malformed int
	// Reset reports that the file shrank or was replaced, and the whole
	// file was reprocessed from offset zero.
	Reset bool
}

// eventProbe extracts the fields the core cares about from a line.
// Timestamp stays a string here so an unconventional timestamp format
// degrades to a zero time instead of rejecting the whole line.
type eventProbe struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
}

// Read consumes whole lines from path starting at cur and returns the newly
// parsed events plus the advanced cursor.
//
// A nonexistent file yields an empty result, not an error: a run may not
// have produced a journal yet. If the file is smaller than the cursor's
// offset (truncation or rotation), the cursor resets to zero and the full
// file is reprocessed.
func Read(path string, cur Cursor) (*ReadResult, error) {
	result := &ReadResult{Cursor: cur}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() < cur.Offset {
		// Shrunk or replaced: start over.
		result.Reset = true
		result.Cursor = Cursor{}
	}

	if _, err := f.Seek(result.Cursor.Offset, io.SeekStart); err != nil {
		return nil, err
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// An unterminated trailing line is the line currently
			// being written; leave it for the next pass.
			if err == io.EOF {
				break
			}
			return nil, err
		}

		result.Cursor.Offset += int64(len(line))
		result.Cursor.Line++

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			// Blank lines are tolerated and produce no event.
			continue
		}

		event, ok := parseLine(trimmed, result.Cursor.Line)
		if !ok {
			result.Malformed++
			continue
		}
		result.Events = append(result.Events, event)
	}

	return result, nil
}

// ReadAll reads the complete journal from the beginning.
func ReadAll(path string) (*ReadResult, error) {
	return Read(path, Cursor{})
}

// parseLine parses one complete, non-blank journal line into an Event.
func parseLine(trimmed []byte, sequence int64) (Event, bool) {
	var probe eventProbe
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return Event{}, false
	}

	payload := make(json.RawMessage, len(trimmed))
	copy(payload, trimmed)

	timestamp, _ := time.Parse(time.RFC3339Nano, probe.Timestamp)

	return Event{
		Sequence:  sequence,
		Timestamp: timestamp,
		Kind:      probe.Kind,
		Payload:   payload,
	}, true
}

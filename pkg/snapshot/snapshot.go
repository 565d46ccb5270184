// Package snapshot reads the state file an agent process rewrites in place
// while a run executes. Because the writer does not promise atomic renames,
// a read can observe a torn or half-written file; callers keep the last
// successfully parsed snapshot and treat a failed parse as "no news".
package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// ErrUnparsable reports that the state file exists but its contents could
// not be decoded. The previous good snapshot, if any, remains authoritative.
var ErrUnparsable = errors.New("state file is not valid JSON")

// Snapshot is one successfully parsed state file.
type Snapshot struct {
	// Lifecycle is the agent-reported phase, e.g. "running",
	// "awaiting_input", "completed", "failed". Free-form values pass
	// through untouched.
	Lifecycle string `json:"lifecycle"`

	// UpdatedAt is the agent's own timestamp, zero when absent or
	// unparsable.
	UpdatedAt time.Time `json:"updated_at"`

	// Fields holds the full decoded document. The agent owns the schema;
	// the supervisor only probes the keys it understands.
	Fields map[string]interface{} `json:"fields,omitempty"`

	// Raw is the exact bytes that produced this snapshot.
	Raw json.RawMessage `json:"-"`
}

// snapshotProbe pulls the two keys the supervisor interprets. Timestamp
// stays a string so an odd format degrades to zero time rather than
// rejecting the whole document.
type snapshotProbe struct {
	Lifecycle string `json:"lifecycle"`
	UpdatedAt string `json:"updated_at"`
}

// Read loads and parses the state file at path in a single pass.
//
// A missing file returns (nil, nil): the run simply has no snapshot yet.
// A file that exists but fails to decode returns (nil, ErrUnparsable) so
// the caller can keep its last good snapshot. Any other I/O failure is
// returned as-is.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes raw state-file bytes into a Snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrUnparsable
	}

	var probe snapshotProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		// The document decoded as a map but not as the probe shape,
		// e.g. "lifecycle" is a number. Tolerate it: the typed fields
		// stay zero and the full document survives in Fields.
		probe = snapshotProbe{}
	}

	updatedAt, _ := time.Parse(time.RFC3339Nano, probe.UpdatedAt)

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return &Snapshot{
		Lifecycle: probe.Lifecycle,
		UpdatedAt: updatedAt,
		Fields:    fields,
		Raw:       raw,
	}, nil
}

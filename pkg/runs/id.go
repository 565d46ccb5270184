package runs

import (
	"fmt"
	"regexp"
	"time"
)

// idTimeLayout is the timestamp embedded in run identifiers.
const idTimeLayout = "run-20060102-150405"

// idPattern matches a well-formed run identifier: a literal prefix, an
// eight digit date and a six digit time.
var idPattern = regexp.MustCompile(`^run-\d{8}-\d{6}$`)

// NewID derives a run identifier from a wall-clock time.
func NewID(t time.Time) string {
	return t.Format(idTimeLayout)
}

// IsID reports whether name is a well-formed run identifier.
func IsID(name string) bool {
	return idPattern.MatchString(name)
}

// ParseID extracts the embedded timestamp from a run identifier.
func ParseID(id string) (time.Time, error) {
	if !idPattern.MatchString(id) {
		return time.Time{}, fmt.Errorf("not a run identifier: %q", id)
	}
	// The regexp guarantees shape, not calendar validity; time.Parse
	// rejects e.g. month 13.
	t, err := time.Parse(idTimeLayout, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a run identifier: %q", id)
	}
	return t, nil
}

package runs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/wardentools/warden/errors"
)

// Well-known paths inside a run directory. The agent writes these; the
// supervisor only reads them.
const (
	ControlDirName   = "run"
	StateFileName    = "state.json"
	JournalFileName  = "journal.jsonl"
	ArtifactsDirName = "artifacts"
	SummariesDirName = "work_summaries"
)

// StatePath returns the path of a run's state file.
func StatePath(dir string) string {
	return filepath.Join(dir, ControlDirName, StateFileName)
}

// JournalPath returns the path of a run's journal file.
func JournalPath(dir string) string {
	return filepath.Join(dir, ControlDirName, JournalFileName)
}

// ArtifactsPath returns the path of a run's artifacts directory.
func ArtifactsPath(dir string) string {
	return filepath.Join(dir, ControlDirName, ArtifactsDirName)
}

// Discover scans root for run directories, non-recursively. Entries whose
// names do not match the run identifier convention are ignored, as are
// plain files. Results are sorted by identifier, which is chronological by
// construction.
//
// A nonexistent root yields an empty result: the first run may not have
// been created yet. Any other failure to read the root is an error.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.RunsRootUnreadable(root, err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !IsID(entry.Name()) {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

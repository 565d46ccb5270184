// Package watch turns raw filesystem events under the runs root into
// debounced per-run change notifications. Agents write journals in bursts;
// the debounce window coalesces each burst into a single notification once
// the run directory has been quiet for the configured interval.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"

	"github.com/wardentools/warden/logging"
)

// RootChanged is the identifier emitted when the runs root itself changes,
// e.g. a new run directory appears. Consumers treat it as "rescan".
const RootChanged = ""

// Watcher watches the runs root and the registered run directories and
// emits a debounced run identifier per quiescent burst of changes.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	matcher  *patternmatcher.PatternMatcher
	log      *logrus.Entry

	changed chan string
	done    chan struct{}

	mu     sync.Mutex
	root   string
	runs   map[string]string // run ID -> directory
	timers map[string]*time.Timer
}

// New creates a Watcher. ignorePatterns uses dockerignore-style syntax and
// is matched against paths relative to the run directory.
func New(debounce time.Duration, ignorePatterns []string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	var matcher *patternmatcher.PatternMatcher
	if len(ignorePatterns) > 0 {
		matcher, err = patternmatcher.New(ignorePatterns)
		if err != nil {
			fs.Close()
			return nil, err
		}
	}

	w := &Watcher{
		fs:       fs,
		debounce: debounce,
		matcher:  matcher,
		log:      logging.NewLogger("watch"),
		changed:  make(chan string, 64),
		done:     make(chan struct{}),
		runs:     make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
	go w.loop()
	return w, nil
}

// Changed delivers debounced notifications: a run identifier, or
// RootChanged when the runs root itself changed.
func (w *Watcher) Changed() <-chan string {
	return w.changed
}

// WatchRoot starts watching the runs root for new and removed run
// directories.
func (w *Watcher) WatchRoot(root string) error {
	if err := w.fs.Add(root); err != nil {
		return err
	}
	w.mu.Lock()
	w.root = root
	w.mu.Unlock()
	return nil
}

// WatchRun registers a run directory and watches it recursively. A run
// that cannot be watched is logged and skipped; it must not take the
// watcher down for everyone else.
func (w *Watcher) WatchRun(id, dir string) error {
	w.mu.Lock()
	w.runs[id] = dir
	w.mu.Unlock()
	return w.addRecursive(dir)
}

// UnwatchRun drops a run directory from the watch set and cancels any
// pending debounce for it.
func (w *Watcher) UnwatchRun(id string) {
	w.mu.Lock()
	dir, ok := w.runs[id]
	delete(w.runs, id)
	if timer, exists := w.timers[id]; exists {
		timer.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	if ok {
		// Removal errors are expected when the directory is already
		// gone.
		_ = w.fs.Remove(dir)
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// The tree can mutate under us; skip what vanished.
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if addErr := w.fs.Add(path); addErr != nil {
			w.log.WithError(addErr).WithField("path", path).Warn("Failed to watch directory")
		}
		return nil
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Filesystem watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	id, runDir, known := w.classify(event.Name)
	if !known {
		return
	}

	if id != RootChanged && w.ignored(runDir, event.Name) {
		return
	}

	// New subdirectories must be watched too or writes inside them go
	// unseen.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && id != RootChanged {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.WithError(err).WithField("path", event.Name).Warn("Failed to watch new directory")
			}
		}
	}

	w.schedule(id)
}

// classify maps an event path to the run it belongs to, or to the root.
func (w *Watcher) classify(path string) (id, runDir string, known bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for runID, dir := range w.runs {
		if path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator)) {
			return runID, dir, true
		}
	}
	if w.root != "" {
		if filepath.Dir(path) == w.root || path == w.root {
			return RootChanged, "", true
		}
	}
	return "", "", false
}

func (w *Watcher) ignored(runDir, path string) bool {
	if w.matcher == nil {
		return false
	}
	rel, err := filepath.Rel(runDir, path)
	if err != nil {
		return false
	}
	matched, err := w.matcher.MatchesOrParentMatches(rel)
	if err != nil {
		return false
	}
	return matched
}

// schedule arms or extends the debounce timer for id. Every new event
// within the window pushes the deadline out; the notification fires only
// after the directory has been quiet for the full interval.
func (w *Watcher) schedule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[id]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() {
		w.fire(id)
	})
}

func (w *Watcher) fire(id string) {
	w.mu.Lock()
	delete(w.timers, id)
	w.mu.Unlock()

	select {
	case w.changed <- id:
	case <-w.done:
	default:
		// Consumer is behind; try again after another interval rather
		// than dropping the notification.
		w.mu.Lock()
		if _, ok := w.timers[id]; !ok {
			w.timers[id] = time.AfterFunc(w.debounce, func() {
				w.fire(id)
			})
		}
		w.mu.Unlock()
	}
}

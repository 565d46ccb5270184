// Package engine orchestrates the warden daemon: it discovers runs,
// consumes debounced filesystem notifications, refreshes run records from
// disk, and owns the session controller for dispatch, resume and control
// operations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wardentools/warden/config"
	wardenerrors "github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/internal/daemon/store"
	"github.com/wardentools/warden/pkg/journal"
	"github.com/wardentools/warden/pkg/runs"
	"github.com/wardentools/warden/pkg/session"
	"github.com/wardentools/warden/pkg/snapshot"
	"github.com/wardentools/warden/pkg/watch"
)

// Engine wires discovery, watching, reading and session control together.
// All run-record mutation funnels through one mutex so refreshes, rescans
// and operator actions never interleave on a single record.
type Engine struct {
	cfg      *config.Config
	runsRoot string
	store    *store.Store
	watcher  *watch.Watcher
	sessions *session.Controller
	logger   *logrus.Entry

	// mu serializes all record mutation: rescans, refreshes and
	// operator actions take it for their full duration.
	mu sync.Mutex
}

// New creates an Engine. The watcher is started immediately; the event
// loop starts with Start.
func New(cfg *config.Config, st *store.Store, logger *logrus.Entry) (*Engine, error) {
	runsRoot := cfg.ResolveRunsRoot()

	debounce := time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond
	watcher, err := watch.New(debounce, cfg.Watcher.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	sessions := session.NewController(session.Options{
		Executable: cfg.Agent.Executable,
		ExtraArgs:  cfg.Agent.ExtraArgs,
	})

	e := &Engine{
		cfg:      cfg,
		runsRoot: runsRoot,
		store:    st,
		watcher:  watcher,
		sessions: sessions,
		logger:   logger,
	}
	return e, nil
}

// Store returns the engine's run registry.
func (e *Engine) Store() *store.Store {
	return e.store
}

// RunsRoot returns the resolved runs root directory.
func (e *Engine) RunsRoot() string {
	return e.runsRoot
}

func (e *Engine) withLock(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Start performs the initial discovery pass and then blocks consuming
// watcher notifications and session exits until the context is canceled.
func (e *Engine) Start(ctx context.Context) error {
	if err := os.MkdirAll(e.runsRoot, 0755); err != nil {
		return wardenerrors.RunsRootUnreadable(e.runsRoot, err)
	}
	if err := e.watcher.WatchRoot(e.runsRoot); err != nil {
		return err
	}

	e.withLock(func() { e.rescanLocked() })
	e.logger.WithField("runs_root", e.runsRoot).Info("Engine started")

	for {
		select {
		case <-ctx.Done():
			e.sessions.Close()
			e.watcher.Close()
			return ctx.Err()

		case id := <-e.watcher.Changed():
			if id == watch.RootChanged {
				e.withLock(func() { e.rescanLocked() })
			} else {
				e.withLock(func() { e.refreshLocked(id) })
			}

		case exit := <-e.sessions.Exits():
			e.logger.WithFields(logrus.Fields{
				"run_id":    exit.RunID,
				"exit_code": exit.ExitCode,
			}).Info("Session exit observed")
			// Status stays snapshot-derived; the exit only clears the
			// session handle, which refresh picks up from the
			// controller.
			e.withLock(func() { e.refreshLocked(exit.RunID) })
		}
	}
}

// Rescan re-runs discovery against the runs root and reconciles the
// registry with what is on disk.
func (e *Engine) Rescan() {
	e.withLock(func() { e.rescanLocked() })
}

// Refresh re-reads one run's journal and snapshot from disk.
func (e *Engine) Refresh(id string) {
	e.withLock(func() { e.refreshLocked(id) })
}

func (e *Engine) rescanLocked() {
	ids, err := runs.Discover(e.runsRoot)
	if err != nil {
		e.logger.WithError(err).Error("Discovery failed")
		return
	}

	onDisk := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		onDisk[id] = struct{}{}
	}

	// Drop registry entries whose directories are gone. Disappearance
	// outside an explicit rescan is only ever a status change, so this
	// is the one place records are removed.
	for _, existing := range e.store.GetRuns() {
		if _, ok := onDisk[existing.ID]; !ok {
			e.watcher.UnwatchRun(existing.ID)
			e.store.ApplyUpdate(store.Update{
				Type:    store.UpdateRunRemoved,
				Source:  "discovery",
				Payload: existing.ID,
			})
		}
	}

	for _, id := range ids {
		if e.store.GetRun(id) == nil {
			dir := filepath.Join(e.runsRoot, id)
			if err := e.watcher.WatchRun(id, dir); err != nil {
				e.logger.WithError(err).WithField("run_id", id).Warn("Failed to watch run directory")
			}
		}
		e.refreshLocked(id)
	}

	// One consolidated frame after the reconcile so stream consumers can
	// replace their whole view instead of replaying each record.
	set := make(map[string]*runs.Run, len(ids))
	for _, r := range e.store.GetRuns() {
		set[r.ID] = r
	}
	e.store.ApplyUpdate(store.Update{
		Type:    store.UpdateRunSet,
		Source:  "discovery",
		Payload: set,
	})
}

// refreshLocked re-reads a single run from disk and upserts its record.
// A failure here marks the record, never the engine: one broken run must
// not poison the rest.
func (e *Engine) refreshLocked(id string) {
	if !runs.IsID(id) {
		return
	}

	dir := filepath.Join(e.runsRoot, id)
	rec := e.store.GetRun(id)
	if rec == nil {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		rec = &runs.Run{
			ID:           id,
			Dir:          dir,
			DiscoveredAt: time.Now(),
		}
		if err := e.watcher.WatchRun(id, dir); err != nil {
			e.logger.WithError(err).WithField("run_id", id).Warn("Failed to watch run directory")
		}
	}
	rec.LastError = ""

	result, err := journal.Read(runs.JournalPath(dir), rec.Cursor)
	if err != nil {
		rec.LastError = err.Error()
		e.logger.WithError(err).WithField("run_id", id).Warn("Journal read failed")
	} else {
		if result.Reset {
			e.logger.WithField("run_id", id).Info("Journal shrank, reprocessing from start")
			rec.LatestEvents = nil
			rec.EventCount = 0
			rec.Malformed = 0
		}
		rec.Cursor = result.Cursor
		rec.Malformed += result.Malformed
		rec.AppendEvents(result.Events, e.cfg.EventBuffer)
	}

	snap, err := snapshot.Read(runs.StatePath(dir))
	switch {
	case err == nil && snap != nil:
		rec.Snapshot = snap
	case errors.Is(err, snapshot.ErrUnparsable):
		// Torn read or mid-write race; the last good snapshot stands
		// and the next watch trigger retries.
		e.logger.WithField("run_id", id).Debug("State file unparsable, keeping previous snapshot")
	case err != nil:
		rec.LastError = err.Error()
		e.logger.WithError(err).WithField("run_id", id).Warn("State read failed")
	}

	rec.Session = e.liveSessionInfo(id)
	if rec.Snapshot != nil {
		e.sessions.MarkAwaitingInput(id, rec.Snapshot.Lifecycle == "awaiting_input")
	}

	rec.Status = runs.DeriveStatus(rec.Snapshot, rec.Session, rec.EventCount)
	rec.UpdatedAt = time.Now()

	e.store.ApplyUpdate(store.Update{
		Type:    store.UpdateRun,
		Source:  "refresh",
		Payload: rec,
	})
}

func (e *Engine) liveSessionInfo(id string) *runs.SessionInfo {
	info := e.sessions.Get(id)
	if info == nil || info.State == session.StateExited || info.State == session.StateIdle {
		return nil
	}
	return &runs.SessionInfo{
		PID:       info.PID,
		StartedAt: info.StartedAt,
		Resumed:   info.Resumed,
	}
}

// Dispatch creates a fresh run directory and spawns the agent executable
// against it. Returns the new run's ID.
func (e *Engine) Dispatch(prompt string) (string, error) {
	var id string
	var err error
	e.withLock(func() { id, err = e.dispatchLocked(prompt) })
	return id, err
}

func (e *Engine) dispatchLocked(prompt string) (string, error) {
	id, dir, err := e.createRunDir()
	if err != nil {
		return "", err
	}

	rec := &runs.Run{
		ID:           id,
		Dir:          dir,
		Status:       runs.StatusDispatching,
		DiscoveredAt: time.Now(),
		UpdatedAt:    time.Now(),
	}
	e.store.ApplyUpdate(store.Update{Type: store.UpdateRun, Source: "session", Payload: rec})

	if err := e.watcher.WatchRun(id, dir); err != nil {
		e.logger.WithError(err).WithField("run_id", id).Warn("Failed to watch run directory")
	}

	var args []string
	if prompt != "" {
		args = []string{prompt}
	}
	if _, err := e.sessions.Dispatch(id, dir, args); err != nil {
		e.refreshLocked(id)
		return "", err
	}

	e.refreshLocked(id)
	e.logger.WithField("run_id", id).Info("Run dispatched")
	return id, nil
}

// createRunDir allocates a timestamp-named run directory plus the control
// subtree the agent writes into. A same-second collision advances the
// timestamp instead of reusing a directory.
func (e *Engine) createRunDir() (string, string, error) {
	at := time.Now()
	for i := 0; i < 10; i++ {
		id := runs.NewID(at)
		dir := filepath.Join(e.runsRoot, id)
		err := os.Mkdir(dir, 0755)
		if os.IsExist(err) {
			at = at.Add(time.Second)
			continue
		}
		if err != nil {
			return "", "", wardenerrors.Wrap(err, wardenerrors.ErrCodeInternal, "failed to create run directory")
		}
		for _, sub := range []string{
			filepath.Join(dir, runs.ControlDirName),
			runs.ArtifactsPath(dir),
			filepath.Join(dir, runs.ControlDirName, runs.SummariesDirName),
		} {
			if err := os.MkdirAll(sub, 0755); err != nil {
				return "", "", wardenerrors.Wrap(err, wardenerrors.ErrCodeInternal, "failed to create run directory")
			}
		}
		return id, dir, nil
	}
	return "", "", wardenerrors.New(wardenerrors.ErrCodeInternal, "could not allocate a unique run directory")
}

// Resume re-invokes the agent against an existing run.
func (e *Engine) Resume(id, prompt string) error {
	var err error
	e.withLock(func() { err = e.resumeLocked(id, prompt) })
	return err
}

func (e *Engine) resumeLocked(id, prompt string) error {
	rec := e.store.GetRun(id)
	if rec == nil {
		return wardenerrors.RunNotFound(id)
	}

	if _, err := e.sessions.Resume(id, rec.Dir, prompt); err != nil {
		return err
	}
	e.refreshLocked(id)
	e.logger.WithField("run_id", id).Info("Run resumed")
	return nil
}

// Control names map to the fixed bytes the agent's input handling
// understands.
const (
	ControlInterrupt = "interrupt"
	ControlConfirm   = "confirm"
)

// Control sends a named control byte to a run's live session.
func (e *Engine) Control(id, name string) error {
	var b byte
	switch name {
	case ControlInterrupt:
		b = session.ControlInterrupt
	case ControlConfirm:
		b = session.ControlConfirm
	default:
		return wardenerrors.New(wardenerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown control %q (want %q or %q)", name, ControlInterrupt, ControlConfirm))
	}

	if e.store.GetRun(id) == nil {
		return wardenerrors.RunNotFound(id)
	}
	return e.sessions.SendControlByte(id, b)
}

// Sessions exposes the controller for the attach endpoint.
func (e *Engine) Sessions() *session.Controller {
	return e.sessions
}

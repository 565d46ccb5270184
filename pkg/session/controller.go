// Package session owns the child processes attached to runs. Each session
// is an external executable spawned under a pseudo-terminal; the controller
// tracks a small per-run state machine, forwards control bytes into the pty,
// and reports exits asynchronously.
//
// The pty gives a single merged output stream. That stream is fanned out to
// attach subscribers for live viewing but is never used to derive run
// status; the state file on disk stays authoritative.
package session

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/logging"
)

// State is the lifecycle phase of one session.
type State string

const (
	StateIdle          State = "idle"
	StateSpawning      State = "spawning"
	StateAttached      State = "attached"
	StateAwaitingInput State = "awaiting_input"
	StateExited        State = "exited"
)

// Control bytes understood by the supervised executable's input handling.
const (
	// ControlInterrupt is ETX, what a terminal sends for Ctrl-C.
	ControlInterrupt byte = 0x03
	// ControlConfirm is carriage return, confirming a pending question.
	ControlConfirm byte = 0x0d
)

// Exit reports an observed child exit.
type Exit struct {
	RunID    string
	PID      int
	ExitCode int
	Err      error
	At       time.Time
}

// Info is the externally visible summary of a live session.
type Info struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Resumed   bool      `json:"resumed"`
}

// Options configures the controller.
type Options struct {
	// Executable is the agent binary to spawn.
	Executable string
	// ExtraArgs are prepended to every invocation's prompt arguments.
	ExtraArgs []string
	// Rows and Cols size the pty; zero values fall back to 40x120.
	Rows uint16
	Cols uint16
	// OutputBuffer bounds the retained tail of pty output per session, in
	// bytes. Zero means 64 KiB.
	OutputBuffer int
}

// Controller manages at most one live session per run.
type Controller struct {
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*session
	exits    chan Exit
}

type session struct {
	runID     string
	dir       string
	state     State
	resumed   bool
	startedAt time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	// tail holds the most recent pty output; subs receive everything
	// from subscribe time onward.
	tail []byte
	subs map[chan []byte]struct{}
}

// NewController creates a Controller. The executable path is not validated
// here; dispatch resolves it so a missing binary is reported at the moment
// an operator acts.
func NewController(opts Options) *Controller {
	if opts.Rows == 0 {
		opts.Rows = 40
	}
	if opts.Cols == 0 {
		opts.Cols = 120
	}
	if opts.OutputBuffer == 0 {
		opts.OutputBuffer = 64 * 1024
	}
	return &Controller{
		opts:     opts,
		log:      logging.NewLogger("session"),
		sessions: make(map[string]*session),
		exits:    make(chan Exit, 16),
	}
}

// Exits delivers child exit observations. The engine consumes this to clear
// session records and trigger a refresh.
func (c *Controller) Exits() <-chan Exit {
	return c.exits
}

// Dispatch spawns a fresh session for runID in dir with the given prompt
// arguments. Valid only when the run has no live session.
func (c *Controller) Dispatch(runID, dir string, promptArgs []string) (*Info, error) {
	args := append(append([]string{}, c.opts.ExtraArgs...), promptArgs...)
	return c.spawn(runID, dir, args, false)
}

// Resume re-invokes the executable against an existing run with the
// two-element [runId, prompt] convention. Prior journal and state files are
// untouched; continuation is additive.
func (c *Controller) Resume(runID, dir, prompt string) (*Info, error) {
	args := append(append([]string{}, c.opts.ExtraArgs...), runID, prompt)
	return c.spawn(runID, dir, args, true)
}

func (c *Controller) spawn(runID, dir string, args []string, resumed bool) (*Info, error) {
	exe, err := exec.LookPath(c.opts.Executable)
	if err != nil {
		return nil, errors.ExecutableMissing(c.opts.Executable)
	}

	c.mu.Lock()
	if existing, ok := c.sessions[runID]; ok && existing.live() {
		c.mu.Unlock()
		return nil, errors.SessionBusy(runID)
	}
	sess := &session{
		runID: runID,
		dir:   dir,
		state: StateSpawning,
		subs:  make(map[chan []byte]struct{}),
	}
	c.sessions[runID] = sess
	c.mu.Unlock()

	cmd := exec.Command(exe, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "WARDEN_RUN_ID="+runID)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: c.opts.Rows, Cols: c.opts.Cols})
	if err != nil {
		c.mu.Lock()
		delete(c.sessions, runID)
		c.mu.Unlock()
		return nil, errors.SpawnFailed(c.opts.Executable, err)
	}

	c.mu.Lock()
	sess.cmd = cmd
	sess.ptmx = ptmx
	sess.state = StateAttached
	sess.resumed = resumed
	sess.startedAt = time.Now()
	info := sess.info()
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"pid":     cmd.Process.Pid,
		"resumed": resumed,
	}).Info("Session started")

	go c.pumpOutput(sess)
	go c.waitExit(sess)

	return &info, nil
}

// SendControlByte writes one byte to the run's pty input. The write is a
// single best effort; a run without a live session is an explicit error so
// the operator gets feedback instead of a silent no-op.
func (c *Controller) SendControlByte(runID string, b byte) error {
	c.mu.Lock()
	sess, ok := c.sessions[runID]
	if !ok || !sess.live() {
		c.mu.Unlock()
		return errors.NoLiveSession(runID)
	}
	ptmx := sess.ptmx
	c.mu.Unlock()

	if _, err := ptmx.Write([]byte{b}); err != nil {
		return errors.New(errors.ErrCodeControlWrite, "failed to write control byte to session").
			WithDetail("runId", runID)
	}
	return nil
}

// Write forwards arbitrary bytes (operator keystrokes from an attach
// session) to the run's pty input.
func (c *Controller) Write(runID string, data []byte) error {
	c.mu.Lock()
	sess, ok := c.sessions[runID]
	if !ok || !sess.live() {
		c.mu.Unlock()
		return errors.NoLiveSession(runID)
	}
	ptmx := sess.ptmx
	c.mu.Unlock()

	_, err := ptmx.Write(data)
	return err
}

// MarkAwaitingInput records that the agent reported it is blocked on input.
// Driven by the engine from snapshot lifecycle changes.
func (c *Controller) MarkAwaitingInput(runID string, awaiting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[runID]
	if !ok {
		return
	}
	switch {
	case awaiting && sess.state == StateAttached:
		sess.state = StateAwaitingInput
	case !awaiting && sess.state == StateAwaitingInput:
		sess.state = StateAttached
	}
}

// Terminate kills the run's child process. The exit still arrives through
// Exits like any other.
func (c *Controller) Terminate(runID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[runID]
	if !ok || !sess.live() {
		c.mu.Unlock()
		return errors.NoLiveSession(runID)
	}
	proc := sess.cmd.Process
	c.mu.Unlock()

	return proc.Kill()
}

// Get returns the session info for runID, or nil when none exists.
func (c *Controller) Get(runID string) *Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[runID]
	if !ok {
		return nil
	}
	info := sess.info()
	return &info
}

// Subscribe attaches to the session's merged pty output. The returned
// channel first receives the buffered tail, then live chunks. Cancel must
// be called to release the subscription.
func (c *Controller) Subscribe(runID string) (<-chan []byte, func(), error) {
	c.mu.Lock()
	sess, ok := c.sessions[runID]
	if !ok {
		c.mu.Unlock()
		return nil, nil, errors.NoLiveSession(runID)
	}

	ch := make(chan []byte, 32)
	if len(sess.tail) > 0 {
		tail := make([]byte, len(sess.tail))
		copy(tail, sess.tail)
		ch <- tail
	}
	if sess.state == StateExited {
		// The exit path already closed every live subscriber; a late
		// attach gets the buffered tail and an immediate close rather
		// than a channel nothing will ever write to.
		close(ch)
		c.mu.Unlock()
		return ch, func() {}, nil
	}
	sess.subs[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, still := sess.subs[ch]; still {
			delete(sess.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel, nil
}

// Resize adjusts the pty window of a live session.
func (c *Controller) Resize(runID string, rows, cols uint16) error {
	c.mu.Lock()
	sess, ok := c.sessions[runID]
	if !ok || !sess.live() {
		c.mu.Unlock()
		return errors.NoLiveSession(runID)
	}
	ptmx := sess.ptmx
	c.mu.Unlock()

	return pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates every live session.
func (c *Controller) Close() {
	c.mu.Lock()
	var procs []*os.Process
	for _, sess := range c.sessions {
		if sess.live() && sess.cmd.Process != nil {
			procs = append(procs, sess.cmd.Process)
		}
	}
	c.mu.Unlock()

	for _, p := range procs {
		_ = p.Kill()
	}
}

func (c *Controller) pumpOutput(sess *session) {
	buf := make([]byte, 4096)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.broadcast(sess, chunk)
		}
		if err != nil {
			// Read errors here mean the child closed its side; the
			// exit path handles state.
			return
		}
	}
}

func (c *Controller) broadcast(sess *session, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess.tail = append(sess.tail, chunk...)
	if len(sess.tail) > c.opts.OutputBuffer {
		sess.tail = sess.tail[len(sess.tail)-c.opts.OutputBuffer:]
	}

	for ch := range sess.subs {
		select {
		case ch <- chunk:
		default:
			// A stalled attach viewer misses chunks rather than
			// stalling the pump.
		}
	}
}

func (c *Controller) waitExit(sess *session) {
	err := sess.cmd.Wait()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	c.mu.Lock()
	sess.state = StateExited
	sess.ptmx.Close()
	for ch := range sess.subs {
		delete(sess.subs, ch)
		close(ch)
	}
	pid := sess.cmd.Process.Pid
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"run_id":    sess.runID,
		"pid":       pid,
		"exit_code": exitCode,
	}).Info("Session exited")

	c.exits <- Exit{
		RunID:    sess.runID,
		PID:      pid,
		ExitCode: exitCode,
		Err:      err,
		At:       time.Now(),
	}
}

func (s *session) live() bool {
	return s.state == StateSpawning || s.state == StateAttached || s.state == StateAwaitingInput
}

func (s *session) info() Info {
	info := Info{
		RunID:   s.runID,
		State:   s.state,
		Resumed: s.resumed,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	info.StartedAt = s.startedAt
	return info
}

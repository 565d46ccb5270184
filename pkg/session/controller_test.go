package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wardenerrors "github.com/wardentools/warden/errors"
)

func waitExit(t *testing.T, c *Controller, runID string) Exit {
	t.Helper()
	select {
	case exit := <-c.Exits():
		require.Equal(t, runID, exit.RunID)
		return exit
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session exit")
		return Exit{}
	}
}

func collectOutput(ch <-chan []byte, window time.Duration) []byte {
	var buf bytes.Buffer
	deadline := time.After(window)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return buf.Bytes()
			}
			buf.Write(chunk)
		case <-deadline:
			return buf.Bytes()
		}
	}
}

func TestDispatchMissingExecutable(t *testing.T) {
	c := NewController(Options{Executable: "/nonexistent/agent-binary"})
	defer c.Close()

	_, err := c.Dispatch("run-20240101-120000", t.TempDir(), nil)
	assert.Equal(t, wardenerrors.ErrCodeExecutableMissing, wardenerrors.GetCode(err))
}

func TestControlByteWithoutSession(t *testing.T) {
	c := NewController(Options{Executable: "cat"})
	defer c.Close()

	err := c.SendControlByte("run-20240101-120000", ControlInterrupt)
	assert.Equal(t, wardenerrors.ErrCodeNoLiveSession, wardenerrors.GetCode(err))
}

func TestDispatchEchoAndObserveExit(t *testing.T) {
	c := NewController(Options{Executable: "echo"})
	defer c.Close()

	runID := "run-20240101-120000"
	info, err := c.Dispatch(runID, t.TempDir(), []string{"hello from the agent"})
	require.NoError(t, err)
	assert.NotZero(t, info.PID)
	assert.Equal(t, StateAttached, info.State)

	exit := waitExit(t, c, runID)
	assert.Equal(t, 0, exit.ExitCode)

	// After exit the session is no longer live.
	err = c.SendControlByte(runID, ControlConfirm)
	assert.Equal(t, wardenerrors.ErrCodeNoLiveSession, wardenerrors.GetCode(err))
}

func TestDoubleDispatchIsBusy(t *testing.T) {
	c := NewController(Options{Executable: "cat"})
	defer c.Close()

	runID := "run-20240101-120000"
	dir := t.TempDir()
	_, err := c.Dispatch(runID, dir, nil)
	require.NoError(t, err)

	_, err = c.Dispatch(runID, dir, nil)
	assert.Equal(t, wardenerrors.ErrCodeSessionBusy, wardenerrors.GetCode(err))

	require.NoError(t, c.Terminate(runID))
	waitExit(t, c, runID)
}

func TestWriteRoundTripsThroughPty(t *testing.T) {
	c := NewController(Options{Executable: "cat"})
	defer c.Close()

	runID := "run-20240101-120000"
	_, err := c.Dispatch(runID, t.TempDir(), nil)
	require.NoError(t, err)

	ch, cancel, err := c.Subscribe(runID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, c.Write(runID, []byte("ping\r")))

	out := collectOutput(ch, 2*time.Second)
	assert.Contains(t, string(out), "ping")

	require.NoError(t, c.Terminate(runID))
	waitExit(t, c, runID)
}

func TestInterruptByteStopsChild(t *testing.T) {
	c := NewController(Options{Executable: "cat"})
	defer c.Close()

	runID := "run-20240101-120000"
	_, err := c.Dispatch(runID, t.TempDir(), nil)
	require.NoError(t, err)

	// The pty's line discipline turns ETX into SIGINT for the child.
	require.NoError(t, c.SendControlByte(runID, ControlInterrupt))

	exit := waitExit(t, c, runID)
	assert.NotEqual(t, 0, exit.ExitCode)
}

func TestResumePassesRunIDAndPrompt(t *testing.T) {
	c := NewController(Options{Executable: "echo"})
	defer c.Close()

	runID := "run-20240101-120000"
	info, err := c.Resume(runID, t.TempDir(), "keep going")
	require.NoError(t, err)
	assert.True(t, info.Resumed)

	ch, cancel, err := c.Subscribe(runID)
	require.NoError(t, err)
	defer cancel()

	out := collectOutput(ch, 2*time.Second)
	assert.Contains(t, string(out), runID)
	assert.Contains(t, string(out), "keep going")

	waitExit(t, c, runID)
}

func TestSubscribeAfterExitClosesChannel(t *testing.T) {
	c := NewController(Options{Executable: "echo"})
	defer c.Close()

	runID := "run-20240101-120000"
	_, err := c.Dispatch(runID, t.TempDir(), []string{"final words"})
	require.NoError(t, err)
	waitExit(t, c, runID)

	ch, cancel, err := c.Subscribe(runID)
	require.NoError(t, err)
	defer cancel()

	// Any buffered tail is delivered first, then the channel must close
	// so an attach viewer of a finished run does not hang.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel never closed after exit")
		}
	}
}

func TestAwaitingInputToggle(t *testing.T) {
	c := NewController(Options{Executable: "cat"})
	defer c.Close()

	runID := "run-20240101-120000"
	_, err := c.Dispatch(runID, t.TempDir(), nil)
	require.NoError(t, err)

	c.MarkAwaitingInput(runID, true)
	assert.Equal(t, StateAwaitingInput, c.Get(runID).State)

	c.MarkAwaitingInput(runID, false)
	assert.Equal(t, StateAttached, c.Get(runID).State)

	require.NoError(t, c.Terminate(runID))
	waitExit(t, c, runID)
}

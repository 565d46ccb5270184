package cli

import (
	"fmt"
	"os"

	"github.com/wardentools/warden/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeDaemonNotRunning:
		fmt.Fprintf(os.Stderr, "❌ The warden daemon is not running.\n")
		fmt.Fprintf(os.Stderr, "Start it with 'warden daemon start' and try again.\n")
		return err

	case errors.ErrCodeRunNotFound:
		if werr, ok := err.(*errors.WardenError); ok {
			fmt.Fprintf(os.Stderr, "❌ Run '%s' not found\n", werr.Details["runId"])
		} else {
			fmt.Fprintf(os.Stderr, "❌ Run not found\n")
		}
		fmt.Fprintf(os.Stderr, "Run 'warden runs' to see known runs.\n")
		return err

	case errors.ErrCodeNoLiveSession:
		if werr, ok := err.(*errors.WardenError); ok {
			fmt.Fprintf(os.Stderr, "❌ Run '%s' has no live session\n", werr.Details["runId"])
		} else {
			fmt.Fprintf(os.Stderr, "❌ No live session for that run\n")
		}
		fmt.Fprintf(os.Stderr, "Use 'warden resume <id>' to start a new session for it.\n")
		return err

	case errors.ErrCodeSessionBusy:
		fmt.Fprintf(os.Stderr, "❌ That run already has a live session.\n")
		fmt.Fprintf(os.Stderr, "Interrupt it first with 'warden interrupt <id>' if you want to restart.\n")
		return err

	case errors.ErrCodeExecutableMissing:
		if werr, ok := err.(*errors.WardenError); ok {
			fmt.Fprintf(os.Stderr, "❌ Agent executable '%s' not found\n", werr.Details["path"])
		} else {
			fmt.Fprintf(os.Stderr, "❌ Agent executable not found\n")
		}
		fmt.Fprintf(os.Stderr, "Set agent.executable in warden.yml or export WARDEN_EXECUTABLE.\n")
		return err

	case errors.ErrCodeRunsRootUnreadable:
		fmt.Fprintf(os.Stderr, "❌ Cannot read the runs root directory.\n")
		fmt.Fprintf(os.Stderr, "Check runs_root in warden.yml and its permissions.\n")
		return err

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		// If verbose mode, show full error details
		if h.Verbose {
			if werr, ok := err.(*errors.WardenError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", werr.ToJSON())
			}
		}
		return err
	}
}

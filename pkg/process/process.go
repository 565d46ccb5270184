// Package process probes local process liveness by PID.
package process

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether pid names a live process. Signal 0 checks
// existence without delivering anything; EPERM still means the process is
// there, just owned by someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
